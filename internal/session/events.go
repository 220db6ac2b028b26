// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/generation"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is a notification from a Session.
type Event interface {
	sessionEvent()
}

// StatusChanged carries the new status line.
type StatusChanged struct {
	Text string
}

// TurnAppended is sent after a turn was appended to the transcript.
type TurnAppended struct {
	Turn model.Turn
}

// ContentUpdated carries the full accumulated text of the run in progress.
type ContentUpdated struct {
	RunID string
	Text  string
}

// LoadProgress relays model load progress.
type LoadProgress struct {
	engine.Progress
}

// ControlsChanged carries the current control state.
type ControlsChanged struct {
	Controls Controls
}

// RunSettled is sent once per generation run, after its turns were appended.
type RunSettled struct {
	Result generation.Result
}

// ModelStateChanged is sent on every lifecycle transition.
type ModelStateChanged struct {
	Snapshot lifecycle.Snapshot
}

// ConversationReset is sent after the transcript was cleared.
type ConversationReset struct{}

func (StatusChanged) sessionEvent()     {}
func (TurnAppended) sessionEvent()      {}
func (ContentUpdated) sessionEvent()    {}
func (LoadProgress) sessionEvent()      {}
func (ControlsChanged) sessionEvent()   {}
func (RunSettled) sessionEvent()        {}
func (ModelStateChanged) sessionEvent() {}
func (ConversationReset) sessionEvent() {}

// Listener receives session events.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) { f(e) }

// =============================================================================
// CONTROLS
// =============================================================================

// Controls reports which user actions are allowed.
type Controls struct {
	Send   bool
	Input  bool
	Stop   bool
	Load   bool
	Unload bool
}

// deriveControls computes Controls from the session state. A failed load
// re-enables Load.
func deriveControls(state lifecycle.State, busy, accelerated bool) Controls {
	ready := state == lifecycle.Ready
	return Controls{
		Send:   ready && !busy,
		Input:  ready && !busy,
		Stop:   busy,
		Load:   accelerated && (state == lifecycle.Unloaded || state == lifecycle.Failed) && !busy,
		Unload: ready && !busy,
	}
}
