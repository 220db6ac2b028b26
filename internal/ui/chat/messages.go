// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/rigchat/internal/generation"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// EventMsg wraps a session event delivered to the program.
type EventMsg struct {
	Event session.Event
}

// ConfirmFallbackMsg asks the user whether to load the fallback model after
// the primary one failed as unsupported.
type ConfirmFallbackMsg struct {
	Primary  string
	Fallback string
	Cause    string

	reply chan bool
}

// Answer delivers the user's decision. Only the first answer counts.
func (m ConfirmFallbackMsg) Answer(ok bool) {
	if m.reply == nil {
		return
	}
	select {
	case m.reply <- ok:
	default:
	}
}

// AppearanceMsg switches the theme and markdown rendering, e.g. after the
// config file was edited.
type AppearanceMsg struct {
	Theme    string
	Markdown bool
}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// actionDoneMsg reports the outcome of a session operation run as a command.
type actionDoneMsg struct {
	op  string
	err error
}

// submitDoneMsg is sent when a submitted message settled or was refused.
type submitDoneMsg struct {
	result generation.Result
	err    error
}
