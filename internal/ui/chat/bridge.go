// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/session"
)

// Bridge connects a session to a running program. It implements both
// session.Listener and lifecycle.Confirmer.
//
// Events sent before Attach are dropped; the view reads the initial state
// from the session when it is built.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// NewBridge creates a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach starts delivering messages through send, usually
// (*tea.Program).Send. A nil send detaches the bridge.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// OnEvent implements session.Listener.
func (b *Bridge) OnEvent(e session.Event) {
	b.post(EventMsg{Event: e})
}

// ConfirmFallback implements lifecycle.Confirmer. It blocks until the user
// answers or ctx ends, and declines when no program is attached.
func (b *Bridge) ConfirmFallback(ctx context.Context, primaryID, fallbackID string, cause error) bool {
	msg := ConfirmFallbackMsg{
		Primary:  primaryID,
		Fallback: fallbackID,
		reply:    make(chan bool, 1),
	}
	if cause != nil {
		msg.Cause = cause.Error()
	}
	if !b.post(msg) {
		return false
	}

	select {
	case ok := <-msg.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (b *Bridge) post(msg tea.Msg) bool {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}
