// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat session.
package model

import "strings"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns the capitalized role label used in plain-text prompts.
// Unknown roles render as "User".
func (r Role) DisplayName() string {
	switch r {
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return "User"
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// =============================================================================
// TURN TYPE
// =============================================================================

// ErrorAnnotationPrefix marks the content of a generation error annotation.
const ErrorAnnotationPrefix = "[Error] "

// Turn is one message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Annotation marks turns that record a generation error. They are shown
	// in the transcript but never sent back to the model.
	Annotation bool `json:"annotation,omitempty"`
}

// NewTurn creates a turn with the given role and content.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content}
}

// NewErrorAnnotation creates the transcript entry recorded after a failed
// generation.
func NewErrorAnnotation(message string) Turn {
	return Turn{
		Role:       RoleAssistant,
		Content:    ErrorAnnotationPrefix + message,
		Annotation: true,
	}
}

// IsEmpty returns true if the turn has no visible content.
func (t Turn) IsEmpty() bool {
	return strings.TrimSpace(t.Content) == ""
}

// CloneTurns returns a copy of turns that shares no backing array.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return []Turn{}
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
