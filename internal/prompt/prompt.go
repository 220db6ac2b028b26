// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt turns settings, bounded history and new user input into
// the prompt text sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/model"
)

// HistoryWindow is the number of history turns included in a prompt
// (six user/assistant pairs).
const HistoryWindow = 12

// =============================================================================
// CAPABILITY
// =============================================================================

// Capability is the prompt rendering capability of the loaded model. It is
// chosen once at load time.
type Capability struct {
	templater engine.ChatTemplater
}

// PlainTextOnly renders every prompt with the textual fallback.
func PlainTextOnly() Capability {
	return Capability{}
}

// HasChatTemplate renders prompts with t, falling back on any failure.
func HasChatTemplate(t engine.ChatTemplater) Capability {
	return Capability{templater: t}
}

// CapabilityFor picks the capability of a loaded tokenizer.
func CapabilityFor(tok engine.Tokenizer) Capability {
	if t, ok := tok.(engine.ChatTemplater); ok {
		return HasChatTemplate(t)
	}
	return PlainTextOnly()
}

// Templated reports whether a chat template is available.
func (c Capability) Templated() bool {
	return c.templater != nil
}

func (c Capability) String() string {
	if c.Templated() {
		return "chat-template"
	}
	return "plain-text"
}

// =============================================================================
// COMPILER
// =============================================================================

// BuildTurns assembles the prompt turns: the system prompt if non-empty,
// the last HistoryWindow non-annotation turns of history, then input as
// a user turn.
func BuildTurns(settings model.Settings, history []model.Turn, input string) []model.Turn {
	turns := make([]model.Turn, 0, HistoryWindow+2)
	if settings.SystemPrompt != "" {
		turns = append(turns, model.NewTurn(model.RoleSystem, settings.SystemPrompt))
	}

	window := make([]model.Turn, 0, len(history))
	for _, turn := range history {
		if turn.Annotation {
			continue
		}
		window = append(window, turn)
	}
	if len(window) > HistoryWindow {
		window = window[len(window)-HistoryWindow:]
	}
	turns = append(turns, window...)

	return append(turns, model.NewTurn(model.RoleUser, input))
}

// Compile returns the prompt for input. With a chat template the template
// output is used unless it errors, panics or renders only whitespace; the
// textual fallback is used otherwise.
func Compile(capability Capability, settings model.Settings, history []model.Turn, input string) string {
	turns := BuildTurns(settings, history, input)

	if capability.templater != nil {
		if out, err := applyTemplate(capability.templater, turns); err == nil && strings.TrimSpace(out) != "" {
			return out
		}
	}
	return Fallback(turns)
}

// applyTemplate calls the templater, converting a panic into an error.
func applyTemplate(t engine.ChatTemplater, turns []model.Turn) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat template panicked: %v", r)
		}
	}()
	return t.ApplyChatTemplate(model.CloneTurns(turns), engine.TemplateOptions{
		AddGenerationPrompt: true,
		Tokenize:            false,
	})
}

// Fallback renders turns as "<Role>: <content>" lines followed by a final
// "Assistant:" cue.
func Fallback(turns []model.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString(turn.Role.DisplayName())
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteString("Assistant:")
	return b.String()
}
