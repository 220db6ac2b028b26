// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

// ErrEmptyTemplate is returned by ParseTemplate for a model without a template.
var ErrEmptyTemplate = errors.New("model has no prompt template")

// responseMarker stands in for the unwritten assistant reply so the prompt
// can be cut where generation starts.
const responseMarker = "\x00rigchat-response\x00"

// templateFuncs mirrors the helper functions the Ollama server exposes to
// model templates.
var templateFuncs = template.FuncMap{
	"json": func(v any) string {
		b, _ := json.Marshal(v)
		return string(b)
	},
	"currentDate": func() string {
		return time.Now().Format("2006-01-02")
	},
	"yesterdayDate": func() string {
		return time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	},
	"toTypeScriptType": func(v any) string {
		return "any"
	},
}

// Template renders conversations with a model's Go text/template prompt
// format, as returned by /api/show.
type Template struct {
	raw          string
	tmpl         *template.Template
	usesMessages bool
}

// ParseTemplate parses a model template.
func ParseTemplate(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyTemplate
	}
	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model template: %w", err)
	}
	return &Template{
		raw:          raw,
		tmpl:         tmpl,
		usesMessages: strings.Contains(raw, ".Messages"),
	}, nil
}

// Raw returns the unparsed template text.
func (t *Template) Raw() string {
	return t.raw
}

// Render produces the prompt for turns. With addGenerationPrompt the output
// ends where the assistant's reply begins.
func (t *Template) Render(turns []model.Turn, addGenerationPrompt bool) (string, error) {
	if t.usesMessages {
		return t.renderMessages(turns)
	}
	return t.renderLegacy(turns, addGenerationPrompt)
}

// renderMessages handles templates that iterate .Messages themselves and
// emit their own generation prompt.
func (t *Template) renderMessages(turns []model.Turn) (string, error) {
	messages := make([]map[string]any, 0, len(turns))
	system := ""
	for _, turn := range turns {
		if turn.Role == model.RoleSystem && system == "" {
			system = turn.Content
		}
		messages = append(messages, map[string]any{
			"Role":      turn.Role.String(),
			"Content":   turn.Content,
			"ToolCalls": nil,
			"Thinking":  "",
		})
	}

	return t.execute(map[string]any{
		"Messages":   messages,
		"System":     system,
		"Prompt":     "",
		"Response":   "",
		"Tools":      nil,
		"Think":      false,
		"IsThinkSet": false,
	})
}

type exchange struct {
	prompt   string
	response string
	answered bool
}

// renderLegacy handles .System/.Prompt/.Response templates by rendering
// once per exchange. The system prompt goes into the first exchange only.
func (t *Template) renderLegacy(turns []model.Turn, addGenerationPrompt bool) (string, error) {
	var systems []string
	var exchanges []exchange
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleSystem:
			systems = append(systems, turn.Content)
		case model.RoleAssistant:
			if n := len(exchanges); n > 0 && !exchanges[n-1].answered {
				exchanges[n-1].response = turn.Content
				exchanges[n-1].answered = true
			} else {
				exchanges = append(exchanges, exchange{response: turn.Content, answered: true})
			}
		default:
			exchanges = append(exchanges, exchange{prompt: turn.Content})
		}
	}
	if len(exchanges) == 0 {
		exchanges = append(exchanges, exchange{})
	}

	var b strings.Builder
	for i, ex := range exchanges {
		data := map[string]any{
			"System":   "",
			"Prompt":   ex.prompt,
			"Response": ex.response,
		}
		if i == 0 {
			data["System"] = strings.Join(systems, "\n\n")
		}

		open := i == len(exchanges)-1 && !ex.answered && addGenerationPrompt
		if open {
			data["Response"] = responseMarker
		}

		out, err := t.execute(data)
		if err != nil {
			return "", err
		}
		if open {
			if idx := strings.Index(out, responseMarker); idx >= 0 {
				out = out[:idx]
			}
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

func (t *Template) execute(data map[string]any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render model template: %w", err)
	}
	return b.String(), nil
}
