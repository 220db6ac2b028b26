// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

const helpText = "/load /unload /stop /reset /clear-cache /set <key> <value> /settings [reset] /quit"

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case AppearanceMsg:
		m.theme = styles.NewTheme(msg.Theme)
		m.opts.Markdown = msg.Markdown
		m.markdown = nil
		m.input.Prompt = m.theme.InputPrompt.Render("› ")
		m.spinner.Style = m.theme.StatusBusy
		return m.resize(m.width, m.height), nil

	case ConfirmFallbackMsg:
		m.confirm = &msg
		m.input.Blur()
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		return m, nil

	case submitDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.streaming == "" && m.controls.Stop {
			m.refreshTranscript()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		return m.handleConfirmKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		m.session.Stop()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.controls.Stop {
			m.session.Stop()
		}
		return m, nil

	case "ctrl+l":
		if !m.controls.Load {
			m.notice = "Load is not available"
			return m, nil
		}
		return m, m.loadCmd()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		if strings.HasPrefix(line, "/") {
			m.input.Reset()
			return m.runCommand(line)
		}
		if !m.controls.Send {
			m.notice = "Model is not ready"
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, m.submitCmd(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleConfirmKey answers the fallback overlay. Only y accepts.
func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.confirm.Answer(true)
	case "n", "N", "esc", "enter":
		m.confirm.Answer(false)
	case "ctrl+c":
		m.confirm.Answer(false)
		m.quitting = true
		m.confirm = nil
		return m, tea.Quit
	default:
		return m, nil
	}
	m.confirm = nil
	m.input.Focus()
	return m, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	m.notice = ""

	switch strings.ToLower(name) {
	case "/load":
		if !m.controls.Load {
			m.notice = "Load is not available"
			return m, nil
		}
		return m, m.loadCmd()

	case "/unload":
		return m, m.action("unload", m.session.UnloadModel)

	case "/stop":
		m.session.Stop()
		return m, nil

	case "/reset":
		return m, m.action("reset", m.session.ResetConversation)

	case "/clear-cache":
		return m, m.action("clear cache", func() error {
			m.session.ClearCache()
			return nil
		})

	case "/set":
		key, value, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(value) == "" {
			m.notice = "usage: /set <key> <value>"
			return m, nil
		}
		var input storage.SettingsInput
		if err := input.Set(key, strings.TrimSpace(value)); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.action("set", func() error {
			m.session.SaveSettings(input)
			return nil
		})

	case "/settings":
		if strings.EqualFold(rest, "reset") {
			return m, m.action("reset settings", func() error {
				m.session.ResetSettings()
				return nil
			})
		}
		m.notice = formatSettings(m.session.Settings())
		return m, nil

	case "/help":
		m.notice = helpText
		return m, nil

	case "/quit", "/exit":
		m.session.Stop()
		m.quitting = true
		return m, tea.Quit
	}

	m.notice = fmt.Sprintf("unknown command %s (try /help)", name)
	return m, nil
}

func (m Model) loadCmd() tea.Cmd {
	return m.action("load", func() error {
		return m.session.LoadModel(m.ctx)
	})
}

func (m Model) submitCmd(text string) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		result, err := s.Submit(ctx, text)
		return submitDoneMsg{result: result, err: err}
	}
}

// action runs fn off the event loop and reports its error.
func (m Model) action(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{op: op, err: fn()}
	}
}

func formatSettings(s model.Settings) string {
	return fmt.Sprintf("temperature=%.2f top_p=%.2f top_k=%d repetition_penalty=%.2f max_new_tokens=%d",
		s.Temperature, s.TopP, s.TopK, s.RepetitionPenalty, s.MaxNewTokens)
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

func (m *Model) handleEvent(e session.Event) {
	switch e := e.(type) {
	case session.StatusChanged:
		m.status = e.Text

	case session.TurnAppended:
		m.turns = append(m.turns, e.Turn)
		if e.Turn.Role == model.RoleAssistant {
			m.streaming = ""
		}

	case session.ContentUpdated:
		m.streaming = e.Text

	case session.RunSettled:
		m.streaming = ""

	case session.LoadProgress:
		m.load = e.Progress

	case session.ControlsChanged:
		m.controls = e.Controls

	case session.ModelStateChanged:
		m.snapshot = e.Snapshot
		if e.Snapshot.State != lifecycle.Loading {
			m.load = engine.Progress{}
		}

	case session.ConversationReset:
		m.turns = nil
		m.streaming = ""
	}
	m.refreshTranscript()
}
