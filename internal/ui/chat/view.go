// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

const streamCursor = "▌"

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	body := m.viewport.View()
	if m.confirm != nil {
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, m.renderConfirm())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderProgress(),
		m.renderStatus(),
		m.input.View(),
		m.renderHelp(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.Header.Render("rigchat")

	var label string
	switch m.snapshot.State {
	case lifecycle.Ready:
		label = m.snapshot.ModelID
		if m.snapshot.Fallback {
			label += " (fallback)"
		}
	case lifecycle.Loading:
		label = "loading " + m.snapshot.Target
	default:
		label = "no model"
	}

	room := m.width - lipgloss.Width(title) - 1
	return title + " " + m.theme.HeaderModel.Render(util.TruncateWidth(label, room))
}

func (m Model) renderProgress() string {
	if m.snapshot.State != lifecycle.Loading {
		return ""
	}
	line := m.spinner.View() + " "
	if m.load.Total > 0 {
		line += m.progress.ViewAs(m.load.Fraction()) + " "
	}
	if m.load.File != "" {
		line += m.load.File
	} else if m.load.Stage != "" {
		line += m.load.Stage
	}
	return util.TruncateWidth(line, m.width)
}

func (m Model) renderStatus() string {
	style := m.theme.Status
	switch {
	case m.controls.Stop, m.snapshot.State == lifecycle.Loading:
		style = m.theme.StatusBusy
	case m.snapshot.State == lifecycle.Failed:
		style = m.theme.StatusFailed
	case m.snapshot.State == lifecycle.Ready:
		style = m.theme.StatusReady
	}

	line := style.Render(util.TruncateWidth(m.status, m.width))
	if m.notice != "" {
		room := m.width - lipgloss.Width(line) - 3
		if room > 0 {
			line += " · " + m.theme.Notice.Render(util.TruncateWidth(m.notice, room))
		}
	}
	return line
}

func (m Model) renderHelp() string {
	var keys string
	switch {
	case m.confirm != nil:
		keys = "y accept · n decline"
	case m.controls.Stop:
		keys = "esc stop · pgup/pgdn scroll · ctrl+c quit"
	case m.controls.Load:
		keys = "ctrl+l load · /help commands · ctrl+c quit"
	default:
		keys = "enter send · /help commands · pgup/pgdn scroll · ctrl+c quit"
	}
	return m.theme.Help.Render(util.TruncateWidth(keys, m.width))
}

func (m Model) renderConfirm() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Model not supported"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s could not be loaded:\n%s\n\n", m.confirm.Primary, util.FirstLine(m.confirm.Cause))
	fmt.Fprintf(&b, "Load %s instead? [y/N]", m.confirm.Fallback)

	width := m.width - 8
	if width > 60 {
		width = 60
	}
	return m.theme.Overlay.Width(width).Render(b.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript() string {
	var b strings.Builder
	for _, turn := range m.turns {
		b.WriteString(m.renderTurn(turn))
		b.WriteString("\n")
	}

	switch {
	case m.streaming != "":
		b.WriteString(m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
		b.WriteString("\n")
		b.WriteString(m.contentStyle().Render(m.streaming + m.theme.Cursor.Render(streamCursor)))
		b.WriteString("\n")
	case m.controls.Stop:
		b.WriteString(m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderTurn(turn model.Turn) string {
	if turn.Annotation {
		return m.theme.ErrorLabel.Render("Error") + "\n" +
			m.theme.ErrorContent.Width(m.contentWidth()).Render(turn.Content) + "\n"
	}

	var label string
	switch turn.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(turn.Role.DisplayName())
	case model.RoleSystem:
		label = m.theme.SystemLabel.Render(turn.Role.DisplayName())
	default:
		label = m.theme.AssistantLabel.Render(turn.Role.DisplayName())
	}

	if turn.Role == model.RoleAssistant && m.markdown != nil {
		if out, err := m.markdown.Render(turn.Content); err == nil {
			return label + "\n" + strings.TrimRight(out, "\n") + "\n"
		}
	}
	return label + "\n" + m.contentStyle().Render(turn.Content) + "\n"
}

func (m Model) contentStyle() lipgloss.Style {
	return m.theme.Content.Width(m.contentWidth())
}

func (m Model) contentWidth() int {
	if w := m.width - 2; w > 10 {
		return w
	}
	return 10
}
