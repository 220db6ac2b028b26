// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// Command output shares the chat view palette. Colors drop out when stdout
// is not a color terminal.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
	successStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)
	warningStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Amber)
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)
	dimStyle       = lipgloss.NewStyle().Foreground(styles.TextMuted)
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	separatorStyle = lipgloss.NewStyle().Foreground(styles.Overlay)
)
