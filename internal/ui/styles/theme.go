// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds the styles of the chat view.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	Header      lipgloss.Style
	HeaderModel lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	ErrorLabel     lipgloss.Style
	Content        lipgloss.Style
	ErrorContent   lipgloss.Style
	Cursor         lipgloss.Style

	Status       lipgloss.Style
	StatusReady  lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusFailed lipgloss.Style
	Diagnostics  lipgloss.Style
	Notice       lipgloss.Style

	InputPrompt lipgloss.Style
	Help        lipgloss.Style

	Overlay      lipgloss.Style
	OverlayTitle lipgloss.Style
}

// NewTheme creates the named theme ("dark" or "light"). Unknown names fall
// back to the terminal's background.
func NewTheme(name string) *Theme {
	profile := termenv.EnvColorProfile()

	var isDark bool
	switch name {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
		name = ThemeLight
		if isDark {
			name = ThemeDark
		}
	}

	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{Name: name, IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderModel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.ErrorLabel = lipgloss.NewStyle().Bold(true).Foreground(Rose)

	t.Content = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.ErrorContent = lipgloss.NewStyle().Foreground(Rose).Italic(true).PaddingLeft(2)
	t.Cursor = lipgloss.NewStyle().Foreground(Purple)

	t.Status = lipgloss.NewStyle().Foreground(TextSecondary)
	t.StatusReady = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusFailed = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Diagnostics = lipgloss.NewStyle().Foreground(TextMuted)
	t.Notice = lipgloss.NewStyle().Foreground(Amber)

	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)

	t.Overlay = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(1, 2)
	t.OverlayTitle = lipgloss.NewStyle().Bold(true).Foreground(Amber)
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
