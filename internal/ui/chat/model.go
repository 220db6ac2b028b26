// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// Default size used until the first WindowSizeMsg.
const (
	defaultWidth  = 80
	defaultHeight = 24

	// chromeHeight is the number of rows around the transcript: header,
	// progress, status, input and help.
	chromeHeight = 5
)

// Options configures the chat view.
type Options struct {
	// Markdown renders assistant turns through glamour.
	Markdown bool

	// AutoLoad starts loading the model when the program starts.
	AutoLoad bool
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat view.
type Model struct {
	ctx     context.Context
	session *session.Session
	theme   *styles.Theme
	opts    Options

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	progress progress.Model
	markdown *glamour.TermRenderer

	width  int
	height int

	turns     []model.Turn
	streaming string
	status    string
	notice    string
	controls  session.Controls
	snapshot  lifecycle.Snapshot
	load      engine.Progress
	confirm   *ConfirmFallbackMsg
	quitting  bool
}

// New creates the chat view for s. ctx bounds the session operations the
// view starts.
func New(ctx context.Context, s *session.Session, theme *styles.Theme, opts Options) Model {
	if theme == nil {
		theme = styles.NewTheme(styles.ThemeDark)
	}

	input := textinput.New()
	input.Prompt = theme.InputPrompt.Render("› ")
	input.Placeholder = "Type a message or /help"
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.StatusBusy

	m := Model{
		ctx:      ctx,
		session:  s,
		theme:    theme,
		opts:     opts,
		input:    input,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		spinner:  sp,
		progress: progress.New(
			progress.WithGradient(styles.GradientStart, styles.GradientEnd),
			progress.WithoutPercentage(),
		),
		turns:    s.Transcript(),
		status:   s.Status(),
		controls: s.Controls(),
		snapshot: s.Model(),
	}
	m = m.resize(defaultWidth, defaultHeight)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.opts.AutoLoad && m.controls.Load {
		cmds = append(cmds, m.loadCmd())
	}
	return tea.Batch(cmds...)
}

// Status returns the status line shown by the view.
func (m Model) Status() string {
	return m.status
}

// Turns returns the transcript shown by the view.
func (m Model) Turns() []model.Turn {
	return model.CloneTurns(m.turns)
}

// Streaming returns the text of the reply in progress.
func (m Model) Streaming() string {
	return m.streaming
}

// Notice returns the last command feedback line.
func (m Model) Notice() string {
	return m.notice
}

// Confirming reports whether the fallback overlay is open.
func (m Model) Confirming() bool {
	return m.confirm != nil
}

// resize lays the view out for a width x height terminal.
func (m Model) resize(width, height int) Model {
	m.width = width
	m.height = height

	vpHeight := height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.input.Width = width - 4
	m.progress.Width = width / 2

	if m.opts.Markdown {
		wrap := width - 4
		if wrap < 20 {
			wrap = 20
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			m.markdown = r
		}
	}

	m.refreshTranscript()
	return m
}

// refreshTranscript re-renders the viewport, following the bottom when
// the user has not scrolled away.
func (m *Model) refreshTranscript() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
