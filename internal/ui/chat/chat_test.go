// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/engine/enginetest"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// FIXTURES
// =============================================================================

// eventQueue collects session events so tests can feed them to the view
// in order.
type eventQueue struct {
	mu     sync.Mutex
	events []session.Event
}

func (q *eventQueue) OnEvent(e session.Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *eventQueue) drain() []session.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

type fixture struct {
	t       *testing.T
	session *session.Session
	queue   *eventQueue
	model   Model
}

func newFixture(t *testing.T, script enginetest.Script, loaded bool) *fixture {
	t.Helper()
	queue := &eventQueue{}
	s := session.New(session.Options{
		Engine:        &enginetest.Engine{Script: script},
		PrimaryModel:  "qwen3:1.7b",
		FallbackModel: "qwen2.5:0.5b-instruct",
		Device:        "gpu",
		Listener:      queue,
	})
	if loaded {
		require.NoError(t, s.LoadModel(context.Background()))
		queue.drain()
	}
	return &fixture{
		t:       t,
		session: s,
		queue:   queue,
		model:   New(context.Background(), s, styles.NewTheme(styles.ThemeDark), Options{}),
	}
}

// send runs msg through Update, executes the returned command once and
// replays the events it produced.
func (f *fixture) send(msg tea.Msg) tea.Msg {
	f.t.Helper()
	next, cmd := f.model.Update(msg)
	f.model = next.(Model)

	var out tea.Msg
	if cmd != nil {
		out = cmd()
	}
	f.flush()
	if out != nil {
		if _, quit := out.(tea.QuitMsg); !quit {
			next, _ = f.model.Update(out)
			f.model = next.(Model)
		}
	}
	return out
}

func (f *fixture) flush() {
	for _, e := range f.queue.drain() {
		next, _ := f.model.Update(EventMsg{Event: e})
		f.model = next.(Model)
	}
}

func (f *fixture) typeLine(line string) tea.Msg {
	f.model.input.SetValue(line)
	return f.send(tea.KeyMsg{Type: tea.KeyEnter})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitAppendsTurns(t *testing.T) {
	f := newFixture(t, enginetest.Script{Tokens: []string{"Hel", "lo"}, Final: "Hello"}, true)

	out := f.typeLine("hi")

	done, ok := out.(submitDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	turns := f.model.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, model.NewTurn(model.RoleUser, "hi"), turns[0])
	assert.Equal(t, model.NewTurn(model.RoleAssistant, "Hello"), turns[1])
	assert.Empty(t, f.model.Streaming())
	assert.Contains(t, f.model.Status(), "TTFT:")
	assert.Empty(t, f.model.input.Value())
}

func TestEnterRefusedWhenNotReady(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, false)

	out := f.typeLine("hi")

	assert.Nil(t, out)
	assert.Equal(t, "Model is not ready", f.model.Notice())
	assert.Equal(t, "hi", f.model.input.Value())
	assert.Empty(t, f.model.Turns())
}

func TestBlankEnterIgnored(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	assert.Nil(t, f.typeLine("   "))
	assert.Empty(t, f.model.Turns())
}

func TestFailedRunShowsAnnotation(t *testing.T) {
	f := newFixture(t, enginetest.Script{Tokens: []string{"par"}, Err: errors.New("boom")}, true)

	f.typeLine("hi")

	turns := f.model.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "par", turns[1].Content)
	assert.True(t, turns[2].Annotation)
	assert.Contains(t, f.model.View(), "Error")
	assert.Contains(t, f.model.View(), "boom")
}

// =============================================================================
// EVENTS
// =============================================================================

func TestStreamingTextRendersWithCursor(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	next, _ := f.model.Update(EventMsg{Event: session.ContentUpdated{RunID: "r", Text: "Partial answer"}})
	f.model = next.(Model)

	view := f.model.View()
	assert.Contains(t, view, "Partial answer")
	assert.Contains(t, view, streamCursor)

	next, _ = f.model.Update(EventMsg{Event: session.TurnAppended{Turn: model.NewTurn(model.RoleAssistant, "Partial answer")}})
	f.model = next.(Model)
	assert.Empty(t, f.model.Streaming())
	assert.NotContains(t, f.model.View(), streamCursor)
}

func TestConversationResetClearsView(t *testing.T) {
	f := newFixture(t, enginetest.Script{Final: "ok"}, true)
	f.typeLine("hi")
	require.NotEmpty(t, f.model.Turns())

	f.typeLine("/reset")

	assert.Empty(t, f.model.Turns())
	assert.Equal(t, session.StatusConversationReset, f.model.Status())
}

func TestLoadProgressShownWhileLoading(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, false)

	for _, e := range []session.Event{
		session.ModelStateChanged{Snapshot: lifecycle.Snapshot{State: lifecycle.Loading, Target: "qwen3:1.7b"}},
		session.LoadProgress{},
	} {
		next, _ := f.model.Update(EventMsg{Event: e})
		f.model = next.(Model)
	}
	assert.Contains(t, f.model.View(), "loading qwen3:1.7b")

	next, _ := f.model.Update(EventMsg{Event: session.ModelStateChanged{Snapshot: lifecycle.Snapshot{State: lifecycle.Ready, ModelID: "qwen3:1.7b"}}})
	f.model = next.(Model)
	assert.NotContains(t, f.model.View(), "loading qwen3:1.7b")
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestLoadCommand(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, false)

	f.typeLine("/load")

	assert.Equal(t, session.StatusReady, f.model.Status())
	assert.True(t, f.model.controls.Send)
	assert.Contains(t, f.model.View(), "qwen3:1.7b")
}

func TestSetCommandSavesSettings(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	f.typeLine("/set temperature 0.2")

	assert.InDelta(t, 0.2, f.session.Settings().Temperature, 1e-9)
	assert.Equal(t, session.StatusSettingsSaved, f.model.Status())
}

func TestSetCommandKeepsSpacesInValue(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	f.typeLine("/set system_prompt You are terse.")

	assert.Equal(t, "You are terse.", f.session.Settings().SystemPrompt)
}

func TestSetCommandErrors(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	f.typeLine("/set temperature")
	assert.Equal(t, "usage: /set <key> <value>", f.model.Notice())

	f.typeLine("/set colour red")
	assert.Contains(t, f.model.Notice(), "unknown setting")
}

func TestSettingsResetCommand(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)
	f.typeLine("/set top_k 3")

	f.typeLine("/settings reset")

	assert.Equal(t, model.DefaultSettings(), f.session.Settings())
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	f.typeLine("/dance")

	assert.Contains(t, f.model.Notice(), "unknown command /dance")
}

func TestUnloadWhileIdle(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	f.typeLine("/unload")

	assert.Equal(t, session.StatusUnloaded, f.model.Status())
	assert.False(t, f.model.controls.Send)
	assert.Empty(t, f.model.Notice())
}

func TestQuitKeys(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)

	out := f.send(tea.KeyMsg{Type: tea.KeyCtrlC})

	_, ok := out.(tea.QuitMsg)
	assert.True(t, ok)
	assert.Empty(t, f.model.View())
}

// =============================================================================
// FALLBACK CONFIRMATION
// =============================================================================

func TestConfirmOverlayAccept(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, false)

	msgs := make(chan tea.Msg, 1)
	bridge := NewBridge()
	bridge.Attach(func(msg tea.Msg) { msgs <- msg })

	answer := make(chan bool, 1)
	go func() {
		answer <- bridge.ConfirmFallback(context.Background(), "qwen3:1.7b", "qwen2.5:0.5b-instruct", errors.New("unknown model architecture"))
	}()

	var confirm ConfirmFallbackMsg
	select {
	case msg := <-msgs:
		confirm = msg.(ConfirmFallbackMsg)
	case <-time.After(time.Second):
		t.Fatal("no confirmation message")
	}

	f.send(confirm)
	require.True(t, f.model.Confirming())
	view := f.model.View()
	assert.Contains(t, view, "Load qwen2.5:0.5b-instruct instead?")
	assert.Contains(t, view, "unknown model architecture")

	// Other keys leave the overlay open.
	f.send(key("x"))
	assert.True(t, f.model.Confirming())

	f.send(key("y"))
	assert.False(t, f.model.Confirming())

	select {
	case ok := <-answer:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("confirmation not answered")
	}
}

func TestConfirmOverlayDeclinesOnEnter(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, false)

	msg := ConfirmFallbackMsg{Primary: "a", Fallback: "b", reply: make(chan bool, 1)}
	f.send(msg)
	f.send(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, f.model.Confirming())
	assert.False(t, <-msg.reply)
}

func TestBridgeDetachedDeclines(t *testing.T) {
	bridge := NewBridge()
	assert.False(t, bridge.ConfirmFallback(context.Background(), "a", "b", nil))

	// Events before Attach are dropped.
	bridge.OnEvent(session.StatusChanged{Text: "x"})
}

func TestBridgeConfirmHonorsContext(t *testing.T) {
	bridge := NewBridge()
	bridge.Attach(func(tea.Msg) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, bridge.ConfirmFallback(ctx, "a", "b", errors.New("x")))
}

func TestBridgeForwardsEvents(t *testing.T) {
	var got []tea.Msg
	bridge := NewBridge()
	bridge.Attach(func(msg tea.Msg) { got = append(got, msg) })

	bridge.OnEvent(session.StatusChanged{Text: "Ready"})

	require.Len(t, got, 1)
	assert.Equal(t, EventMsg{Event: session.StatusChanged{Text: "Ready"}}, got[0])
}

func TestViewFitsNarrowTerminal(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)
	f.send(tea.WindowSizeMsg{Width: 30, Height: 10})

	f.model.notice = strings.Repeat("n", 100)
	assert.LessOrEqual(t, lipgloss.Width(f.model.renderStatus()), 30)
	assert.LessOrEqual(t, lipgloss.Width(f.model.renderHelp()), 30)
	assert.Equal(t, 5, f.model.viewport.Height)
}

func TestAppearanceMsgSwitchesTheme(t *testing.T) {
	f := newFixture(t, enginetest.Script{}, true)
	require.Nil(t, f.model.markdown)

	f.send(AppearanceMsg{Theme: styles.ThemeLight, Markdown: true})

	assert.Equal(t, styles.ThemeLight, f.model.theme.Name)
	assert.NotNil(t, f.model.markdown)

	f.send(AppearanceMsg{Theme: styles.ThemeDark, Markdown: false})
	assert.Nil(t, f.model.markdown)
}
