// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/engine/enginetest"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// FIXTURES
// =============================================================================

type staticGate bool

func (g staticGate) HasAcceleratedBackend(context.Context) bool { return bool(g) }

func newTestSession(script enginetest.Script, gate session.Gate, listener session.Listener, confirmer lifecycle.Confirmer) *session.Session {
	return session.New(session.Options{
		Engine:        &enginetest.Engine{Script: script},
		PrimaryModel:  "qwen3:1.7b",
		FallbackModel: "qwen2.5:0.5b-instruct",
		Device:        "gpu",
		Gate:          gate,
		Confirmer:     confirmer,
		Listener:      listener,
	})
}

// =============================================================================
// ASK
// =============================================================================

func TestAskStreamsAnswer(t *testing.T) {
	var out, errOut bytes.Buffer
	printer := &streamPrinter{out: &out, stream: true}
	s := newTestSession(enginetest.Script{Tokens: []string{"Hel", "lo"}, Final: "Hello!"}, staticGate(true), printer, nil)

	err := ask(context.Background(), s, printer, "hi", askOutput{out: &out, errOut: &errOut, stats: true})

	require.NoError(t, err)
	assert.Equal(t, "Hello!\n", out.String())
	assert.Contains(t, errOut.String(), "TTFT:")
	assert.Len(t, s.Transcript(), 2)
}

func TestAskRendersMarkdown(t *testing.T) {
	var out bytes.Buffer
	printer := &streamPrinter{out: &out, stream: false}
	s := newTestSession(enginetest.Script{Final: "# Title\n\nSome *text*."}, staticGate(true), printer, nil)

	err := ask(context.Background(), s, printer, "hi", askOutput{
		out:           &out,
		errOut:        io.Discard,
		markdownStyle: "notty",
		width:         80,
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Title")
	assert.Contains(t, out.String(), "text")
}

func TestAskWithoutAccelerator(t *testing.T) {
	var out bytes.Buffer
	printer := &streamPrinter{out: &out, stream: true}
	s := newTestSession(enginetest.Script{Final: "x"}, staticGate(false), printer, nil)

	err := ask(context.Background(), s, printer, "hi", askOutput{out: &out, errOut: io.Discard})

	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNoAccelerator))
	assert.Contains(t, err.Error(), "require_accelerator")
	assert.Empty(t, out.String())
}

func TestAskGenerationFailure(t *testing.T) {
	var out bytes.Buffer
	printer := &streamPrinter{out: &out, stream: true}
	s := newTestSession(enginetest.Script{Tokens: []string{"par"}, Err: errors.New("boom")}, staticGate(true), printer, nil)

	err := ask(context.Background(), s, printer, "hi", askOutput{out: &out, errOut: io.Discard})

	require.Error(t, err)
	assert.Contains(t, err.Error(), session.StatusGenerationError)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "par\n", out.String())
}

func TestAskFallbackDeclined(t *testing.T) {
	eng := &enginetest.Engine{PipelineErrs: map[string]error{
		"qwen3:1.7b": errors.New("unknown model architecture: 'qwen3'"),
	}}
	no := false
	var errOut bytes.Buffer
	confirmer := &lineConfirmer{out: &errOut, assume: &no}
	printer := &streamPrinter{out: io.Discard}
	s := session.New(session.Options{
		Engine:        eng,
		PrimaryModel:  "qwen3:1.7b",
		FallbackModel: "qwen2.5:0.5b-instruct",
		Confirmer:     confirmer,
		Listener:      printer,
	})

	err := ask(context.Background(), s, printer, "hi", askOutput{out: io.Discard, errOut: io.Discard})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
	assert.Contains(t, errOut.String(), "qwen3:1.7b could not be loaded")
}

// =============================================================================
// PRINTER
// =============================================================================

func TestStreamPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &streamPrinter{out: &out, stream: true}

	p.begin()
	p.OnEvent(session.ContentUpdated{Text: "Hel"})
	p.OnEvent(session.ContentUpdated{Text: "Hello"})
	p.OnEvent(session.ContentUpdated{Text: "Hello"})
	assert.Equal(t, "Hello", out.String())

	assert.True(t, p.finish("Hello, world"))
	assert.Equal(t, "Hello, world\n", out.String())

	out.Reset()
	p.begin()
	assert.False(t, p.finish(""))
	assert.Empty(t, out.String())
}

func TestStreamPrinterLoadProgress(t *testing.T) {
	var status bytes.Buffer
	p := &streamPrinter{out: io.Discard, status: &status}

	p.OnEvent(session.ModelStateChanged{Snapshot: lifecycle.Snapshot{State: lifecycle.Loading, Target: "qwen3:1.7b"}})
	p.OnEvent(session.LoadProgress{})
	p.OnEvent(session.ModelStateChanged{Snapshot: lifecycle.Snapshot{State: lifecycle.Ready, ModelID: "qwen3:1.7b"}})

	assert.Contains(t, status.String(), "qwen3:1.7b")
}

// =============================================================================
// CONFIRMATION
// =============================================================================

type scriptedLines struct {
	lines   []string
	prompts []string
	history []string
}

func (s *scriptedLines) Prompt(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func TestLineConfirmer(t *testing.T) {
	cause := errors.New("unknown model architecture\nmore detail")

	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"yes", "y", true},
		{"yes word", " YES ", true},
		{"empty declines", "", false},
		{"no", "n", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			lines := &scriptedLines{lines: []string{tc.answer}}
			c := &lineConfirmer{out: &out, line: lines}

			assert.Equal(t, tc.want, c.ConfirmFallback(context.Background(), "a:1b", "b:0.5b", cause))
			assert.Equal(t, []string{"Load b:0.5b instead? [y/N] "}, lines.prompts)
			assert.Contains(t, out.String(), "a:1b could not be loaded: unknown model architecture")
			assert.NotContains(t, out.String(), "more detail")
		})
	}
}

func TestLineConfirmerAssume(t *testing.T) {
	yes := true
	lines := &scriptedLines{}
	c := &lineConfirmer{out: io.Discard, line: lines, assume: &yes}

	assert.True(t, c.ConfirmFallback(context.Background(), "a", "b", nil))
	assert.Empty(t, lines.prompts)
}

func TestLineConfirmerPromptError(t *testing.T) {
	c := &lineConfirmer{out: io.Discard, line: &scriptedLines{}}
	assert.False(t, c.ConfirmFallback(context.Background(), "a", "b", nil))
}
