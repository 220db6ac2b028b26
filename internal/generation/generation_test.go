// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/rigchat/internal/engine/enginetest"
	"github.com/jeranaias/rigchat/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun_FinalTextSupersedes(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"Hel", "lo"}, Final: "Hello!"})

	var updates []string
	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), func(text string) {
		updates = append(updates, text)
	})

	assert.Equal(t, Completed, result.Outcome)
	assert.Equal(t, "Hello!", result.Text)
	assert.Equal(t, 2, result.TokenCount)
	assert.Equal(t, []string{"Hel", "Hello"}, updates)
	assert.NoError(t, result.Err)
	assert.False(t, c.Busy())
}

func TestRun_ShorterFinalIgnored(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"Hello", " world"}, Final: "Hello"})

	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), nil)
	assert.Equal(t, "Hello world", result.Text)
	assert.Equal(t, Completed, result.Outcome)
}

func TestRun_EmptyIncrementsSkipped(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"", "a", "", "b"}})

	var updates []string
	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), func(text string) {
		updates = append(updates, text)
	})
	assert.Equal(t, 2, result.TokenCount)
	assert.Equal(t, []string{"a", "ab"}, updates)
	assert.Equal(t, "ab", result.Text)
}

func TestRun_CancelKeepsPartialText(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"Hi"}, WaitForCancel: true})

	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), func(string) {
		c.Cancel()
	})

	assert.Equal(t, Cancelled, result.Outcome)
	assert.Equal(t, "Hi", result.Text)
	assert.Equal(t, 1, result.TokenCount)
	assert.NoError(t, result.Err)
	assert.Zero(t, result.TokensPerSecond)
	assert.False(t, c.Busy())
}

func TestRun_ParentContextCancelled(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{WaitForCancel: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := c.Run(ctx, pipe, "p", model.DefaultSettings(), nil)
	assert.Equal(t, Cancelled, result.Outcome)
	assert.Empty(t, result.Text)
}

func TestRun_FailureKeepsPartialText(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"par"}, Err: errors.New("out of memory")})

	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), nil)
	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, "par", result.Text)
	assert.Equal(t, "out of memory", result.ErrMessage())
}

func TestRun_NoTokens(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{})

	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), nil)
	_, ok := result.TimeToFirstToken()
	assert.False(t, ok)
	assert.Zero(t, result.TokensPerSecond)
	assert.Equal(t, "TTFT: n/a ms, tok/s: 0.0", result.Diagnostics())
}

func TestRun_PassesSettings(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Final: "ok"})

	settings := model.Settings{Temperature: 0.2, TopP: 0.5, TopK: 7, RepetitionPenalty: 1.3, MaxNewTokens: 64}
	c.Run(context.Background(), pipe, "the prompt", settings, nil)

	opts := pipe.LastOptions()
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 0.5, opts.TopP)
	assert.Equal(t, 7, opts.TopK)
	assert.Equal(t, 1.3, opts.RepetitionPenalty)
	assert.Equal(t, 64, opts.MaxNewTokens)
	assert.Equal(t, []string{"the prompt"}, pipe.Prompts())
}

func TestRun_BusyWhileActive(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"x"}})

	var busy bool
	var runID string
	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), func(string) {
		busy = c.Busy()
		runID = c.ActiveRunID()
	})
	assert.True(t, busy)
	assert.Equal(t, result.RunID, runID)
	_, err := uuid.Parse(result.RunID)
	assert.NoError(t, err)
	assert.Empty(t, c.ActiveRunID())
}

func TestCancel_NoActiveRun(t *testing.T) {
	c := NewController(nil)
	c.Cancel()
	assert.False(t, c.Busy())

	pipe := enginetest.NewPipeline("m", enginetest.Script{Final: "ok"})
	result := c.Run(context.Background(), pipe, "p", model.DefaultSettings(), nil)
	assert.Equal(t, Completed, result.Outcome)
}

func TestCancel_BetweenReserveAndRun(t *testing.T) {
	c := NewController(nil)
	c.Reserve()
	assert.True(t, c.Busy())

	c.Cancel()

	pipe := enginetest.NewPipeline("m", enginetest.Script{WaitForCancel: true})
	done := make(chan Result, 1)
	go func() {
		done <- c.Run(context.Background(), pipe, "p", model.DefaultSettings(), nil)
	}()
	select {
	case result := <-done:
		assert.Equal(t, Cancelled, result.Outcome)
	case <-time.After(2 * time.Second):
		c.Cancel()
		<-done
		t.Fatal("cancel issued before the run started was lost")
	}
	assert.False(t, c.Busy())

	// The latch is consumed by the run it was meant for.
	again := enginetest.NewPipeline("m", enginetest.Script{Final: "ok"})
	result := c.Run(context.Background(), again, "p", model.DefaultSettings(), nil)
	assert.Equal(t, Completed, result.Outcome)
}

func TestStream_OrderedThenSettled(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"a", "b", "c"}, Final: "abc"})

	var texts []string
	var settled []Event
	for ev := range c.Stream(context.Background(), pipe, "p", model.DefaultSettings()) {
		if ev.Settled() {
			settled = append(settled, ev)
			continue
		}
		require.Empty(t, settled, "token event after settlement")
		texts = append(texts, ev.Text)
	}

	assert.Equal(t, []string{"a", "ab", "abc"}, texts)
	require.Len(t, settled, 1)
	assert.Equal(t, Completed, settled[0].Result.Outcome)
	assert.Equal(t, "abc", settled[0].Text)
	assert.Equal(t, settled[0].Result.RunID, settled[0].RunID)
}

func TestStream_Cancel(t *testing.T) {
	c := NewController(nil)
	pipe := enginetest.NewPipeline("m", enginetest.Script{Tokens: []string{"par"}, WaitForCancel: true})

	events := c.Stream(context.Background(), pipe, "p", model.DefaultSettings())
	first := <-events
	require.False(t, first.Settled())
	assert.Equal(t, "par", first.Text)

	c.Cancel()
	var last Event
	for ev := range events {
		last = ev
	}
	require.True(t, last.Settled())
	assert.Equal(t, Cancelled, last.Result.Outcome)
	assert.Equal(t, "par", last.Result.Text)
}

func TestTokensPerSecond(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		elapsed time.Duration
		first   time.Duration
		want    float64
	}{
		{"no tokens", 0, time.Second, 0, 0},
		{"one token", 1, 5 * time.Second, time.Second, 0},
		{"one token instant", 1, 0, 0, 0},
		{"eleven tokens", 11, 3 * time.Second, time.Second, 5},
		{"zero window", 5, time.Second, time.Second, 0},
		{"negative window", 5, time.Second, 2 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokensPerSecond(tt.count, tt.elapsed, tt.first); got != tt.want {
				t.Errorf("TokensPerSecond(%d, %v, %v) = %v, want %v", tt.count, tt.elapsed, tt.first, got, tt.want)
			}
		})
	}
}

func TestResult_Diagnostics(t *testing.T) {
	r := Result{TokenCount: 3, FirstTokenLatency: 120 * time.Millisecond, TokensPerSecond: 42.26}
	assert.Equal(t, "TTFT: 120 ms, tok/s: 42.3", r.Diagnostics())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "failed", Failed.String())
}
