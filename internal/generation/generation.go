// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation drives one streaming generation call at a time against
// a loaded pipeline. It accumulates streamed text, measures latency and
// throughput, and settles each run as completed, cancelled or failed.
package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// RESULT
// =============================================================================

// Outcome is how a run settled.
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	Failed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the settlement of one run.
type Result struct {
	RunID   string
	Outcome Outcome
	// Text is the accumulated text, superseded by the engine's final text
	// when that is at least as long. Partial text survives cancellation
	// and failure.
	Text string
	// Err is set only when Outcome is Failed.
	Err error

	TokenCount        int
	FirstTokenLatency time.Duration
	Elapsed           time.Duration
	TokensPerSecond   float64
}

// TimeToFirstToken returns the first-token latency. It is absent when no
// token was produced.
func (r Result) TimeToFirstToken() (time.Duration, bool) {
	if r.TokenCount == 0 {
		return 0, false
	}
	return r.FirstTokenLatency, true
}

// ErrMessage returns the failure message, or "".
func (r Result) ErrMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Diagnostics formats the run metrics for the status line.
func (r Result) Diagnostics() string {
	ttft := "n/a"
	if d, ok := r.TimeToFirstToken(); ok {
		ttft = fmt.Sprintf("%d", d.Milliseconds())
	}
	return fmt.Sprintf("TTFT: %s ms, tok/s: %.1f", ttft, r.TokensPerSecond)
}

// TokensPerSecond computes throughput after the first token. It is 0 when
// count ≤ 1 or when no time passed after the first token.
func TokensPerSecond(count int, elapsed, firstToken time.Duration) float64 {
	if count <= 1 {
		return 0
	}
	window := (elapsed - firstToken).Seconds()
	if window <= 0 {
		return 0
	}
	return float64(count-1) / window
}

// =============================================================================
// CONTROLLER
// =============================================================================

// activeRun is the cancel handle of the run in flight.
type activeRun struct {
	id     string
	cancel context.CancelFunc
}

// Controller runs generations. At most one run may be active: callers
// must check Busy before starting another. The controller does not queue.
type Controller struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	active   *activeRun
	reserved bool
	// pending is a Cancel received between Reserve and Run.
	pending bool
}

// NewController creates a controller.
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{logger: logger, now: time.Now}
}

// Busy reports whether a run is active or reserved.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil || c.reserved
}

// Reserve claims the controller for the next Run. A Cancel issued after
// Reserve and before that Run starts cancels the run as soon as it starts.
func (c *Controller) Reserve() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved = true
	c.pending = false
}

// ActiveRunID returns the id of the run in flight, or "".
func (c *Controller) ActiveRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// Cancel aborts the active or reserved run. It is a no-op when nothing is
// running.
func (c *Controller) Cancel() {
	c.mu.Lock()
	run := c.active
	if run == nil && c.reserved {
		c.pending = true
	}
	c.mu.Unlock()
	if run != nil {
		c.logger.Debug("cancelling run", zap.String("run_id", run.id))
		run.cancel()
	}
}

// Run generates from prompt and blocks until the run settles. onToken
// receives the full accumulated text after every non-empty increment, in
// engine order.
func (c *Controller) Run(ctx context.Context, pipe engine.Pipeline, prompt string, settings model.Settings, onToken func(text string)) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &activeRun{id: uuid.NewString(), cancel: cancel}
	c.mu.Lock()
	c.active = run
	cancelled := c.pending
	c.reserved, c.pending = false, false
	c.mu.Unlock()
	if cancelled {
		cancel()
	}
	defer func() {
		c.mu.Lock()
		if c.active == run {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	logger := c.logger.With(zap.String("run_id", run.id), zap.String("model", pipe.ModelID()))
	logger.Debug("generation started", zap.Int("prompt_bytes", len(prompt)))

	var (
		acc        strings.Builder
		count      int
		firstToken time.Duration
	)
	start := c.now()

	opts := engine.GenerateOptions{
		MaxNewTokens:      settings.MaxNewTokens,
		Temperature:       settings.Temperature,
		TopP:              settings.TopP,
		TopK:              settings.TopK,
		RepetitionPenalty: settings.RepetitionPenalty,
		OnToken: func(delta string) {
			if delta == "" {
				return
			}
			if count == 0 {
				firstToken = c.now().Sub(start)
			}
			acc.WriteString(delta)
			count++
			if onToken != nil {
				onToken(acc.String())
			}
		},
	}

	final, err := pipe.Generate(runCtx, prompt, opts)
	elapsed := c.now().Sub(start)

	result := Result{
		RunID:             run.id,
		Text:              acc.String(),
		TokenCount:        count,
		FirstTokenLatency: firstToken,
		Elapsed:           elapsed,
		TokensPerSecond:   TokensPerSecond(count, elapsed, firstToken),
	}

	switch {
	case err == nil:
		if utf8.RuneCountInString(final) >= utf8.RuneCountInString(result.Text) {
			result.Text = final
		}
		result.Outcome = Completed
	case engine.IsCanceled(err):
		result.Outcome = Cancelled
	default:
		result.Outcome = Failed
		result.Err = err
	}

	logger.Info("generation settled",
		zap.Stringer("outcome", result.Outcome),
		zap.Int("tokens", count),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tokens_per_second", result.TokensPerSecond),
		zap.Error(result.Err))
	return result
}

// =============================================================================
// CHANNEL FORM
// =============================================================================

// Event is one item of a Stream. Token events carry the accumulated text.
// The last event carries the Result and the channel is closed after it.
type Event struct {
	RunID  string
	Text   string
	Result *Result
}

// Settled reports whether e is the settlement event.
func (e Event) Settled() bool {
	return e.Result != nil
}

// Stream starts a run in its own goroutine and returns its events. The
// caller must drain the channel until it is closed. Token events that
// cannot be delivered after ctx ends are dropped; the settlement event is
// always delivered.
func (c *Controller) Stream(ctx context.Context, pipe engine.Pipeline, prompt string, settings model.Settings) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		var runID string
		result := c.Run(ctx, pipe, prompt, settings, func(text string) {
			if runID == "" {
				runID = c.ActiveRunID()
			}
			select {
			case events <- Event{RunID: runID, Text: text}:
			case <-ctx.Done():
			}
		})
		events <- Event{RunID: result.RunID, Text: result.Text, Result: &result}
	}()
	return events
}
