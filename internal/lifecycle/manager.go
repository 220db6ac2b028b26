// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lifecycle owns the loaded model: a state machine over Unloaded,
// Loading, Ready and Failed that loads, falls back and unloads through an
// engine.Engine.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/prompt"
)

// DefaultProgressInterval is the minimum spacing of relayed byte progress.
const DefaultProgressInterval = 100 * time.Millisecond

// Options configures a Manager.
type Options struct {
	// FallbackID is offered when the primary model type is unsupported.
	FallbackID string
	// Device is passed to the engine ("auto", "gpu" or "cpu").
	Device string
	// Confirmer gates the fallback retry. Nil declines.
	Confirmer Confirmer
	// OnState receives every state change.
	OnState func(Snapshot)
	// OnProgress receives throttled load progress.
	OnProgress func(engine.Progress)
	// ProgressInterval overrides DefaultProgressInterval.
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Manager owns the tokenizer and pipeline handles of the single active model.
type Manager struct {
	eng    engine.Engine
	opts   Options
	logger *zap.Logger
	group  singleflight.Group

	mu         sync.Mutex
	state      State
	modelID    string
	target     string
	fallback   bool
	lastErr    string
	pipeline   engine.Pipeline
	tokenizer  engine.Tokenizer
	capability prompt.Capability
}

// NewManager creates a manager in the Unloaded state.
func NewManager(eng engine.Engine, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Manager{
		eng:        eng,
		opts:       opts,
		logger:     logger,
		capability: prompt.PlainTextOnly(),
	}
}

// =============================================================================
// LOAD
// =============================================================================

// Load loads primaryID. It is a no-op when Ready. Concurrent callers share
// one attempt. When the engine reports an unsupported model type, the
// Confirmer is asked once and, if it accepts, the fallback model is tried
// once.
func (m *Manager) Load(ctx context.Context, primaryID string) error {
	m.mu.Lock()
	if m.state == Ready {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do("load", func() (interface{}, error) {
		return nil, m.load(ctx, primaryID)
	})
	return err
}

func (m *Manager) load(ctx context.Context, primaryID string) error {
	m.mu.Lock()
	if m.state == Ready {
		m.mu.Unlock()
		return nil
	}
	m.state = Loading
	m.target = primaryID
	m.fallback = false
	m.lastErr = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	m.logger.Info("loading model", zap.String("model", primaryID), zap.String("device", m.opts.Device))

	err := m.attempt(ctx, primaryID, false)
	if err == nil {
		return nil
	}

	fallbackID := m.opts.FallbackID
	if !IsUnsupportedModel(err) || fallbackID == "" || fallbackID == primaryID {
		return m.fail(primaryID, false, err)
	}

	m.logger.Warn("model type unsupported, offering fallback",
		zap.String("model", primaryID), zap.String("fallback", fallbackID), zap.Error(err))

	if m.opts.Confirmer == nil || !m.opts.Confirmer.ConfirmFallback(ctx, primaryID, fallbackID, err) {
		m.logger.Info("fallback declined", zap.String("model", primaryID))
		return m.fail(primaryID, false, err)
	}

	m.mu.Lock()
	m.target = fallbackID
	m.fallback = true
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	if err := m.attempt(ctx, fallbackID, true); err != nil {
		return m.fail(fallbackID, true, err)
	}
	return nil
}

// attempt loads the tokenizer, then the pipeline, and settles Ready on
// success. A tokenizer failure only costs the chat template.
func (m *Manager) attempt(ctx context.Context, modelID string, fallback bool) error {
	relay := newProgressRelay(m.opts.OnProgress, m.opts.ProgressInterval)

	capability := prompt.PlainTextOnly()
	tok, err := m.eng.LoadTokenizer(ctx, modelID, relay.report)
	if err != nil {
		m.logger.Warn("tokenizer unavailable, using plain prompts", zap.String("model", modelID), zap.Error(err))
		tok = nil
	} else {
		capability = prompt.CapabilityFor(tok)
	}

	pipe, err := m.eng.LoadPipeline(ctx, modelID, engine.PipelineOptions{
		Device:   m.opts.Device,
		Progress: relay.report,
	})
	if err != nil {
		if tok != nil {
			tok.Close()
		}
		return err
	}

	m.mu.Lock()
	m.state = Ready
	m.modelID = modelID
	m.target = ""
	m.fallback = fallback
	m.lastErr = ""
	m.pipeline = pipe
	m.tokenizer = tok
	m.capability = capability
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("model ready",
		zap.String("model", modelID),
		zap.Bool("fallback", fallback),
		zap.Stringer("capability", capability))
	m.emit(snap)
	return nil
}

func (m *Manager) fail(modelID string, fallback bool, err error) error {
	m.mu.Lock()
	m.state = Failed
	m.modelID = ""
	m.target = ""
	m.fallback = fallback
	m.lastErr = err.Error()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Error("model load failed", zap.String("model", modelID), zap.Bool("fallback", fallback), zap.Error(err))
	m.emit(snap)
	return &LoadError{ModelID: modelID, Fallback: fallback, Err: err}
}

// =============================================================================
// UNLOAD
// =============================================================================

// Unload releases both handles and moves to Unloaded. Release errors are
// returned but do not prevent the transition. Callers must not unload while
// a load or generation is in progress.
func (m *Manager) Unload() error {
	m.mu.Lock()
	pipe, tok := m.pipeline, m.tokenizer
	m.pipeline, m.tokenizer = nil, nil
	m.state = Unloaded
	m.modelID = ""
	m.target = ""
	m.fallback = false
	m.lastErr = ""
	m.capability = prompt.PlainTextOnly()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	var errs []error
	if pipe != nil {
		if err := pipe.Close(); err != nil {
			m.logger.Warn("pipeline release failed", zap.String("model", pipe.ModelID()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if tok != nil {
		if err := tok.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("model unloaded")
	m.emit(snap)
	return errors.Join(errs...)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pipeline lends the loaded pipeline for one generation call.
func (m *Manager) Pipeline() (engine.Pipeline, prompt.Capability, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || m.pipeline == nil {
		return nil, prompt.PlainTextOnly(), false
	}
	return m.pipeline, m.capability, true
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:      m.state,
		ModelID:    m.modelID,
		Target:     m.target,
		Fallback:   m.fallback,
		LastError:  m.lastErr,
		Capability: m.capability,
	}
}

func (m *Manager) emit(s Snapshot) {
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

// =============================================================================
// PROGRESS RELAY
// =============================================================================

// progressRelay forwards progress at a bounded rate. Stage or file changes
// and completed transfers are always forwarded.
type progressRelay struct {
	fn      func(engine.Progress)
	limiter *rate.Limiter

	mu    sync.Mutex
	stage string
	file  string
}

func newProgressRelay(fn func(engine.Progress), every time.Duration) *progressRelay {
	return &progressRelay{fn: fn, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

func (r *progressRelay) report(p engine.Progress) {
	if r.fn == nil {
		return
	}

	r.mu.Lock()
	changed := p.Stage != r.stage || p.File != r.file
	r.stage, r.file = p.Stage, p.File
	r.mu.Unlock()

	// Allow is always consulted so forced reports also spend a token.
	allowed := r.limiter.Allow()
	complete := p.Total > 0 && p.Completed >= p.Total
	if changed || complete || allowed {
		r.fn(p)
	}
}
