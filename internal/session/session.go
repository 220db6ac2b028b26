// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/generation"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/prompt"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// STATUS AND ERRORS
// =============================================================================

// Status lines.
const (
	StatusLoading            = "Loading…"
	StatusReady              = "Ready"
	StatusLoadFailed         = "Load failed"
	StatusFallbackLoadFailed = "Fallback load failed"
	StatusUnloaded           = "Unloaded"
	StatusGenerating         = "Generating…"
	StatusAborted            = "Generation aborted"
	StatusGenerationError    = "Generation error"
	StatusSettingsSaved      = "Settings saved"
	StatusConversationReset  = "Conversation reset"
	StatusCacheCleared       = "Cache cleared"
	StatusNoAccelerator      = "No accelerated backend available"
)

// Sentinel errors returned by Session operations.
var (
	ErrEmptyInput    = errors.New("input is empty")
	ErrNotReady      = errors.New("model is not ready")
	ErrBusy          = errors.New("a generation is in progress")
	ErrLoading       = errors.New("a model load is in progress")
	ErrNoAccelerator = errors.New("no accelerated backend available")
)

// readyStatus formats the Ready status line.
func readyStatus(snap lifecycle.Snapshot) string {
	if snap.Fallback {
		return fmt.Sprintf("Ready (fallback: %s)", snap.ModelID)
	}
	return StatusReady
}

// =============================================================================
// OPTIONS
// =============================================================================

// Gate reports whether an accelerated compute backend is present.
type Gate interface {
	HasAcceleratedBackend(ctx context.Context) bool
}

// Options configures a Session.
type Options struct {
	Engine       engine.Engine
	Settings     *storage.SettingsStore
	Conversation *storage.ConversationStore

	PrimaryModel  string
	FallbackModel string
	// Device is passed to the engine on load.
	Device string

	// Gate disables loading when it reports no accelerated backend. Nil
	// allows loading.
	Gate Gate
	// Confirmer is asked before loading the fallback model.
	Confirmer lifecycle.Confirmer
	// ClearCache removes cached model files and returns the number removed.
	ClearCache func() int

	Listener Listener
	Logger   *zap.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the chat session orchestrator. It is safe for concurrent use;
// presentation layers call its blocking operations off their UI goroutine.
type Session struct {
	opts     Options
	logger   *zap.Logger
	settings *storage.SettingsStore
	conv     *storage.ConversationStore
	models   *lifecycle.Manager
	gen      *generation.Controller

	mu          sync.Mutex
	running     bool
	unloading   bool
	accelerated bool
	status      string
}

// New creates a session. The capability gate is probed once here and again
// on every LoadModel.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Settings == nil {
		opts.Settings = storage.NewSettingsStore(storage.NewMemoryKV(), logger)
	}
	if opts.Conversation == nil {
		opts.Conversation = storage.NewConversationStore(storage.NewMemoryKV(), logger)
	}

	s := &Session{
		opts:     opts,
		logger:   logger.Named("session"),
		settings: opts.Settings,
		conv:     opts.Conversation,
		gen:      generation.NewController(logger.Named("generation")),
		status:   StatusUnloaded,
	}
	s.models = lifecycle.NewManager(opts.Engine, lifecycle.Options{
		FallbackID: opts.FallbackModel,
		Device:     opts.Device,
		Confirmer:  opts.Confirmer,
		OnState:    s.onModelState,
		OnProgress: s.onLoadProgress,
		Logger:     logger.Named("lifecycle"),
	})

	s.accelerated = s.probeGate(context.Background())
	if !s.accelerated {
		s.status = StatusNoAccelerator
	}
	return s
}

func (s *Session) probeGate(ctx context.Context) bool {
	if s.opts.Gate == nil {
		return true
	}
	return s.opts.Gate.HasAcceleratedBackend(ctx)
}

// =============================================================================
// MODEL LIFECYCLE
// =============================================================================

// LoadModel loads the configured primary model. It is refused when no
// accelerated backend is present or while a run is active.
func (s *Session) LoadModel(ctx context.Context) error {
	accelerated := s.probeGate(ctx)

	s.mu.Lock()
	s.accelerated = accelerated
	busy := s.running
	s.mu.Unlock()

	if !accelerated {
		s.setStatus(StatusNoAccelerator)
		s.emitControls()
		return ErrNoAccelerator
	}
	if busy {
		return ErrBusy
	}
	return s.models.Load(ctx, s.opts.PrimaryModel)
}

// UnloadModel releases the model. It is refused while a run is active or a
// load is in progress.
func (s *Session) UnloadModel() error {
	s.mu.Lock()
	if s.running || s.unloading {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.models.State() == lifecycle.Loading {
		s.mu.Unlock()
		return ErrLoading
	}
	// Submit cannot borrow the pipeline until unloading is cleared.
	s.unloading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.unloading = false
		s.mu.Unlock()
	}()
	return s.models.Unload()
}

func (s *Session) onModelState(snap lifecycle.Snapshot) {
	var status string
	switch snap.State {
	case lifecycle.Loading:
		status = StatusLoading
	case lifecycle.Ready:
		status = readyStatus(snap)
	case lifecycle.Failed:
		status = StatusLoadFailed
		if snap.Fallback {
			status = StatusFallbackLoadFailed
		}
	default:
		status = StatusUnloaded
	}

	s.mu.Lock()
	s.status = status
	controls := deriveControls(snap.State, s.running, s.accelerated)
	s.mu.Unlock()

	s.emit(ModelStateChanged{Snapshot: snap})
	s.emit(StatusChanged{Text: status})
	s.emit(ControlsChanged{Controls: controls})
}

func (s *Session) onLoadProgress(p engine.Progress) {
	s.emit(LoadProgress{Progress: p})
}

// =============================================================================
// GENERATION
// =============================================================================

// Submit sends text as the next user turn and blocks until the run
// settles. The prompt is compiled from the history before the user turn is
// appended. A non-empty reply is appended as the assistant turn; a failed
// run also appends an error annotation. Input is stored in NFC form.
func (s *Session) Submit(ctx context.Context, text string) (generation.Result, error) {
	input := norm.NFC.String(strings.TrimSpace(text))
	if input == "" {
		return generation.Result{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return generation.Result{}, ErrBusy
	}
	pipe, capability, ok := s.models.Pipeline()
	if !ok || s.unloading {
		s.mu.Unlock()
		return generation.Result{}, ErrNotReady
	}
	settings := s.settings.Current()
	promptText := prompt.Compile(capability, settings, s.conv.Turns(), input)
	s.running = true
	s.status = StatusGenerating
	s.gen.Reserve()
	s.mu.Unlock()

	s.emitControls()
	s.emit(StatusChanged{Text: StatusGenerating})
	s.appendTurn(model.NewTurn(model.RoleUser, input))

	s.logger.Debug("submitting", zap.String("model", pipe.ModelID()), zap.Stringer("capability", capability))

	var result generation.Result
	for ev := range s.gen.Stream(ctx, pipe, promptText, settings) {
		if ev.Settled() {
			result = *ev.Result
			continue
		}
		s.emit(ContentUpdated{RunID: ev.RunID, Text: ev.Text})
	}

	if result.Text != "" {
		s.appendTurn(model.NewTurn(model.RoleAssistant, result.Text))
	}

	var status string
	switch result.Outcome {
	case generation.Completed:
		status = result.Diagnostics()
	case generation.Cancelled:
		status = StatusAborted
	default:
		status = StatusGenerationError
		s.appendTurn(model.NewErrorAnnotation(result.ErrMessage()))
	}

	s.mu.Lock()
	s.running = false
	s.status = status
	s.mu.Unlock()

	s.emit(RunSettled{Result: result})
	s.emit(StatusChanged{Text: status})
	s.emitControls()
	return result, nil
}

// Stop cancels the active run, including one that is marked busy but has
// not reached the engine yet. It is a no-op when nothing is running.
func (s *Session) Stop() {
	s.gen.Cancel()
}

func (s *Session) appendTurn(turn model.Turn) {
	if err := s.conv.Append(turn); err != nil {
		// The turn stays in memory; only persistence failed.
		s.logger.Warn("transcript append failed", zap.String("role", turn.Role.String()), zap.Error(err))
	}
	s.emit(TurnAppended{Turn: turn})
}

// =============================================================================
// SETTINGS, TRANSCRIPT AND CACHE
// =============================================================================

// SaveSettings merges input over the current settings and returns the
// canonical result.
func (s *Session) SaveSettings(input storage.SettingsInput) model.Settings {
	settings := s.settings.Save(input)
	s.setStatus(StatusSettingsSaved)
	return settings
}

// ResetSettings restores the default settings.
func (s *Session) ResetSettings() model.Settings {
	settings := s.settings.Reset()
	s.setStatus(StatusSettingsSaved)
	return settings
}

// ResetConversation clears the transcript. It is refused while a run is
// active.
func (s *Session) ResetConversation() error {
	s.mu.Lock()
	busy := s.running
	s.mu.Unlock()
	if busy {
		return ErrBusy
	}

	err := s.conv.Reset()
	s.emit(ConversationReset{})
	s.setStatus(StatusConversationReset)
	return err
}

// ClearCache removes cached model files and returns the number removed.
func (s *Session) ClearCache() int {
	removed := 0
	if s.opts.ClearCache != nil {
		removed = s.opts.ClearCache()
	}
	s.logger.Info("cache cleared", zap.Int("removed", removed))
	s.setStatus(StatusCacheCleared)
	return removed
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Transcript returns a copy of the conversation.
func (s *Session) Transcript() []model.Turn {
	return s.conv.Turns()
}

// Settings returns the current settings.
func (s *Session) Settings() model.Settings {
	return s.settings.Current()
}

// Busy reports whether a run is active.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Controls returns which user actions are currently allowed.
func (s *Session) Controls() Controls {
	state := s.models.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveControls(state, s.running, s.accelerated)
}

// Status returns the current status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Model returns the lifecycle snapshot.
func (s *Session) Model() lifecycle.Snapshot {
	return s.models.Snapshot()
}

// Accelerated reports the last capability gate result.
func (s *Session) Accelerated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accelerated
}

// =============================================================================
// EVENT PLUMBING
// =============================================================================

func (s *Session) setStatus(text string) {
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
	s.emit(StatusChanged{Text: text})
}

func (s *Session) emitControls() {
	s.emit(ControlsChanged{Controls: s.Controls()})
}

func (s *Session) emit(e Event) {
	if s.opts.Listener != nil {
		s.opts.Listener.OnEvent(e)
	}
}
