// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of config, logging, storage, engine and session.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/detect"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/modelcache"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// STATE
// =============================================================================

// state is the persistent part of the app: logger and key-value store.
// Commands that only touch settings or history stop here.
type state struct {
	cfg    *config.Config
	logger *zap.Logger
	kv     storage.KV
}

// openState opens the logger and the configured store.
func openState(cfg *config.Config) (*state, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.LogFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", warningStyle.Render("Warning:"), err)
		logger = zap.NewNop()
	}

	kv, err := storage.Open(cfg.Storage.Backend, cfg.DataDir())
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	return &state{cfg: cfg, logger: logger, kv: kv}, nil
}

func (s *state) settingsStore() *storage.SettingsStore {
	return storage.NewSettingsStore(s.kv, s.logger)
}

func (s *state) conversationStore() *storage.ConversationStore {
	return storage.NewConversationStore(s.kv, s.logger)
}

func (s *state) cacheClearer() modelcache.Clearer {
	return modelcache.Clearer{
		Dirs:      s.cfg.CacheDirs(),
		StoreName: s.cfg.Cache.StoreName,
		Logger:    s.logger.Named("cache"),
	}
}

// Close releases the store and flushes the log.
func (s *state) Close() error {
	var err error
	if c, ok := s.kv.(io.Closer); ok {
		err = c.Close()
	}
	s.logger.Sync()
	return err
}

// =============================================================================
// APP
// =============================================================================

// appOptions customizes the session built by newApp.
type appOptions struct {
	Listener  session.Listener
	Confirmer lifecycle.Confirmer
	// Ephemeral keeps the conversation in memory.
	Ephemeral bool
	// Engine replaces the Ollama engine.
	Engine engine.Engine
	// Gate replaces GPU detection.
	Gate detect.Gate
}

// app is a ready-to-use chat session and its dependencies.
type app struct {
	*state
	session *session.Session
}

// newApp builds the full session for cfg.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	st, err := openState(cfg)
	if err != nil {
		return nil, err
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:   cfg.Engine.OllamaURL,
		KeepAlive: cfg.Engine.KeepAlive,
	})

	eng := opts.Engine
	if eng == nil {
		eng = ollama.NewEngine(client, st.logger.Named("ollama"))
	}

	gate := opts.Gate
	if gate == nil {
		system := detect.NewSystemGate(st.logger.Named("detect"))
		if cfg.Engine.RequireAccelerator {
			gate = system
		} else {
			gate = detect.OpenGate{System: system}
		}
	}

	device := cfg.Engine.Device
	if device == "auto" {
		device = gate.Device(ctx)
	}

	conv := st.conversationStore()
	if opts.Ephemeral {
		conv = storage.NewConversationStore(storage.NewMemoryKV(), st.logger)
	}

	st.logger.Info("session starting",
		zap.String("model", cfg.Engine.PrimaryModel),
		zap.String("fallback", cfg.Engine.FallbackModel),
		zap.String("device", device),
		zap.String("storage", cfg.Storage.Backend))

	s := session.New(session.Options{
		Engine:        eng,
		Settings:      st.settingsStore(),
		Conversation:  conv,
		PrimaryModel:  cfg.Engine.PrimaryModel,
		FallbackModel: cfg.Engine.FallbackModel,
		Device:        device,
		Gate:          gate,
		Confirmer:     opts.Confirmer,
		ClearCache:    st.cacheClearer().Clear,
		Listener:      opts.Listener,
		Logger:        st.logger,
	})

	return &app{state: st, session: s}, nil
}

// Close stops any run, unloads the model and releases the store.
func (a *app) Close() error {
	a.session.Stop()
	if err := a.session.UnloadModel(); err != nil && !errors.Is(err, session.ErrBusy) && !errors.Is(err, session.ErrLoading) {
		a.logger.Debug("unload on exit failed", zap.Error(err))
	}
	return a.state.Close()
}
