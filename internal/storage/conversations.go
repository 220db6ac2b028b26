// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore holds the ordered transcript and persists the whole
// sequence under KeyTranscript on every mutation.
type ConversationStore struct {
	mu     sync.Mutex
	kv     KV
	logger *zap.Logger
	turns  []model.Turn
}

// NewConversationStore creates a store over kv and loads the saved transcript.
func NewConversationStore(kv KV, logger *zap.Logger) *ConversationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConversationStore{kv: kv, logger: logger}
	s.Load()
	return s
}

// Load reads the transcript from storage. Missing or corrupt data yields an
// empty transcript. Turns with an unknown role are dropped.
func (s *ConversationStore) Load() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = []model.Turn{}

	raw, found, err := s.kv.Get(KeyTranscript)
	if err != nil {
		s.logger.Warn("transcript read failed, starting empty", zap.Error(err))
		return model.CloneTurns(s.turns)
	}
	if !found {
		return model.CloneTurns(s.turns)
	}

	var stored []model.Turn
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("stored transcript unreadable, starting empty", zap.Error(err))
		return model.CloneTurns(s.turns)
	}

	for _, turn := range stored {
		if !turn.Role.Valid() {
			continue
		}
		s.turns = append(s.turns, turn)
	}
	return model.CloneTurns(s.turns)
}

// Append adds turn to the end of the transcript and persists it.
// The in-memory transcript keeps the turn even if the write fails.
func (s *ConversationStore) Append(turn model.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("invalid role %q", turn.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	return s.persistLocked()
}

// Reset clears the transcript and persists the empty sequence.
func (s *ConversationStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = []model.Turn{}
	return s.persistLocked()
}

// Turns returns a copy of the transcript.
func (s *ConversationStore) Turns() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneTurns(s.turns)
}

func (s *ConversationStore) persistLocked() error {
	data, err := json.Marshal(s.turns)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := s.kv.Set(KeyTranscript, data); err != nil {
		s.logger.Error("transcript write failed", zap.Int("turns", len(s.turns)), zap.Error(err))
		return fmt.Errorf("failed to persist transcript: %w", err)
	}
	return nil
}
