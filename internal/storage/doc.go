// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides settings and transcript persistence for rigchat.
//
// Everything is persisted through the small KV interface, a get/set byte
// store keyed by two logical keys (settings blob, transcript blob). Three
// backends are available:
//
//   - FileKV: one JSON file per key, written atomically
//   - SQLiteKV: a single-table SQLite database (pure Go driver)
//   - MemoryKV: in-memory map for tests and ephemeral sessions
//
// # Key Types
//
//   - SettingsStore: validated, coerced generation settings
//   - ConversationStore: ordered transcript with append/reset
//
// # Usage
//
//	kv, err := storage.Open(cfg.Storage.Backend, cfg.DataDir())
//	settings := storage.NewSettingsStore(kv, logger)
//	s := settings.Load()
//
// Stored data that is missing or cannot be parsed is never an error: the
// stores fall back to defaults (settings) or an empty transcript.
package storage
