// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session is the chat session orchestrator.
//
// A Session composes the settings and conversation stores, the prompt
// compiler, the model lifecycle manager and the generation controller.
// Presentation layers drive it through its operations and observe it
// through a Listener.
//
// # Key Types
//
//   - Session: one chat session over one model
//   - Listener: receives Event values (status, turns, streamed content,
//     load progress, control state, settlements)
//   - Controls: which user actions are currently allowed
//
// # Usage
//
//	s := session.New(session.Options{
//	    Engine:       ollama.NewEngine(client, logger),
//	    Settings:     settingsStore,
//	    Conversation: conversationStore,
//	    PrimaryModel: cfg.Engine.PrimaryModel,
//	    Listener:     listener,
//	})
//	if err := s.LoadModel(ctx); err != nil { ... }
//	result, err := s.Submit(ctx, "hello")
//
// Events are delivered synchronously on the goroutine that caused them.
package session
