// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat session.
//
// # Key Types
//
//   - Role: speaker of a turn (system, user, assistant)
//   - Turn: one message of the transcript
//   - Settings: generation parameters plus the system prompt
//
// # Usage
//
//	turns := []model.Turn{
//	    model.NewTurn(model.RoleUser, "hi"),
//	}
//	s := model.DefaultSettings()
package model
