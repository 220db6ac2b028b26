// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"context"

	"github.com/jeranaias/rigchat/internal/prompt"
)

// State is the model lifecycle state.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the manager.
type Snapshot struct {
	State State
	// ModelID is the active model. It is set only when Ready.
	ModelID string
	// Target is the model being loaded while Loading.
	Target string
	// Fallback is true when the fallback model was used or attempted.
	Fallback bool
	// LastError is the message of the last failed load.
	LastError  string
	Capability prompt.Capability
}

// Confirmer asks the user whether to retry a load with the fallback model.
type Confirmer interface {
	ConfirmFallback(ctx context.Context, primaryID, fallbackID string, cause error) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, primaryID, fallbackID string, cause error) bool

// ConfirmFallback implements Confirmer.
func (f ConfirmFunc) ConfirmFallback(ctx context.Context, primaryID, fallbackID string, cause error) bool {
	return f(ctx, primaryID, fallbackID, cause)
}

// LoadError is returned by Load when the model could not be loaded.
type LoadError struct {
	ModelID  string
	Fallback bool
	Err      error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
