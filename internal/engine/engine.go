// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine defines the inference engine capability the chat session
// drives: tokenizer and generation pipeline loading, streaming generation
// and the optional chat-template capability.
//
// Concrete engines live in their own packages (see internal/ollama).
package engine

import (
	"context"
	"errors"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrCanceled is returned by Pipeline.Generate when the run was aborted
// through its context.
var ErrCanceled = errors.New("generation canceled")

// IsCanceled reports whether err signals a cancelled generation rather
// than a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// =============================================================================
// PROGRESS
// =============================================================================

// Load stages reported through Progress.Stage.
const (
	StageManifest = "manifest"
	StageDownload = "download"
	StageVerify   = "verify"
	StageLoad     = "load"
	StageReady    = "ready"
)

// Progress is one load progress report.
type Progress struct {
	File      string
	Stage     string
	Completed int64
	Total     int64
}

// Fraction returns Completed/Total in [0,1], or 0 when Total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// ProgressFunc receives load progress. It may be nil.
type ProgressFunc func(Progress)

// Report calls f with p if f is set.
func (f ProgressFunc) Report(p Progress) {
	if f != nil {
		f(p)
	}
}

// =============================================================================
// CAPABILITIES
// =============================================================================

// Engine loads model handles by id.
type Engine interface {
	// LoadTokenizer prepares the tokenizer for modelID. The returned value
	// may also implement ChatTemplater.
	LoadTokenizer(ctx context.Context, modelID string, progress ProgressFunc) (Tokenizer, error)

	// LoadPipeline prepares modelID for generation.
	LoadPipeline(ctx context.Context, modelID string, opts PipelineOptions) (Pipeline, error)
}

// PipelineOptions configures LoadPipeline.
type PipelineOptions struct {
	// Device is "auto", "gpu" or "cpu".
	Device   string
	Progress ProgressFunc
}

// Tokenizer is the handle returned by LoadTokenizer.
type Tokenizer interface {
	ModelID() string
	Close() error
}

// TemplateOptions controls ApplyChatTemplate.
type TemplateOptions struct {
	// AddGenerationPrompt appends the marker that starts the assistant turn.
	AddGenerationPrompt bool
	// Tokenize requests token ids instead of text. Callers here always
	// pass false.
	Tokenize bool
}

// ChatTemplater is implemented by tokenizers that can render a structured
// conversation into the model's own prompt format.
type ChatTemplater interface {
	ApplyChatTemplate(turns []model.Turn, opts TemplateOptions) (string, error)
}

// GenerateOptions are the sampling parameters of one generation call.
type GenerateOptions struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64

	// OnToken receives each text increment in engine order.
	OnToken func(delta string)
}

// Pipeline runs generations against a loaded model.
type Pipeline interface {
	ModelID() string

	// Generate streams increments to opts.OnToken and returns the final
	// text. It returns ErrCanceled when ctx is cancelled mid-run.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Close releases the model.
	Close() error
}
