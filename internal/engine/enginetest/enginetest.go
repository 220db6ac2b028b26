// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enginetest provides a scriptable in-memory engine for tests.
package enginetest

import (
	"context"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// SCRIPT
// =============================================================================

// Script describes how a fake pipeline behaves on Generate.
type Script struct {
	// Tokens are emitted in order through OnToken.
	Tokens []string
	// Final is returned as the final text.
	Final string
	// Err is returned after the tokens are emitted.
	Err error
	// WaitForCancel blocks after the tokens until ctx is cancelled and then
	// returns engine.ErrCanceled.
	WaitForCancel bool
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline is a fake engine.Pipeline driven by a Script.
type Pipeline struct {
	mu      sync.Mutex
	id      string
	script  Script
	prompts []string
	opts    []engine.GenerateOptions
	closed  bool
	// afterClose counts Generate calls made on a closed pipeline.
	afterClose int
}

// NewPipeline creates a pipeline for modelID running script.
func NewPipeline(modelID string, script Script) *Pipeline {
	return &Pipeline{id: modelID, script: script}
}

// ModelID implements engine.Pipeline.
func (p *Pipeline) ModelID() string { return p.id }

// SetScript replaces the script used by later Generate calls.
func (p *Pipeline) SetScript(script Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = script
}

// Generate implements engine.Pipeline.
func (p *Pipeline) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	p.mu.Lock()
	script := p.script
	p.prompts = append(p.prompts, prompt)
	p.opts = append(p.opts, opts)
	if p.closed {
		p.afterClose++
	}
	p.mu.Unlock()

	for _, tok := range script.Tokens {
		if ctx.Err() != nil {
			return "", engine.ErrCanceled
		}
		if opts.OnToken != nil {
			opts.OnToken(tok)
		}
	}

	if script.WaitForCancel {
		<-ctx.Done()
		return "", engine.ErrCanceled
	}
	if script.Err != nil {
		return "", script.Err
	}
	return script.Final, nil
}

// Close implements engine.Pipeline.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// GeneratedAfterClose returns how many Generate calls arrived after Close.
func (p *Pipeline) GeneratedAfterClose() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.afterClose
}

// Prompts returns every prompt passed to Generate.
func (p *Pipeline) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// LastOptions returns the options of the latest Generate call.
func (p *Pipeline) LastOptions() engine.GenerateOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.opts) == 0 {
		return engine.GenerateOptions{}
	}
	return p.opts[len(p.opts)-1]
}

// =============================================================================
// TOKENIZERS
// =============================================================================

// Tokenizer is a plain tokenizer without a chat template.
type Tokenizer struct {
	ID string
}

// ModelID implements engine.Tokenizer.
func (t *Tokenizer) ModelID() string { return t.ID }

// Close implements engine.Tokenizer.
func (t *Tokenizer) Close() error { return nil }

// TemplateFunc renders turns for TemplateTokenizer.
type TemplateFunc func(turns []model.Turn, opts engine.TemplateOptions) (string, error)

// TemplateTokenizer is a tokenizer that also implements engine.ChatTemplater.
type TemplateTokenizer struct {
	Tokenizer
	Render TemplateFunc
}

// ApplyChatTemplate implements engine.ChatTemplater.
func (t *TemplateTokenizer) ApplyChatTemplate(turns []model.Turn, opts engine.TemplateOptions) (string, error) {
	return t.Render(turns, opts)
}

// ChatMLTemplate renders turns in ChatML, the format many instruct models use.
func ChatMLTemplate(turns []model.Turn, opts engine.TemplateOptions) (string, error) {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString("<|im_start|>" + turn.Role.String() + "\n" + turn.Content + "<|im_end|>\n")
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is a fake engine.Engine. Configure its exported fields before use.
type Engine struct {
	// TokenizerErr fails LoadTokenizer.
	TokenizerErr error
	// Template, when set, makes tokenizers implement engine.ChatTemplater.
	Template TemplateFunc
	// PipelineErrs fails LoadPipeline for the given model ids.
	PipelineErrs map[string]error
	// Script is given to every pipeline created by LoadPipeline.
	Script Script
	// Progress is reported during LoadPipeline.
	Progress []engine.Progress
	// Gate, when non-nil, blocks LoadPipeline until it is closed or ctx ends.
	Gate chan struct{}

	mu        sync.Mutex
	loads     []string
	pipelines []*Pipeline
	devices   []string
}

// LoadTokenizer implements engine.Engine.
func (e *Engine) LoadTokenizer(ctx context.Context, modelID string, progress engine.ProgressFunc) (engine.Tokenizer, error) {
	if e.TokenizerErr != nil {
		return nil, e.TokenizerErr
	}
	progress.Report(engine.Progress{File: "tokenizer.json", Stage: engine.StageLoad, Completed: 1, Total: 1})
	if e.Template != nil {
		return &TemplateTokenizer{Tokenizer: Tokenizer{ID: modelID}, Render: e.Template}, nil
	}
	return &Tokenizer{ID: modelID}, nil
}

// LoadPipeline implements engine.Engine.
func (e *Engine) LoadPipeline(ctx context.Context, modelID string, opts engine.PipelineOptions) (engine.Pipeline, error) {
	e.mu.Lock()
	e.loads = append(e.loads, modelID)
	e.devices = append(e.devices, opts.Device)
	e.mu.Unlock()

	for _, p := range e.Progress {
		opts.Progress.Report(p)
	}

	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := e.PipelineErrs[modelID]; err != nil {
		return nil, err
	}

	p := NewPipeline(modelID, e.Script)
	e.mu.Lock()
	e.pipelines = append(e.pipelines, p)
	e.mu.Unlock()
	return p, nil
}

// Loads returns the model ids passed to LoadPipeline, in order.
func (e *Engine) Loads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

// Devices returns the devices passed to LoadPipeline, in order.
func (e *Engine) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.devices...)
}

// Pipelines returns the pipelines created so far.
func (e *Engine) Pipelines() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pipeline(nil), e.pipelines...)
}

// LastPipeline returns the most recently created pipeline, or nil.
func (e *Engine) LastPipeline() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pipelines) == 0 {
		return nil
	}
	return e.pipelines[len(e.pipelines)-1]
}
