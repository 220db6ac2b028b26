// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/model"
)

// unloadTimeout bounds the keep_alive=0 request sent on Close.
const unloadTimeout = 5 * time.Second

// =============================================================================
// ENGINE
// =============================================================================

// Engine implements engine.Engine on top of an Ollama server. Models missing
// locally are pulled on first load.
type Engine struct {
	client *Client
	logger *zap.Logger
}

// NewEngine creates an engine using client.
func NewEngine(client *Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, logger: logger}
}

// Client returns the underlying API client.
func (e *Engine) Client() *Client {
	return e.client
}

// LoadTokenizer fetches the model's prompt template. Models whose template
// is missing or does not parse get a plain tokenizer.
func (e *Engine) LoadTokenizer(ctx context.Context, modelID string, progress engine.ProgressFunc) (engine.Tokenizer, error) {
	info, err := e.ensureModel(ctx, modelID, progress)
	if err != nil {
		return nil, err
	}

	tmpl, err := ParseTemplate(info.Template)
	if err != nil {
		e.logger.Info("no usable chat template, using plain prompts",
			zap.String("model", modelID), zap.Error(err))
		return &Tokenizer{modelID: modelID}, nil
	}
	return &TemplateTokenizer{Tokenizer: Tokenizer{modelID: modelID}, template: tmpl}, nil
}

// LoadPipeline makes sure the model is present and loads it into memory.
func (e *Engine) LoadPipeline(ctx context.Context, modelID string, opts engine.PipelineOptions) (engine.Pipeline, error) {
	if _, err := e.ensureModel(ctx, modelID, opts.Progress); err != nil {
		return nil, err
	}

	numGPU := deviceLayers(opts.Device)
	opts.Progress.Report(engine.Progress{File: modelID, Stage: engine.StageLoad})

	start := time.Now()
	if err := e.client.Load(ctx, modelID, loadOptions(numGPU)); err != nil {
		return nil, err
	}
	e.logger.Info("model loaded",
		zap.String("model", modelID),
		zap.String("device", opts.Device),
		zap.Duration("took", time.Since(start)))

	opts.Progress.Report(engine.Progress{File: modelID, Stage: engine.StageReady, Completed: 1, Total: 1})
	return &Pipeline{client: e.client, modelID: modelID, numGPU: numGPU, logger: e.logger}, nil
}

// ensureModel returns the model's details, pulling it first if the server
// does not have it.
func (e *Engine) ensureModel(ctx context.Context, modelID string, progress engine.ProgressFunc) (*ShowModelResponse, error) {
	info, err := e.client.Show(ctx, modelID)
	if err == nil {
		return info, nil
	}
	if !IsModelNotFound(err) {
		return nil, err
	}

	e.logger.Info("pulling model", zap.String("model", modelID))
	err = e.client.Pull(ctx, modelID, func(p PullResponse) {
		progress.Report(pullProgress(modelID, p))
	})
	if err != nil {
		return nil, err
	}
	return e.client.Show(ctx, modelID)
}

// pullProgress converts a /api/pull status line.
func pullProgress(modelID string, p PullResponse) engine.Progress {
	out := engine.Progress{File: modelID, Completed: p.Completed, Total: p.Total}
	switch {
	case p.Digest != "" || strings.HasPrefix(p.Status, "pulling sha256"):
		out.Stage = engine.StageDownload
		if p.Digest != "" {
			out.File = shortDigest(p.Digest)
		}
	case strings.HasPrefix(p.Status, "verifying"), strings.HasPrefix(p.Status, "writing"):
		out.Stage = engine.StageVerify
	case p.Status == "success":
		out.Stage = engine.StageVerify
		out.Completed, out.Total = 1, 1
	default:
		out.Stage = engine.StageManifest
	}
	return out
}

func shortDigest(digest string) string {
	d := strings.TrimPrefix(digest, "sha256:")
	if len(d) > 12 {
		d = d[:12]
	}
	return d
}

// deviceLayers maps a device name to num_gpu. Nil lets the server decide.
func deviceLayers(device string) *int {
	if device == "cpu" {
		zero := 0
		return &zero
	}
	return nil
}

func loadOptions(numGPU *int) *Options {
	if numGPU == nil {
		return nil
	}
	return &Options{NumGPU: numGPU}
}

// =============================================================================
// TOKENIZERS
// =============================================================================

// Tokenizer is the handle for a model without a usable chat template.
type Tokenizer struct {
	modelID string
}

// ModelID implements engine.Tokenizer.
func (t *Tokenizer) ModelID() string { return t.modelID }

// Close implements engine.Tokenizer. The server owns the vocabulary.
func (t *Tokenizer) Close() error { return nil }

// TemplateTokenizer renders prompts with the model's own template.
type TemplateTokenizer struct {
	Tokenizer
	template *Template
}

// ApplyChatTemplate implements engine.ChatTemplater. Token ids are not
// available over the HTTP API, so Tokenize must be false.
func (t *TemplateTokenizer) ApplyChatTemplate(turns []model.Turn, opts engine.TemplateOptions) (string, error) {
	if opts.Tokenize {
		return "", errors.New("token id output is not supported")
	}
	return t.template.Render(turns, opts.AddGenerationPrompt)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline generates with a model loaded on the server.
type Pipeline struct {
	client  *Client
	modelID string
	numGPU  *int
	logger  *zap.Logger
}

// ModelID implements engine.Pipeline.
func (p *Pipeline) ModelID() string { return p.modelID }

// Generate streams a raw completion of prompt. The final text is the
// concatenation of every streamed increment.
func (p *Pipeline) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	options := &Options{
		Temperature:   opts.Temperature,
		TopK:          opts.TopK,
		TopP:          opts.TopP,
		RepeatPenalty: opts.RepetitionPenalty,
		NumPredict:    opts.MaxNewTokens,
		NumGPU:        p.numGPU,
	}

	var text strings.Builder
	final, err := p.client.GenerateStream(ctx, p.modelID, prompt, options, func(chunk GenerateResponse) {
		if chunk.Response == "" {
			return
		}
		text.WriteString(chunk.Response)
		if opts.OnToken != nil {
			opts.OnToken(chunk.Response)
		}
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return "", engine.ErrCanceled
		}
		return "", err
	}

	p.logger.Debug("generation finished",
		zap.String("model", p.modelID),
		zap.String("done_reason", final.DoneReason),
		zap.Int("eval_count", final.EvalCount),
		zap.Float64("server_tok_s", final.TokensPerSecond()))
	return text.String(), nil
}

// Close asks the server to unload the model now.
func (p *Pipeline) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
	defer cancel()
	return p.client.Unload(ctx, p.modelID)
}
