// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements the inference engine over the Ollama HTTP API.
//
// # Key Types
//
//   - Client: HTTP client for /api/show, /api/pull and /api/generate
//   - Engine: engine.Engine implementation that pulls missing models and
//     warm-loads them
//   - Pipeline: raw streaming generation against a loaded model
//   - Template: renders conversations with the model's prompt template
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	eng := ollama.NewEngine(client, logger)
//	pipe, err := eng.LoadPipeline(ctx, "qwen3:1.7b", engine.PipelineOptions{})
//	text, err := pipe.Generate(ctx, prompt, engine.GenerateOptions{OnToken: print})
//
// Cancelling ctx during Generate yields an error matching engine.ErrCanceled.
package ollama
