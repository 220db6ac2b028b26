// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// # Key Types
//
//   - Config: main configuration structure
//   - EngineConfig: Ollama endpoint, primary and fallback model ids
//   - StorageConfig: key-value backend and data directory
//   - LogConfig: zap level and log file
//   - CacheConfig: model cache locations cleared by "cache clear"
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*)
//   - ~/.rigchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	url := cfg.Engine.OllamaURL
package config
