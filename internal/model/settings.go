// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultSystemPrompt is used whenever the configured prompt is empty.
const DefaultSystemPrompt = "You are a concise, helpful AI assistant. Provide clear, accurate answers."

// MinMaxNewTokens is the smallest accepted generation budget.
const MinMaxNewTokens = 16

// Settings holds the generation parameters and the system prompt.
// Values held by a Settings returned from the settings store are always valid.
type Settings struct {
	Temperature       float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	TopP              float64 `json:"top_p" toml:"top_p" yaml:"top_p"`
	TopK              int     `json:"top_k" toml:"top_k" yaml:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty" toml:"repetition_penalty" yaml:"repetition_penalty"`
	MaxNewTokens      int     `json:"max_new_tokens" toml:"max_new_tokens" yaml:"max_new_tokens"`
	SystemPrompt      string  `json:"system_prompt" toml:"system_prompt" yaml:"system_prompt"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Temperature:       0.7,
		TopP:              0.95,
		TopK:              40,
		RepetitionPenalty: 1.05,
		MaxNewTokens:      256,
		SystemPrompt:      DefaultSystemPrompt,
	}
}
