// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// SETTINGS INPUT
// =============================================================================

// SettingsInput is a partial settings update in raw, user-typed form.
// Nil fields keep their current value.
type SettingsInput struct {
	Temperature       *string
	TopP              *string
	TopK              *string
	RepetitionPenalty *string
	MaxNewTokens      *string
	SystemPrompt      *string
}

// SettingsKeys lists the field names accepted by SettingsInput.Set.
var SettingsKeys = []string{
	"temperature",
	"top_p",
	"top_k",
	"repetition_penalty",
	"max_new_tokens",
	"system_prompt",
}

// Set assigns the raw value for the field named key.
// Dashes are accepted in place of underscores.
func (in *SettingsInput) Set(key, value string) error {
	v := value
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_") {
	case "temperature":
		in.Temperature = &v
	case "top_p":
		in.TopP = &v
	case "top_k":
		in.TopK = &v
	case "repetition_penalty":
		in.RepetitionPenalty = &v
	case "max_new_tokens":
		in.MaxNewTokens = &v
	case "system_prompt":
		in.SystemPrompt = &v
	default:
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(SettingsKeys, ", "))
	}
	return nil
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore loads, coerces and persists generation settings.
// None of its operations fail; invalid input always collapses to defaults.
type SettingsStore struct {
	mu      sync.Mutex
	kv      KV
	logger  *zap.Logger
	current model.Settings
}

// NewSettingsStore creates a store over kv and loads the persisted settings.
func NewSettingsStore(kv KV, logger *zap.Logger) *SettingsStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SettingsStore{kv: kv, logger: logger, current: model.DefaultSettings()}
	s.Load()
	return s
}

// Load reads the stored settings blob. Missing or corrupt data yields the
// defaults; individual invalid fields take their own default.
func (s *SettingsStore) Load() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = model.DefaultSettings()

	raw, found, err := s.kv.Get(KeySettings)
	if err != nil {
		s.logger.Warn("settings read failed, using defaults", zap.Error(err))
		return s.current
	}
	if !found {
		return s.current
	}

	in, ok := decodeStoredSettings(raw)
	if !ok {
		s.logger.Warn("stored settings unreadable, using defaults", zap.Int("bytes", len(raw)))
		return s.current
	}

	s.current = applySettings(model.DefaultSettings(), in)
	return s.current
}

// Current returns the settings last loaded or saved.
func (s *SettingsStore) Current() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Save merges in over the current settings, coerces every field, persists
// and returns the canonical result.
func (s *SettingsStore) Save(in SettingsInput) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = applySettings(s.current, in)
	s.persistLocked()
	return s.current
}

// Reset restores and persists the defaults.
func (s *SettingsStore) Reset() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = model.DefaultSettings()
	s.persistLocked()
	return s.current
}

func (s *SettingsStore) persistLocked() {
	data, err := json.Marshal(s.current)
	if err != nil {
		s.logger.Error("settings encode failed", zap.Error(err))
		return
	}
	if err := s.kv.Set(KeySettings, data); err != nil {
		s.logger.Error("settings write failed", zap.Error(err))
	}
}

// Export renders the current settings as "json", "toml" or "yaml".
func (s *SettingsStore) Export(format string) (string, error) {
	cur := s.Current()

	switch strings.ToLower(format) {
	case "", "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cur); err != nil {
			return "", fmt.Errorf("failed to encode settings: %w", err)
		}
		return buf.String(), nil
	case "json":
		data, err := json.MarshalIndent(cur, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode settings: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml", "yml":
		data, err := yaml.Marshal(cur)
		if err != nil {
			return "", fmt.Errorf("failed to encode settings: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format %q (use toml, json or yaml)", format)
	}
}

// =============================================================================
// COERCION
// =============================================================================

// applySettings returns base with every non-nil field of in coerced and applied.
func applySettings(base model.Settings, in SettingsInput) model.Settings {
	def := model.DefaultSettings()
	out := base

	if in.Temperature != nil {
		out.Temperature = coerceFloat(*in.Temperature, def.Temperature, func(v float64) bool { return v >= 0 })
	}
	if in.TopP != nil {
		out.TopP = coerceFloat(*in.TopP, def.TopP, func(v float64) bool { return v >= 0 && v <= 1 })
	}
	if in.TopK != nil {
		out.TopK = coerceInt(*in.TopK, def.TopK, 0)
	}
	if in.RepetitionPenalty != nil {
		out.RepetitionPenalty = coerceFloat(*in.RepetitionPenalty, def.RepetitionPenalty, func(v float64) bool { return v > 0 })
	}
	if in.MaxNewTokens != nil {
		out.MaxNewTokens = coerceInt(*in.MaxNewTokens, def.MaxNewTokens, model.MinMaxNewTokens)
	}
	if in.SystemPrompt != nil {
		out.SystemPrompt = *in.SystemPrompt
		if out.SystemPrompt == "" {
			out.SystemPrompt = def.SystemPrompt
		}
	}

	return out
}

// parseFinite parses raw as a finite float64.
func parseFinite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func coerceFloat(raw string, def float64, valid func(float64) bool) float64 {
	v, ok := parseFinite(raw)
	if !ok || !valid(v) {
		return def
	}
	return v
}

// coerceInt floors raw and clamps it to at least min.
func coerceInt(raw string, def, min int) int {
	v, ok := parseFinite(raw)
	if !ok {
		return def
	}
	v = math.Floor(v)
	if v < float64(min) {
		return min
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// decodeStoredSettings turns a stored blob into a SettingsInput. Numbers may
// be stored as JSON numbers or numeric strings; anything else is treated as
// an unparsable value. ok is false when the blob is not a JSON object.
func decodeStoredSettings(raw []byte) (SettingsInput, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return SettingsInput{}, false
	}

	var in SettingsInput
	for _, key := range SettingsKeys {
		value, present := fields[key]
		if !present {
			continue
		}
		text := storedScalar(value, key == "system_prompt")
		_ = in.Set(key, text)
	}
	return in, true
}

// storedScalar extracts the text of a stored JSON scalar. Invalid values
// become "" which coerces to the field default.
func storedScalar(value json.RawMessage, wantString bool) string {
	var str string
	if err := json.Unmarshal(value, &str); err == nil {
		return str
	}
	if wantString {
		return ""
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		return num.String()
	}
	return ""
}
