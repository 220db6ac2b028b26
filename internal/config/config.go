// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Cache   CacheConfig   `toml:"cache"`
	UI      UIConfig      `toml:"ui"`
}

// EngineConfig contains inference engine configuration.
type EngineConfig struct {
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url"`
	// PrimaryModel is loaded first
	PrimaryModel string `toml:"primary_model"`
	// FallbackModel is offered when the primary model type is unsupported
	FallbackModel string `toml:"fallback_model"`
	// Device is "auto", "gpu" or "cpu"
	Device string `toml:"device"`
	// RequireAccelerator disables loading when no GPU is detected
	RequireAccelerator bool `toml:"require_accelerator"`
	// KeepAlive is how long Ollama keeps the model resident (e.g. "30m")
	KeepAlive string `toml:"keep_alive"`
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	// Backend is "file", "sqlite" or "memory"
	Backend string `toml:"backend"`
	// DataDir holds state files and the SQLite database (empty = ~/.rigchat)
	DataDir string `toml:"data_dir"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error"
	Level string `toml:"level"`
	// File is the log file path (empty = <data_dir>/rigchat.log)
	File string `toml:"file"`
}

// CacheConfig describes the on-disk model cache cleared by "cache clear".
type CacheConfig struct {
	// Dirs are scanned for cache entries (empty = <data_dir>/cache)
	Dirs []string `toml:"dirs"`
	// StoreName is the cache store removed as a whole
	StoreName string `toml:"store_name"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Theme is "dark" or "light"
	Theme string `toml:"theme"`
	// Markdown renders assistant turns with glamour
	Markdown bool `toml:"markdown"`
	// ShowDiagnostics shows TTFT and tok/s after each run
	ShowDiagnostics bool `toml:"show_diagnostics"`
}

// =============================================================================
// DEFAULT CONFIG
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			OllamaURL:          "http://localhost:11434",
			PrimaryModel:       "qwen3:1.7b",
			FallbackModel:      "qwen2.5:0.5b-instruct",
			Device:             "auto",
			RequireAccelerator: true,
			KeepAlive:          "30m",
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			StoreName: "transformers-cache",
		},
		UI: UIConfig{
			Theme:           "dark",
			Markdown:        true,
			ShowDiagnostics: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	dir, err := ConfigDir()
	if err != nil {
		return ".rigchat"
	}
	return dir
}

// LogFile returns the resolved log file path.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir(), "rigchat.log")
}

// CacheDirs returns the resolved cache directories.
func (c *Config) CacheDirs() []string {
	if len(c.Cache.Dirs) > 0 {
		return append([]string(nil), c.Cache.Dirs...)
	}
	return []string{filepath.Join(c.DataDir(), "cache")}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.rigchat/config.toml, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path with full validation.
// A missing file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path over the defaults without environment overrides or
// validation. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		// SECURITY: Config may carry endpoints with credentials; keep it owner-only.
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
		fillDefaults(cfg)
	}
	return cfg, nil
}

// fillDefaults restores defaults for values the file set to empty.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Engine.OllamaURL == "" {
		cfg.Engine.OllamaURL = defaults.Engine.OllamaURL
	}
	if cfg.Engine.PrimaryModel == "" {
		cfg.Engine.PrimaryModel = defaults.Engine.PrimaryModel
	}
	if cfg.Engine.FallbackModel == "" {
		cfg.Engine.FallbackModel = defaults.Engine.FallbackModel
	}
	if cfg.Engine.Device == "" {
		cfg.Engine.Device = defaults.Engine.Device
	}
	if cfg.Engine.KeepAlive == "" {
		cfg.Engine.KeepAlive = defaults.Engine.KeepAlive
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Cache.StoreName == "" {
		cfg.Cache.StoreName = defaults.Cache.StoreName
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// ensureSecurePermissions tightens path to 0600 if needed.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to ~/.rigchat/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path with 0600 permissions.
// RELIABILITY: Atomic write with fsync prevents a truncated config on crash.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration file\n")
	buf.WriteString("# Generated by rigchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends  = []string{"file", "sqlite", "memory"}
	validDevices   = []string{"auto", "gpu", "cpu"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validThemes    = []string{"dark", "light"}
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Engine.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.ollama_url",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", c.Engine.OllamaURL),
		})
	}
	if strings.TrimSpace(c.Engine.PrimaryModel) == "" {
		errs = append(errs, ValidationError{Field: "engine.primary_model", Message: "must not be empty"})
	}
	if !oneOf(c.Engine.Device, validDevices) {
		errs = append(errs, ValidationError{
			Field:   "engine.device",
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validDevices, ", "), c.Engine.Device),
		})
	}
	if !oneOf(c.Storage.Backend, validBackends) {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validBackends, ", "), c.Storage.Backend),
		})
	}
	if !oneOf(strings.ToLower(c.Log.Level), validLogLevels) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Log.Level),
		})
	}
	if !oneOf(c.UI.Theme, validThemes) {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validThemes, ", "), c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_OLLAMA_URL: overrides engine.ollama_url
//   - RIGCHAT_MODEL: overrides engine.primary_model
//   - RIGCHAT_FALLBACK_MODEL: overrides engine.fallback_model
//   - RIGCHAT_DATA_DIR: overrides storage.data_dir
//   - RIGCHAT_STORAGE: overrides storage.backend
//   - RIGCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGCHAT_OLLAMA_URL"); v != "" {
		c.Engine.OllamaURL = v
	}
	if v := os.Getenv("RIGCHAT_MODEL"); v != "" {
		c.Engine.PrimaryModel = v
	}
	if v := os.Getenv("RIGCHAT_FALLBACK_MODEL"); v != "" {
		c.Engine.FallbackModel = v
	}
	if v := os.Getenv("RIGCHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("RIGCHAT_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RIGCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "engine.device").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value from its string form using dot notation.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value %q", value)
		}
		field.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("cannot assign to %s of type %s", key, field.Type())
	}
	return nil
}

// lookup walks the TOML tags of Config along a dotted key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i], "."))
		}
		field, ok := fieldByTag(v, strings.ReplaceAll(part, "-", "_"))
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if strings.EqualFold(t.Field(i).Tag.Get("toml"), name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Keys returns every leaf configuration key in dot notation.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := prefix + f.Tag.Get("toml")
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name+".", keys)
			continue
		}
		*keys = append(*keys, name)
	}
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config encode error: %v>", err)
	}
	return buf.String()
}
