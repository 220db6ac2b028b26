// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RIGCHAT_OLLAMA_URL", "RIGCHAT_MODEL", "RIGCHAT_FALLBACK_MODEL",
		"RIGCHAT_DATA_DIR", "RIGCHAT_STORAGE", "RIGCHAT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	if cfg.Engine.OllamaURL != "http://localhost:11434" {
		t.Errorf("OllamaURL = %q, want http://localhost:11434", cfg.Engine.OllamaURL)
	}
	if cfg.Cache.StoreName != "transformers-cache" {
		t.Errorf("StoreName = %q, want transformers-cache", cfg.Cache.StoreName)
	}
	assert.True(t, cfg.Engine.RequireAccelerator)
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[engine]
primary_model = "llama3.2:1b"
device = ""

[ui]
theme = "light"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "llama3.2:1b", cfg.Engine.PrimaryModel)
	assert.Equal(t, "auto", cfg.Engine.Device, "empty value should take the default")
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.True(t, cfg.UI.Markdown, "unset bool should keep its default")
	assert.Equal(t, "http://localhost:11434", cfg.Engine.OllamaURL)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"redis\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "storage.backend", verrs[0].Field)
}

func TestLoadFromPath_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine\n"), 0600))

	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Engine.OllamaURL = "localhost:11434" }, "engine.ollama_url"},
		{"empty model", func(c *Config) { c.Engine.PrimaryModel = " " }, "engine.primary_model"},
		{"bad device", func(c *Config) { c.Engine.Device = "tpu" }, "engine.device"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "want ValidateErrors, got %v", err)
			assert.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RIGCHAT_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("RIGCHAT_MODEL", "phi3:mini")
	t.Setenv("RIGCHAT_FALLBACK_MODEL", "tinyllama")
	t.Setenv("RIGCHAT_DATA_DIR", "/tmp/rigchat-test")
	t.Setenv("RIGCHAT_STORAGE", "SQLite")
	t.Setenv("RIGCHAT_LOG_LEVEL", "DEBUG")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://gpu-box:11434", cfg.Engine.OllamaURL)
	assert.Equal(t, "phi3:mini", cfg.Engine.PrimaryModel)
	assert.Equal(t, "tinyllama", cfg.Engine.FallbackModel)
	assert.Equal(t, "/tmp/rigchat-test", cfg.DataDir())
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestResolvedPaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/data"

	assert.Equal(t, filepath.Join("/data", "rigchat.log"), cfg.LogFile())
	assert.Equal(t, []string{filepath.Join("/data", "cache")}, cfg.CacheDirs())

	cfg.Log.File = "/var/log/rigchat.log"
	cfg.Cache.Dirs = []string{"/a", "/b"}
	assert.Equal(t, "/var/log/rigchat.log", cfg.LogFile())
	assert.Equal(t, []string{"/a", "/b"}, cfg.CacheDirs())
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg := Default()
	cfg.Engine.PrimaryModel = "mistral:7b"
	cfg.UI.Markdown = false
	cfg.Cache.Dirs = []string{"/models"}
	require.NoError(t, SaveTOML(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("engine.primary_model", "gemma2:2b"))
	require.NoError(t, cfg.Set("engine.require-accelerator", "false"))
	require.NoError(t, cfg.Set("cache.dirs", "/x, /y"))

	v, err := cfg.Get("engine.primary_model")
	require.NoError(t, err)
	assert.Equal(t, "gemma2:2b", v)
	assert.False(t, cfg.Engine.RequireAccelerator)
	assert.Equal(t, []string{"/x", "/y"}, cfg.Cache.Dirs)

	assert.Error(t, cfg.Set("engine.require_accelerator", "maybe"))
	_, err = cfg.Get("engine.nope")
	assert.Error(t, err)
	_, err = cfg.Get("engine.device.x")
	assert.Error(t, err)
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "engine.ollama_url")
	assert.Contains(t, keys, "ui.show_diagnostics")
	assert.NotContains(t, keys, "engine")
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, nil, func(c *Config) { changes <- c }))

	updated := Default()
	updated.Engine.PrimaryModel = "watched:latest"
	require.NoError(t, SaveTOML(updated, path))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Engine.PrimaryModel == "watched:latest" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
