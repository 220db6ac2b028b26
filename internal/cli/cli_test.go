// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

type env struct {
	t          *testing.T
	dir        string
	configPath string
	dataDir    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	for _, key := range []string{
		"RIGCHAT_OLLAMA_URL", "RIGCHAT_MODEL", "RIGCHAT_FALLBACK_MODEL",
		"RIGCHAT_DATA_DIR", "RIGCHAT_STORAGE", "RIGCHAT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	return &env{
		t:          t,
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		dataDir:    filepath.Join(dir, "data"),
	}
}

// execute runs the command line and returns stdout, stderr and exit code.
func (e *env) execute(args ...string) (string, string, int) {
	e.t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	full := append([]string{"--config", e.configPath, "--data-dir", e.dataDir}, args...)
	code := run(context.Background(), root, full, &errOut)
	return out.String(), errOut.String(), code
}

func (e *env) mustExecute(args ...string) string {
	e.t.Helper()
	out, errOut, code := e.execute(args...)
	require.Equal(e.t, 0, code, "stderr: %s", errOut)
	return out
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettingsSetAndShow(t *testing.T) {
	e := newEnv(t)

	e.mustExecute("settings", "set", "temperature", "0.3", "top_k", "12")

	out := e.mustExecute("settings", "show", "--format", "json")
	var got model.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 12, got.TopK)
	assert.Equal(t, model.DefaultSettings().TopP, got.TopP)
}

func TestSettingsInvalidValueTakesDefault(t *testing.T) {
	e := newEnv(t)

	e.mustExecute("settings", "set", "temperature", "abc", "max_new_tokens", "4")

	out := e.mustExecute("settings", "show", "--format", "yaml")
	assert.Contains(t, out, "temperature: 0.7")
	assert.Contains(t, out, "max_new_tokens: 16")
}

func TestSettingsSetErrors(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.execute("settings", "set", "temperature")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "expected KEY VALUE pairs")

	_, errOut, code = e.execute("settings", "set", "colour", "red")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown setting")

	_, errOut, code = e.execute("settings", "show", "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported format")
}

func TestSettingsReset(t *testing.T) {
	e := newEnv(t)
	e.mustExecute("settings", "set", "top_p", "0.5")

	e.mustExecute("settings", "reset")

	out := e.mustExecute("settings", "show", "--format", "json")
	var got model.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, model.DefaultSettings(), got)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistoryShowAndReset(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.mustExecute("history", "show"), "(no messages)")

	kv, err := storage.Open(storage.BackendFile, e.dataDir)
	require.NoError(t, err)
	conv := storage.NewConversationStore(kv, nil)
	require.NoError(t, conv.Append(model.NewTurn(model.RoleUser, "hi")))
	require.NoError(t, conv.Append(model.NewTurn(model.RoleAssistant, "hello")))

	out := e.mustExecute("history", "show")
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, "hello")

	var turns []model.Turn
	require.NoError(t, json.Unmarshal([]byte(e.mustExecute("history", "show", "--json")), &turns))
	assert.Equal(t, []model.Turn{
		model.NewTurn(model.RoleUser, "hi"),
		model.NewTurn(model.RoleAssistant, "hello"),
	}, turns)

	e.mustExecute("history", "reset")
	assert.Contains(t, e.mustExecute("history", "show"), "(no messages)")
}

func TestHistoryExport(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.execute("history", "export")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no messages")

	kv, err := storage.Open(storage.BackendFile, e.dataDir)
	require.NoError(t, err)
	conv := storage.NewConversationStore(kv, nil)
	require.NoError(t, conv.Append(model.NewTurn(model.RoleUser, "hi")))
	require.NoError(t, conv.Append(model.NewTurn(model.RoleAssistant, "hello")))

	out := e.mustExecute("history", "export")
	assert.Contains(t, out, "# hi")
	assert.Contains(t, out, "### Assistant\n\nhello")

	dir := filepath.Join(e.dir, "exports")
	require.NoError(t, os.MkdirAll(dir, 0700))
	e.mustExecute("history", "export", "-f", "html", "-o", dir)
	files, err := filepath.Glob(filepath.Join(dir, "conversation_*.html"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	_, errOut, code = e.execute("history", "export", "-f", "pdf")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported export format")
}

// =============================================================================
// CACHE
// =============================================================================

func TestCacheClear(t *testing.T) {
	e := newEnv(t)
	cacheDir := filepath.Join(e.dataDir, "cache")
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "transformers-cache", "blobs"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "model.onnx"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "keep.txt"), []byte("x"), 0600))

	out := e.mustExecute("cache", "clear")

	assert.Contains(t, out, "2 removed")
	assert.NoDirExists(t, filepath.Join(cacheDir, "transformers-cache"))
	assert.NoFileExists(t, filepath.Join(cacheDir, "model.onnx"))
	assert.FileExists(t, filepath.Join(cacheDir, "keep.txt"))
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigSetGet(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, e.configPath+"\n", e.mustExecute("config", "path"))

	e.mustExecute("config", "set", "ui.theme", "light")
	assert.Equal(t, "light\n", e.mustExecute("config", "get", "ui.theme"))

	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `theme = "light"`)
	assert.NotContains(t, string(data), e.dataDir, "flag overrides must not be saved")

	_, errOut, code := e.execute("config", "set", "ui.theme", "purple")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "ui.theme")
}

func TestInvalidConfigFails(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.configPath, []byte("[engine]\ndevice = \"tpu\"\n"), 0600))

	_, errOut, code := e.execute("settings", "show")

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "engine.device")
}

func TestFlagOverrides(t *testing.T) {
	e := newEnv(t)

	out := e.mustExecute("--model", "llama3.2:1b", "--log-level", "warn", "config", "show")

	assert.Contains(t, out, `primary_model = "llama3.2:1b"`)
	assert.Contains(t, out, `level = "warn"`)

	_, errOut, code := e.execute("--log-level", "loud", "config", "show")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "log.level")
}

func TestUnknownCommand(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.execute("dance")

	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(errOut, "unknown command") || strings.Contains(errOut, "accepts 0 arg"), errOut)
}

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion(strings.NewReader("ignored"), []string{"what", "is", "go?"})
	require.NoError(t, err)
	assert.Equal(t, "what is go?", q)

	q, err = readQuestion(strings.NewReader("  from stdin\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", q)

	q, err = readQuestion(strings.NewReader("piped"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "piped", q)

	_, err = readQuestion(strings.NewReader("   "), nil)
	assert.EqualError(t, err, "no question given")
}
