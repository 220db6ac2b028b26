// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package modelcache

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, DefaultStoreName, "blob"))
	touch(t, filepath.Join(dir, "Xenova-transformers-v3", "model.bin"))
	touch(t, filepath.Join(dir, "model.onnx"))
	touch(t, filepath.Join(dir, "keep.txt"))

	other := t.TempDir()
	touch(t, filepath.Join(other, "onnxruntime-web"))

	removed := Clearer{Dirs: []string{dir, other, filepath.Join(dir, "missing")}}.Clear()
	assert.Equal(t, 4, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestClear_CustomStoreName(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "my-store", "a"))
	touch(t, filepath.Join(dir, DefaultStoreName, "a"))

	removed := Clearer{Dirs: []string{dir}, StoreName: "my-store"}.Clear()
	// The default store name still matches the "transformers" marker.
	assert.Equal(t, 2, removed)
}

func TestClear_NothingToDo(t *testing.T) {
	assert.Equal(t, 0, Clearer{}.Clear())
	assert.Equal(t, 0, Clearer{Dirs: []string{t.TempDir()}}.Clear())
}

func TestFreeSpace(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		t.Skip("free space check not supported")
	}
	free, err := FreeSpace(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, free)

	_, err = FreeSpace(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
