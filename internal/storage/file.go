// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/rigchat/internal/util"
)

// FileKV stores each key as a JSON file under BaseDir.
type FileKV struct {
	// BaseDir is the directory holding one file per key.
	// Default: ~/.rigchat/state/
	BaseDir string
}

// NewFileKV creates a file store rooted at baseDir, creating the directory.
func NewFileKV(baseDir string) (*FileKV, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &FileKV{BaseDir: baseDir}, nil
}

// Get reads the file for key.
func (f *FileKV) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.filePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set writes the file for key.
// RELIABILITY: Atomic write with fsync so a crash leaves either the old or the new blob.
func (f *FileKV) Set(key string, value []byte) error {
	return util.AtomicWriteFile(f.filePath(key), value, 0600)
}

// filePath maps a key to a file name. Separators and ':' are replaced so any
// key yields a single file inside BaseDir.
func (f *FileKV) filePath(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(f.BaseDir, name+".json")
}
