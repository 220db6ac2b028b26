// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package modelcache clears cached model files from disk and reports the
// free space left for them.
package modelcache

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultStoreName is the cache store removed by Clear.
const DefaultStoreName = "transformers-cache"

// markers select cache entries that belong to model runtimes.
var markers = []string{"transformers", "onnx"}

// Clearer removes the named cache store and model entries under Dirs.
type Clearer struct {
	Dirs      []string
	StoreName string
	Logger    *zap.Logger
}

// Clear is best effort: failures are logged and skipped. It returns the
// number of entries removed.
func (c Clearer) Clear() int {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storeName := c.StoreName
	if storeName == "" {
		storeName = DefaultStoreName
	}

	removed := 0
	for _, dir := range c.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("cache dir unreadable", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if name != storeName && !matches(name) {
				continue
			}
			path := filepath.Join(dir, name)
			if err := os.RemoveAll(path); err != nil {
				logger.Warn("cache entry not removed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Debug("cache entry removed", zap.String("path", path))
			removed++
		}
	}
	return removed
}

func matches(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
