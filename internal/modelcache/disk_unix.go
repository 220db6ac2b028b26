// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build unix

package modelcache

import (
	"golang.org/x/sys/unix"
)

// FreeSpace returns the bytes available to the current user on the file
// system holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	// Bavail excludes blocks reserved for root.
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
