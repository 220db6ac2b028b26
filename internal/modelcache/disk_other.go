// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix && !windows

package modelcache

import (
	"errors"
)

// FreeSpace is not supported on this platform.
func FreeSpace(path string) (uint64, error) {
	return 0, errors.New("free space check not supported")
}
