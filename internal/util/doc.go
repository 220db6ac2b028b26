// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by rigchat's packages.
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// Text:
//   - TruncateWidth: display-width truncation for status lines
//   - FirstLine: single-line previews of multi-line content
package util
