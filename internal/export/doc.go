// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders the saved conversation as a standalone document.
//
// # Supported Formats
//
//   - markdown: YAML frontmatter, one heading per turn
//   - json: the transcript as stored, with metadata
//   - html: a single page with embedded CSS (dark or light)
//
// # Usage
//
//	exporter, err := export.New("markdown", export.DefaultOptions())
//	data, err := exporter.Export(&export.Transcript{Model: id, Turns: turns})
package export
