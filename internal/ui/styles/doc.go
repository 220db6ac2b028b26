// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling of the rigchat TUI.
// Colors use lipgloss AdaptiveColor so one palette serves light and dark
// terminals.
package styles
