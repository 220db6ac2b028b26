// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Terminal prompts for the line-based commands.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/util"
)

// lineReader is the part of liner.State used by the prompts and the repl.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// =============================================================================
// FALLBACK CONFIRMATION
// =============================================================================

// lineConfirmer asks whether to load the fallback model on the terminal.
// It implements lifecycle.Confirmer.
type lineConfirmer struct {
	mu  sync.Mutex
	out io.Writer

	// line is reused when set; otherwise a liner is opened per question
	// when stdin is a terminal.
	line lineReader

	// assume answers without asking when set.
	assume *bool
}

// ConfirmFallback implements lifecycle.Confirmer.
func (c *lineConfirmer) ConfirmFallback(ctx context.Context, primaryID, fallbackID string, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	reason := "unsupported model"
	if cause != nil {
		reason = util.FirstLine(cause.Error())
	}
	fmt.Fprintf(c.out, "%s %s could not be loaded: %s\n", warningStyle.Render("!"), primaryID, reason)

	if c.assume != nil {
		if *c.assume {
			fmt.Fprintf(c.out, "%s loading %s instead\n", dimStyle.Render("->"), fallbackID)
		}
		return *c.assume
	}
	if ctx.Err() != nil {
		return false
	}

	line := c.line
	if line == nil {
		if !IsTTY() {
			return false
		}
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		defer state.Close()
		line = state
	}

	answer, err := line.Prompt(fmt.Sprintf("Load %s instead? [y/N] ", fallbackID))
	if err != nil {
		return false
	}
	return parseYes(answer)
}

// parseYes accepts y and yes in any case.
func parseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
