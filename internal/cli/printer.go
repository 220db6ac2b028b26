// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// streamPrinter writes session output for the line-based commands. It
// implements session.Listener.
type streamPrinter struct {
	mu sync.Mutex

	// out receives the streamed reply when stream is set.
	out    io.Writer
	stream bool

	// status receives load progress; nil disables it.
	status io.Writer

	shown      string
	progressOn bool
}

// OnEvent implements session.Listener.
func (p *streamPrinter) OnEvent(e session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := e.(type) {
	case session.ContentUpdated:
		if p.stream {
			p.writeDeltaLocked(e.Text)
		}

	case session.LoadProgress:
		if p.status == nil || e.Total <= 0 {
			return
		}
		label := util.TruncateWidth(e.File, 40)
		if label == "" {
			label = e.Stage
		}
		fmt.Fprintf(p.status, "\r%s %3.0f%%", dimStyle.Render(label), e.Fraction()*100)
		p.progressOn = true

	case session.ModelStateChanged:
		if p.status == nil {
			return
		}
		if p.progressOn && e.Snapshot.State != lifecycle.Loading {
			fmt.Fprintln(p.status)
			p.progressOn = false
		}
		if e.Snapshot.State == lifecycle.Loading {
			fmt.Fprintf(p.status, "%s %s\n", dimStyle.Render("Loading"), e.Snapshot.Target)
		}
	}
}

// begin starts a new reply.
func (p *streamPrinter) begin() {
	p.mu.Lock()
	p.shown = ""
	p.mu.Unlock()
}

// finish writes whatever the final text adds to the streamed text and ends
// the line. It reports whether anything was written for this reply.
func (p *streamPrinter) finish(final string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream {
		p.writeDeltaLocked(final)
	}
	wrote := p.stream && p.shown != ""
	if wrote && !strings.HasSuffix(p.shown, "\n") {
		io.WriteString(p.out, "\n")
	}
	p.shown = ""
	return wrote
}

// writeDeltaLocked prints the part of text not yet shown. Text that does
// not extend what was shown is skipped.
func (p *streamPrinter) writeDeltaLocked(text string) {
	if !strings.HasPrefix(text, p.shown) || len(text) == len(p.shown) {
		return
	}
	io.WriteString(p.out, text[len(p.shown):])
	p.shown = text
}
