// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// titleWidth bounds the document title taken from the first user turn.
const titleWidth = 60

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	MimeType() string
}

// Transcript is the conversation plus the metadata shown in exports.
type Transcript struct {
	Model    string          `json:"model,omitempty"`
	Exported time.Time       `json:"exported"`
	Settings *model.Settings `json:"settings,omitempty"`
	Turns    []model.Turn    `json:"turns"`
}

// Title returns the first line of the first user turn, truncated.
func (t *Transcript) Title() string {
	for _, turn := range t.Turns {
		if turn.Role == model.RoleUser && !turn.IsEmpty() {
			return util.TruncateWidth(util.FirstLine(turn.Content), titleWidth)
		}
	}
	return "Conversation"
}

// visibleTurns applies the options and checks there is something left.
func (t *Transcript) visibleTurns(opts *Options) ([]model.Turn, error) {
	if t == nil {
		return nil, errors.New("transcript is nil")
	}
	turns := make([]model.Turn, 0, len(t.Turns))
	for _, turn := range t.Turns {
		if turn.Annotation && !opts.IncludeErrors {
			continue
		}
		turns = append(turns, turn)
	}
	if len(turns) == 0 {
		return nil, ErrEmpty
	}
	return turns, nil
}

// exportedAt defaults a zero export time to now.
func (t *Transcript) exportedAt() time.Time {
	if t.Exported.IsZero() {
		return time.Now()
	}
	return t.Exported
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the model, date and settings header.
	IncludeMetadata bool

	// IncludeErrors keeps the "[Error] ..." annotations of failed runs.
	IncludeErrors bool

	// Theme for HTML export ("light" or "dark"). Default: "dark"
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		IncludeErrors:   true,
		Theme:           "dark",
	}
}

// Formats lists the accepted format names.
var Formats = []string{"markdown", "json", "html"}

// New returns the exporter for format. "md" and "htm" are accepted aliases.
func New(format string, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (valid: %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// FileName builds a default file name such as
// "conversation_qwen3-1.7b_20250102_150405.md".
func FileName(t *Transcript, exporter Exporter) string {
	name := "conversation"
	if t.Model != "" {
		name += "_" + sanitizeFilename(t.Model)
	}
	return name + "_" + t.exportedAt().Format("20060102_150405") + exporter.FileExtension()
}

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix.
func sanitizeFilename(s string) string {
	runes := []rune(s)
	if len(runes) > 50 {
		runes = runes[:50]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// roleLabel is the heading used for a turn.
func roleLabel(turn model.Turn) string {
	if turn.Annotation {
		return "Error"
	}
	return turn.Role.DisplayName()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
