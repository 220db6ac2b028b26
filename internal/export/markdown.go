// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title     string          `yaml:"title"`
	Model     string          `yaml:"model,omitempty"`
	Exported  string          `yaml:"exported"`
	Messages  int             `yaml:"messages"`
	Generator string          `yaml:"generator"`
	Settings  *model.Settings `yaml:"settings,omitempty"`
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	turns, err := t.visibleTurns(e.options)
	if err != nil {
		return nil, err
	}
	exported := t.exportedAt()

	var sb strings.Builder
	if e.options.IncludeMetadata {
		header, err := yaml.Marshal(frontmatter{
			Title:     t.Title(),
			Model:     t.Model,
			Exported:  exported.Format(time.RFC3339),
			Messages:  len(turns),
			Generator: "rigchat",
			Settings:  t.Settings,
		})
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	for i, turn := range turns {
		fmt.Fprintf(&sb, "### %s\n\n", roleLabel(turn))
		content := strings.TrimSpace(turn.Content)
		if turn.Annotation {
			content = "> " + strings.ReplaceAll(content, "\n", "\n> ")
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
		if i < len(turns)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "---\n\n*Exported from rigchat on %s*\n", formatTimestamp(exported))
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes the characters that break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return r.Replace(s)
}
