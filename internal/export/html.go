// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a single HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// segment is a run of prose or a fenced code block inside one turn.
type segment struct {
	Code     bool
	Language string
	Text     string
}

type htmlTurn struct {
	Class    string
	Label    string
	Segments []segment
}

type htmlPage struct {
	Title    string
	Theme    string
	Metadata bool
	Model    string
	Exported string
	Settings *model.Settings
	Turns    []htmlTurn
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="rigchat">
<title>{{.Title}}</title>
<style>` + pageCSS + `</style>
</head>
<body class="{{.Theme}}-theme">
<div class="container">
<header>
<h1>{{.Title}}</h1>
{{- if .Metadata}}
<ul class="meta">
{{- if .Model}}<li><b>Model</b> {{.Model}}</li>{{end}}
<li><b>Exported</b> {{.Exported}}</li>
{{- with .Settings}}
<li><b>Sampling</b> temperature {{.Temperature}}, top_p {{.TopP}}, top_k {{.TopK}}, repetition_penalty {{.RepetitionPenalty}}, max_new_tokens {{.MaxNewTokens}}</li>
{{- end}}
</ul>
{{- end}}
</header>
<main>
{{- range .Turns}}
<section class="turn {{.Class}}">
<div class="role">{{.Label}}</div>
{{- range .Segments}}
{{- if .Code}}
<pre><code{{if .Language}} class="language-{{.Language}}"{{end}}>{{.Text}}</code></pre>
{{- else}}
<div class="text">{{.Text}}</div>
{{- end}}
{{- end}}
</section>
{{- end}}
</main>
<footer>Exported from rigchat</footer>
</div>
</body>
</html>
`))

const pageCSS = `
:root { --font-sans: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; --font-mono: "SF Mono", Menlo, Consolas, monospace; }
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --border: #414868; --user: #7aa2f7; --assistant: #9ece6a; --error: #f7768e; }
.light-theme { --bg: #ffffff; --panel: #f6f8fa; --text: #24292e; --muted: #6a737d; --border: #e1e4e8; --user: #0366d6; --assistant: #22863a; --error: #d73a49; }
body { margin: 0; background: var(--bg); color: var(--text); font-family: var(--font-sans); line-height: 1.5; }
.container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
header { border-bottom: 1px solid var(--border); margin-bottom: 1.5rem; }
.meta { list-style: none; padding: 0; color: var(--muted); font-size: 0.9rem; }
.turn { background: var(--panel); border: 1px solid var(--border); border-radius: 6px; padding: 0.75rem 1rem; margin-bottom: 1rem; }
.role { font-weight: 600; margin-bottom: 0.5rem; }
.user .role { color: var(--user); }
.assistant .role { color: var(--assistant); }
.error .role, .error .text { color: var(--error); }
.text { white-space: pre-wrap; }
pre { background: var(--bg); border: 1px solid var(--border); border-radius: 4px; padding: 0.75rem; overflow-x: auto; font-family: var(--font-mono); }
footer { color: var(--muted); font-size: 0.8rem; text-align: center; margin-top: 2rem; }
`

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	turns, err := t.visibleTurns(e.options)
	if err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	page := htmlPage{
		Title:    t.Title(),
		Theme:    theme,
		Metadata: e.options.IncludeMetadata,
		Model:    t.Model,
		Exported: formatTimestamp(t.exportedAt()),
		Settings: t.Settings,
	}
	for _, turn := range turns {
		class := string(turn.Role)
		if turn.Annotation {
			class = "error"
		}
		page.Turns = append(page.Turns, htmlTurn{
			Class:    class,
			Label:    roleLabel(turn),
			Segments: splitFences(turn.Content),
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// splitFences separates ``` fenced code blocks from prose. An unclosed
// fence runs to the end of the content.
func splitFences(content string) []segment {
	var (
		segments []segment
		buf      []string
		inCode   bool
		lang     string
	)
	flush := func() {
		text := strings.Join(buf, "\n")
		if !inCode {
			text = strings.TrimSpace(text)
		}
		if text != "" || inCode {
			segments = append(segments, segment{Code: inCode, Language: lang, Text: text})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if fence, ok := strings.CutPrefix(strings.TrimSpace(line), "```"); ok {
			flush()
			if inCode {
				inCode, lang = false, ""
			} else {
				inCode, lang = true, strings.TrimSpace(fence)
			}
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return segments
}
