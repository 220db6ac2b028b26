// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/model"
)

func sampleTranscript() *Transcript {
	settings := model.DefaultSettings()
	return &Transcript{
		Model:    "qwen3:1.7b",
		Exported: time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC),
		Settings: &settings,
		Turns: []model.Turn{
			model.NewTurn(model.RoleUser, "How do I print in Go?\nThanks"),
			model.NewTurn(model.RoleAssistant, "Use fmt:\n```go\nfmt.Println(\"<hi>\")\n```\nDone."),
			model.NewTurn(model.RoleUser, "and again"),
			model.NewErrorAnnotation("device lost"),
		},
	}
}

func TestNew(t *testing.T) {
	for format, ext := range map[string]string{
		"markdown": ".md", "md": ".md", "JSON": ".json", "html": ".html", "htm": ".html",
	} {
		e, err := New(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.FileExtension(), format)
	}

	_, err := New("pdf", nil)
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "How do I print in Go?", sampleTranscript().Title())
	assert.Equal(t, "Conversation", (&Transcript{}).Title())

	long := &Transcript{Turns: []model.Turn{model.NewTurn(model.RoleUser, strings.Repeat("a", 100))}}
	assert.LessOrEqual(t, len(long.Title()), titleWidth)
	assert.True(t, strings.HasSuffix(long.Title(), "..."))
}

func TestEmptyTranscript(t *testing.T) {
	for _, format := range Formats {
		e, err := New(format, nil)
		require.NoError(t, err)

		_, err = e.Export(&Transcript{})
		assert.ErrorIs(t, err, ErrEmpty, format)

		onlyErrors := &Transcript{Turns: []model.Turn{model.NewErrorAnnotation("x")}}
		_, err = e.Export(onlyErrors)
		assert.NoError(t, err, format)

		e, _ = New(format, &Options{})
		_, err = e.Export(onlyErrors)
		assert.ErrorIs(t, err, ErrEmpty, format)
	}
}

func TestMarkdownExport(t *testing.T) {
	data, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "---\n"))
	end := strings.Index(out[4:], "---\n")
	require.Positive(t, end)
	var header map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out[4:4+end]), &header))
	assert.Equal(t, "qwen3:1.7b", header["model"])
	assert.Equal(t, 4, header["messages"])
	assert.Equal(t, "rigchat", header["generator"])

	assert.Contains(t, out, "# How do I print in Go?\n")
	assert.Contains(t, out, "### User\n\nHow do I print in Go?\nThanks")
	assert.Contains(t, out, "### Assistant\n\nUse fmt:\n```go")
	assert.Contains(t, out, "### Error\n\n> [Error] device lost")
	assert.Contains(t, out, "2025-01-02 15:04:05")
}

func TestMarkdownWithoutMetadataOrErrors(t *testing.T) {
	data, err := NewMarkdownExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "# How do I print"))
	assert.NotContains(t, out, "device lost")
	assert.NotContains(t, out, "generator:")
}

func TestJSONExport(t *testing.T) {
	data, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var got Transcript
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "qwen3:1.7b", got.Model)
	require.NotNil(t, got.Settings)
	assert.Equal(t, model.DefaultSettings(), *got.Settings)
	assert.Equal(t, sampleTranscript().Turns, got.Turns)

	data, err = NewJSONExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Turns, 3)
}

func TestHTMLExport(t *testing.T) {
	data, err := NewHTMLExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "<title>How do I print in Go?</title>")
	assert.Contains(t, out, `class="dark-theme"`)
	assert.Contains(t, out, `<code class="language-go">fmt.Println(&#34;&lt;hi&gt;&#34;)</code>`)
	assert.Contains(t, out, `<section class="turn error">`)
	assert.Contains(t, out, "qwen3:1.7b")
	assert.NotContains(t, out, "<hi>")

	data, err = NewHTMLExporter(&Options{Theme: "light"}).Export(sampleTranscript())
	require.NoError(t, err)
	assert.Contains(t, string(data), `class="light-theme"`)
	assert.NotContains(t, string(data), `class="meta"`)
}

func TestSplitFences(t *testing.T) {
	got := splitFences("intro\n```sh\nls\n```\noutro\n```\nunclosed")
	assert.Equal(t, []segment{
		{Text: "intro"},
		{Code: true, Language: "sh", Text: "ls"},
		{Text: "outro"},
		{Code: true, Text: "unclosed"},
	}, got)
}

func TestFileName(t *testing.T) {
	tr := sampleTranscript()
	assert.Equal(t, "conversation_qwen3-1.7b_20250102_150405.md", FileName(tr, NewMarkdownExporter(nil)))

	tr.Model = ""
	assert.Equal(t, "conversation_20250102_150405.json", FileName(tr, NewJSONExporter(nil)))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b:c d"))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("x", 80))), 50)
}
