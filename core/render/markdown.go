// Package render turns analysis Markdown into output documents.
// This file implements the Markdown renderer: a metadata header followed by
// the analysis text as-is.
package render

import (
	"fmt"
	"strings"

	"github.com/gaurav-prasanna/editalpipe/core"
)

// MarkdownRenderer writes Markdown with a short provenance header.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render prefixes markdown with the document title and provenance.
func (r *MarkdownRenderer) Render(markdown string, meta core.DocumentMeta) ([]byte, error) {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	}
	if line := provenance(meta); line != "" {
		fmt.Fprintf(&b, "> %s\n\n", line)
	}
	b.WriteString(strings.TrimSpace(markdown))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownRenderer) Extension() string {
	return ".md"
}

// provenance joins the non-empty metadata fields into one line.
func provenance(meta core.DocumentMeta) string {
	var parts []string
	if meta.Source != "" {
		parts = append(parts, "Fonte: "+meta.Source)
	}
	if meta.Model != "" {
		parts = append(parts, "Modelo: "+meta.Model)
	}
	if meta.GeneratedAt != "" {
		parts = append(parts, "Gerado em: "+meta.GeneratedAt)
	}
	return strings.Join(parts, " | ")
}
