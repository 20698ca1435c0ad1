// Package snapshot saves a readable copy of a page the driver gave up on.
// The page is stripped of noise with goquery and converted to Markdown, so a
// human can see which controls were actually offered.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// FileName is the name of the snapshot written into a record's directory.
const FileName = "page.md"

// noiseSelectors contribute nothing to diagnosing a missing control.
// Buttons and links are kept on purpose.
var noiseSelectors = []string{
	"script", "style", "noscript",
	"img", "picture", "svg", "canvas",
	"iframe", "video", "audio",
	"link", "meta",
}

// Clean removes noise and returns the best content container as HTML.
func Clean(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	// <main> is the most specific, then <article>, then <body>.
	var content *goquery.Selection
	for _, tag := range []string{"main", "article", "body"} {
		sel := doc.Find(tag)
		if sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		return "", fmt.Errorf("no content container found in HTML")
	}

	result, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("serializing content: %w", err)
	}
	return result, nil
}

// Markdown converts a page to Markdown after cleaning it.
func Markdown(html string) (string, error) {
	cleaned, err := Clean(html)
	if err != nil {
		return "", err
	}
	markdown, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return markdown, nil
}

// Write stores the Markdown form of html as dir/page.md, headed by the page
// URL, and returns the file path.
func Write(html, pageURL, dir string) (string, error) {
	markdown, err := Markdown(html)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	var b strings.Builder
	if pageURL != "" {
		fmt.Fprintf(&b, "<!-- source: %s -->\n\n", pageURL)
	}
	b.WriteString(markdown)
	b.WriteString("\n")

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
