// Package resolve turns intermediary pages into real download links.
// Aggregator pages usually point at the issuing portal or embed a file link;
// both are recoverable from the markup without a browser.
package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/classify"
)

// ErrNoLink is returned when a page holds no usable download link.
var ErrNoLink = errors.New("no download link found on page")

// originalSiteMarker is how alertalicitacao.com.br points at the issuing portal.
var originalSiteMarker = regexp.MustCompile(`Visitar site original para mais detalhes:\s*(https?://[^\s<>"']+)`)

// PageResolver fetches a page statically and inspects its markup.
type PageResolver struct {
	fetcher    core.Fetcher
	classifier core.Classifier
	logger     *slog.Logger
}

// New creates a PageResolver.
func New(fetcher core.Fetcher, classifier core.Classifier, logger *slog.Logger) *PageResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageResolver{fetcher: fetcher, classifier: classifier, logger: logger}
}

// Resolve returns the best download link found on pageURL. Preference:
// the aggregator's "original site" marker, then direct file anchors, then
// anchors to a known portal.
func (r *PageResolver) Resolve(ctx context.Context, pageURL string) (core.Resolution, error) {
	res, err := r.fetcher.Fetch(ctx, pageURL, nil)
	if err != nil {
		return core.Resolution{}, fmt.Errorf("fetching intermediary page: %w", err)
	}
	if res.Kind != core.KindHTML {
		// The "page" already is the file.
		return core.Resolution{Link: res.URL, File: res}, nil
	}
	link, err := r.FromHTML(res.Body, res.URL)
	if err != nil {
		return core.Resolution{}, err
	}
	r.logger.Debug("resolved intermediary page", "page", pageURL, "link", link)
	return core.Resolution{Link: link}, nil
}

// FromHTML picks a download link out of raw markup.
func (r *PageResolver) FromHTML(html []byte, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	if m := originalSiteMarker.FindStringSubmatch(doc.Text()); m != nil {
		return m[1], nil
	}

	links := extractLinks(doc, baseURL)
	for _, link := range links {
		if classify.IsFileLink(link) {
			return link, nil
		}
	}
	for _, link := range links {
		c, err := r.classifier.Classify(link)
		if err != nil || c.Pattern == "default" || c.Pattern == "alertalicitacao" {
			continue
		}
		return link, nil
	}
	return "", ErrNoLink
}

// extractLinks returns all href values from <a> tags, resolved against baseURL.
func extractLinks(doc *goquery.Document, baseURL string) []string {
	base, _ := url.Parse(baseURL)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		if resolved := resolveURL(href, base); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links
}

// resolveURL resolves a potentially relative URL against a base.
func resolveURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	// Skip mailto, javascript, etc.
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return parsed.String()
	}

	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
