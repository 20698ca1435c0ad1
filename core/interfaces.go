// Package core defines the acquisition pipeline's data model and stage interfaces.
// Each stage of the pipeline is a clean, testable interface:
// classify → fetch | drive → extract → organize.
package core

import (
	"context"
	"net/http"
)

// Record is one procurement notice ("edital") to process.
// Metadata fields are carried into the BatchReport untouched.
type Record struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link"`
	Titulo   string `json:"titulo,omitempty"`
	Orgao    string `json:"orgao,omitempty"`
	Objeto   string `json:"objeto,omitempty"`
	Abertura string `json:"abertura,omitempty"`
}

// ContentKind is the detected nature of a retrieved file.
type ContentKind string

const (
	KindPDF     ContentKind = "pdf"
	KindArchive ContentKind = "archive"
	KindHTML    ContentKind = "html"
	KindUnknown ContentKind = "unknown"
)

// Strategy is the retrieval strategy chosen for a link.
type Strategy string

const (
	StrategyDirectFile      Strategy = "direct-file"
	StrategyDynamicPortal   Strategy = "dynamic-portal"
	StrategyNeedsResolution Strategy = "needs-resolution"
)

// Classification is the tagged result of classifying a link.
// Resolved is only set for StrategyNeedsResolution when the direct link
// could be derived from the URL shape alone.
type Classification struct {
	Strategy Strategy
	Resolved string
	Pattern  string // name of the matched pattern, for logs
}

// FetchResult holds the body and response metadata of a static fetch.
type FetchResult struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Kind        ContentKind
	Filename    string // from Content-Disposition, may be empty
	Body        []byte
}

// DownloadResult is the raw file retrieved for one record.
type DownloadResult struct {
	Path      string
	Kind      ContentKind
	Strategy  Strategy
	SourceURL string
	Attempts  int
}

// ExtractedFileSet is the ordered list of candidate files for one record.
type ExtractedFileSet []string

// Classifier decides how a link should be retrieved.
type Classifier interface {
	Classify(link string) (Classification, error)
}

// Fetcher performs a direct network retrieval.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*FetchResult, error)
}

// Resolution is where an intermediary page led. File is set when the page
// URL already served a file, so it need not be fetched again.
type Resolution struct {
	Link string
	File *FetchResult
}

// Resolver turns an intermediary page into a real download link.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (Resolution, error)
}

// PageDriver drives a browser session until a file download completes.
// Download returns the path of the captured file inside dir.
type PageDriver interface {
	Download(ctx context.Context, url string, dir string) (string, error)
}

// Extractor expands archives into candidate files.
type Extractor interface {
	Extract(ctx context.Context, path string, dir string) (ExtractedFileSet, error)
}

// DocumentMeta describes a rendered analysis document.
type DocumentMeta struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generated_at"` // ISO8601
}

// Renderer converts Markdown (and metadata) into a final output format.
type Renderer interface {
	Render(markdown string, meta DocumentMeta) ([]byte, error)
	// Extension returns the file extension for this renderer (e.g. ".md", ".pdf").
	Extension() string
}
