// Package fetch implements the Fetcher interface.
// It performs HTTP GET requests with browser-like defaults, since several
// procurement portals reject obvious bot user agents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/sniff"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultMaxRedirects = 10
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Options configures an HTTPFetcher. Zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Logger       *slog.Logger
}

// HTTPFetcher fetches files and pages via HTTP.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New creates an HTTPFetcher with a bounded timeout and redirect count.
// Cookies set by a portal during redirects are kept for the fetcher's lifetime.
func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// cookiejar.New never returns a non-nil error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	maxRedirects := opts.MaxRedirects
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// Fetch retrieves url and reports what kind of content came back.
// An HTML body is not an error here: the caller decides whether a page
// where a file was expected warrants the dynamic path.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, header http.Header) (*core.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.NewError(core.NetworkError, core.ReasonRequestFailed, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,application/zip,application/octet-stream,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.5,en;q=0.3")
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		reason := core.ReasonRequestFailed
		if isTimeout(err) {
			reason = core.ReasonTimeout
		}
		return nil, core.NewError(core.NetworkError, reason, fmt.Errorf("fetching %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewError(core.NetworkError, core.ReasonBadStatus,
			fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		reason := core.ReasonRequestFailed
		if isTimeout(err) {
			reason = core.ReasonTimeout
		}
		return nil, core.NewError(core.NetworkError, reason, fmt.Errorf("reading response body: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	result := &core.FetchResult{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Kind:        detectKind(contentType, body),
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		Body:        body,
	}

	f.logger.Debug("fetched",
		"url", url,
		"final_url", result.URL,
		"status", result.StatusCode,
		"content_type", contentType,
		"kind", result.Kind,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)
	return result, nil
}

// detectKind trusts the signature first; the header only breaks ties for
// bodies the sniffer cannot place.
func detectKind(contentType string, body []byte) core.ContentKind {
	kind := sniff.Bytes(body)
	if kind != core.KindUnknown {
		return kind
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return core.KindHTML
	}
	return core.KindUnknown
}

// filenameFromDisposition extracts the filename parameter, if any.
func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
