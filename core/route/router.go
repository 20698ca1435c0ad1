// Package route dispatches a record to the retrieval path its classification
// calls for. The dispatch table maps each Strategy to one handler; adding a
// portal shape means adding a classify.Pattern, not a branch here.
package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/classify"
	"github.com/gaurav-prasanna/editalpipe/core/output"
)

// Job is one retrieval: the link to follow and where its files go.
type Job struct {
	Link        string
	Name        string // staging name of the record
	DownloadDir string // raw file lands in DownloadDir/Name<ext>
	WorkDir     string // per-record scratch area (browser downloads, snapshots)
}

type handler func(ctx context.Context, job Job, c core.Classification) (*core.DownloadResult, error)

// Router classifies links and retrieves them.
type Router struct {
	classifier core.Classifier
	fetcher    core.Fetcher
	resolver   core.Resolver
	driver     core.PageDriver
	logger     *slog.Logger
	handlers   map[core.Strategy]handler
}

// New creates a Router.
func New(classifier core.Classifier, fetcher core.Fetcher, resolver core.Resolver, driver core.PageDriver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		classifier: classifier,
		fetcher:    fetcher,
		resolver:   resolver,
		driver:     driver,
		logger:     logger,
	}
	r.handlers = map[core.Strategy]handler{
		core.StrategyDirectFile:      r.direct,
		core.StrategyDynamicPortal:   r.dynamic,
		core.StrategyNeedsResolution: r.resolve,
	}
	return r
}

// Retrieve classifies job.Link and runs the matching handler. The returned
// result is never nil: on failure it still names the strategy and URL that
// were attempted, so the caller can decide on a retry.
func (r *Router) Retrieve(ctx context.Context, job Job) (*core.DownloadResult, error) {
	c, err := r.classifier.Classify(job.Link)
	if err != nil {
		return &core.DownloadResult{SourceURL: job.Link}, err
	}
	r.logger.Info("classified link", "link", job.Link, "strategy", c.Strategy, "pattern", c.Pattern)
	return r.dispatch(ctx, job, c)
}

// RetrieveDynamic sends job.Link straight to the page driver.
func (r *Router) RetrieveDynamic(ctx context.Context, job Job) (*core.DownloadResult, error) {
	return r.dynamic(ctx, job, core.Classification{Strategy: core.StrategyDynamicPortal})
}

func (r *Router) dispatch(ctx context.Context, job Job, c core.Classification) (*core.DownloadResult, error) {
	h, ok := r.handlers[c.Strategy]
	if !ok {
		return &core.DownloadResult{SourceURL: job.Link, Strategy: c.Strategy},
			core.NewError(core.ClassificationError, core.ReasonMalformedURL, fmt.Errorf("no handler for strategy %q", c.Strategy))
	}
	return h(ctx, job, c)
}

func (r *Router) direct(ctx context.Context, job Job, _ core.Classification) (*core.DownloadResult, error) {
	res := &core.DownloadResult{SourceURL: job.Link, Strategy: core.StrategyDirectFile, Attempts: 1}

	fr, err := r.fetcher.Fetch(ctx, job.Link, nil)
	if err != nil {
		return res, err
	}
	return r.save(job, fr, res)
}

// save writes a fetched file as the record's raw download.
func (r *Router) save(job Job, fr *core.FetchResult, res *core.DownloadResult) (*core.DownloadResult, error) {
	res.Kind = fr.Kind
	if fr.Kind == core.KindHTML {
		return res, core.NewError(core.NetworkError, core.ReasonHTMLResponse,
			fmt.Errorf("%s returned a page, not a file", fr.URL))
	}

	name := fr.Filename
	if name == "" && classify.IsFileLink(fr.URL) {
		if u, err := url.Parse(fr.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	dst := filepath.Join(job.DownloadDir, job.Name+extension(name, fr.Kind))
	if err := os.WriteFile(dst, fr.Body, 0644); err != nil {
		return res, core.Environmental(fmt.Errorf("saving download: %w", err))
	}
	res.Path = dst
	r.logger.Info("downloaded file", "url", fr.URL, "file", dst, "kind", fr.Kind, "bytes", len(fr.Body))
	return res, nil
}

func (r *Router) dynamic(ctx context.Context, job Job, _ core.Classification) (*core.DownloadResult, error) {
	res := &core.DownloadResult{SourceURL: job.Link, Strategy: core.StrategyDynamicPortal, Attempts: 1}

	got, err := r.driver.Download(ctx, job.Link, job.WorkDir)
	if err != nil {
		return res, err
	}

	dst := filepath.Join(job.DownloadDir, job.Name+extension(filepath.Base(got), core.KindUnknown))
	if err := moveFile(got, dst); err != nil {
		return res, core.Environmental(fmt.Errorf("saving download: %w", err))
	}
	res.Path = dst
	r.logger.Info("downloaded file", "url", job.Link, "file", dst, "via", "browser")
	return res, nil
}

// resolve turns an intermediary link into a real one and classifies that
// once. A page without a usable link goes to the browser as is.
func (r *Router) resolve(ctx context.Context, job Job, c core.Classification) (*core.DownloadResult, error) {
	link := c.Resolved
	if link == "" {
		resolution, err := r.resolver.Resolve(ctx, job.Link)
		if err != nil {
			r.logger.Info("intermediary page not resolved, using browser", "link", job.Link, "error", err)
			return r.RetrieveDynamic(ctx, job)
		}
		if resolution.File != nil {
			r.logger.Info("intermediary link served a file", "link", job.Link)
			return r.save(job, resolution.File,
				&core.DownloadResult{SourceURL: resolution.Link, Strategy: core.StrategyDirectFile, Attempts: 1})
		}
		link = resolution.Link
	}

	next, err := r.classifier.Classify(link)
	if err != nil {
		return &core.DownloadResult{SourceURL: link, Strategy: core.StrategyNeedsResolution}, err
	}
	r.logger.Info("resolved link", "from", job.Link, "to", link, "strategy", next.Strategy)

	job.Link = link
	if next.Strategy == core.StrategyNeedsResolution {
		// Still an intermediary: no second resolution round.
		return r.RetrieveDynamic(ctx, job)
	}
	return r.dispatch(ctx, job, next)
}

// extension picks the raw file's extension from the server-provided name,
// falling back to the sniffed kind.
func extension(filename string, kind core.ContentKind) string {
	if ext := strings.ToLower(filepath.Ext(output.Sanitize(filename))); ext != "" && len(ext) <= 6 {
		return ext
	}
	if kind == core.KindPDF {
		return ".pdf"
	}
	return ".bin"
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
