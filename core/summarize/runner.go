package summarize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/render"
)

// Analyzer turns one PDF into analysis text.
type Analyzer interface {
	Analyze(ctx context.Context, pdf []byte, name string) (string, error)
	Model() string
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	InputDir  string // organized PDFs
	OutputDir string // analysis files
	Prefix    string // PDF naming prefix
	PDF       bool   // also render each analysis as PDF
	Logger    *slog.Logger
	Progress  io.Writer
}

// Result lists what a summarization run did.
type Result struct {
	Written []string          `json:"written"`
	Failed  map[string]string `json:"failed,omitempty"` // PDF path → error
}

// Runner analyzes PDFs one after the other.
type Runner struct {
	analyzer  Analyzer
	renderers []core.Renderer
	opts      RunnerOptions
	logger    *slog.Logger
	progress  io.Writer
	now       func() time.Time
}

// NewRunner creates a Runner. Markdown output is always written.
func NewRunner(analyzer Analyzer, opts RunnerOptions) *Runner {
	renderers := []core.Renderer{render.NewMarkdownRenderer()}
	if opts.PDF {
		renderers = append(renderers, render.NewPDFRenderer())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Runner{
		analyzer:  analyzer,
		renderers: renderers,
		opts:      opts,
		logger:    logger,
		progress:  progress,
		now:       time.Now,
	}
}

// Run analyzes only (a path, or a name inside InputDir) or, when only is
// empty, every numbered PDF in InputDir in numeric order. A failed analysis
// is recorded and the loop continues.
func (r *Runner) Run(ctx context.Context, only string) (*Result, error) {
	var pdfs []string
	if only != "" {
		path, err := r.locate(only)
		if err != nil {
			return nil, err
		}
		pdfs = []string{path}
	} else {
		var err error
		pdfs, err = ListPDFs(r.opts.InputDir, r.opts.Prefix)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating summary directory: %w", err)
	}

	result := &Result{Failed: map[string]string{}}
	for i, path := range pdfs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fmt.Fprintf(r.progress, "[%d/%d] Analyzing %s\n", i+1, len(pdfs), path)

		written, err := r.analyze(ctx, path)
		if err != nil {
			r.logger.Warn("analysis failed", "file", path, "error", err)
			fmt.Fprintf(r.progress, "  ✗ Error: %v\n", err)
			result.Failed[path] = err.Error()
			continue
		}
		for _, w := range written {
			fmt.Fprintf(r.progress, "  ✓ Written: %s\n", w)
		}
		result.Written = append(result.Written, written...)
	}
	return result, nil
}

func (r *Runner) analyze(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	start := r.now()
	text, err := r.analyzer.Analyze(ctx, data, name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("analyzed PDF", "file", path, "model", r.analyzer.Model(), "elapsed", r.now().Sub(start))

	meta := core.DocumentMeta{
		Source:      filepath.Base(path),
		Title:       "Análise do " + name,
		Model:       r.analyzer.Model(),
		GeneratedAt: r.now().UTC().Format(time.RFC3339),
	}
	var written []string
	for _, renderer := range r.renderers {
		out, err := renderer.Render(text, meta)
		if err != nil {
			return written, fmt.Errorf("rendering %s: %w", renderer.Extension(), err)
		}
		target := filepath.Join(r.opts.OutputDir, "analysis_"+name+renderer.Extension())
		if err := os.WriteFile(target, out, 0644); err != nil {
			return written, fmt.Errorf("writing analysis: %w", err)
		}
		written = append(written, target)
	}
	return written, nil
}

// locate resolves a PDF argument: as given first, then inside InputDir.
func (r *Runner) locate(only string) (string, error) {
	if _, err := os.Stat(only); err == nil {
		return only, nil
	}
	if !filepath.IsAbs(only) {
		candidate := filepath.Join(r.opts.InputDir, only)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("PDF file not found: %s", only)
}

// ListPDFs returns dir's <prefix><n>.pdf files ordered by n.
func ListPDFs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing PDFs: %w", err)
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)\.pdf$`)

	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
