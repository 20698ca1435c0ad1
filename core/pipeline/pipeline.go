// Package pipeline is the batch orchestrator:
// classify → fetch | drive → extract → organize, one record at a time.
// A record's failure stops that record only; environmental failures and
// interrupts stop the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/output"
	"github.com/gaurav-prasanna/editalpipe/core/route"
	"github.com/google/uuid"
)

// Retriever produces the raw file of a record.
type Retriever interface {
	Retrieve(ctx context.Context, job route.Job) (*core.DownloadResult, error)
	RetrieveDynamic(ctx context.Context, job route.Job) (*core.DownloadResult, error)
}

// Organizer places PDFs in the output directory.
type Organizer interface {
	Organize(set core.ExtractedFileSet, seq *output.Sequence) ([]string, error)
}

// Options configures a Pipeline.
type Options struct {
	Layout output.Layout
	// MaxOrganizationFailures write failures abort the batch as environmental.
	MaxOrganizationFailures int
	Logger                  *slog.Logger
	Progress                io.Writer // human progress lines; nil discards
}

// Pipeline processes batches of records.
type Pipeline struct {
	retriever Retriever
	extractor core.Extractor
	organizer Organizer
	seq       *output.Sequence
	opts      Options
	logger    *slog.Logger
	progress  io.Writer
}

// New creates a Pipeline. seq is shared by every run of this Pipeline.
func New(retriever Retriever, extractor core.Extractor, organizer Organizer, seq *output.Sequence, opts Options) *Pipeline {
	if opts.MaxOrganizationFailures <= 0 {
		opts.MaxOrganizationFailures = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Pipeline{
		retriever: retriever,
		extractor: extractor,
		organizer: organizer,
		seq:       seq,
		opts:      opts,
		logger:    logger,
		progress:  progress,
	}
}

// Run processes records in order and always returns a report covering every
// record. The error is non-nil only when the batch itself stopped: an
// environmental failure, or ctx being cancelled between records.
func (p *Pipeline) Run(ctx context.Context, records []core.Record) (*BatchReport, error) {
	report := &BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(records),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	if err := p.opts.Layout.Ensure(); err != nil {
		p.abort(report, records, 0, core.ReasonAborted, err)
		return report, err
	}

	p.logger.Info("starting batch", "run_id", report.RunID, "records", len(records), "next_sequence", p.seq.Peek())

	orgFailures := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("batch interrupted", "processed", i, "remaining", len(records)-i)
			report.Interrupted = true
			p.abort(report, records, i, core.ReasonInterrupted, err)
			return report, err
		}

		fmt.Fprintf(p.progress, "[%d/%d] Processing %s\n", i+1, len(records), rec.Link)
		outcome, err := p.process(ctx, i+1, rec)

		if err != nil && core.KindOf(err) == core.OrganizationError && core.ReasonOf(err) == core.ReasonWriteFailed {
			orgFailures++
			if orgFailures >= p.opts.MaxOrganizationFailures {
				err = core.Environmental(fmt.Errorf("%d organization failures: %w", orgFailures, err))
			}
		}
		report.add(outcome)

		if err != nil {
			fmt.Fprintf(p.progress, "  ✗ Error: %s\n", outcome.Error)
			if errors.Is(err, core.ErrEnvironment) {
				p.logger.Error("environmental failure, aborting batch", "record", i+1, "error", err)
				p.abort(report, records, i+1, core.ReasonAborted, err)
				return report, err
			}
			continue
		}
		for _, path := range outcome.Outputs {
			fmt.Fprintf(p.progress, "  ✓ Written: %s\n", path)
		}
	}

	p.logger.Info("batch finished", "run_id", report.RunID, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// process runs one record through every stage. Cancellation is honored
// between records only, so the record's own work is detached from ctx
// and bounded by the per-stage timeouts instead.
func (p *Pipeline) process(ctx context.Context, position int, rec core.Record) (RecordOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	name := output.RecordName(rec, position)
	outcome := RecordOutcome{Index: position, Name: name, Record: rec}
	log := p.logger.With("record", position, "id", rec.ID, "link", rec.Link)

	workDir := filepath.Join(p.opts.Layout.ExtractedDir, name)
	if err := os.RemoveAll(workDir); err != nil {
		err = core.Environmental(fmt.Errorf("clearing %s: %w", workDir, err))
		return outcome.fail(err), err
	}

	job := route.Job{
		Link:        rec.Link,
		Name:        name,
		DownloadDir: p.opts.Layout.DownloadDir,
		WorkDir:     workDir,
	}
	res, err := p.retriever.Retrieve(ctx, job)
	if err != nil && shouldRetryDynamic(res, err) {
		log.Info("direct fetch failed, retrying through browser", "error", err)
		attempts := res.Attempts
		job.Link = res.SourceURL
		res, err = p.retriever.RetrieveDynamic(ctx, job)
		if res != nil {
			res.Attempts += attempts
		}
	}
	if res != nil {
		outcome.Strategy = res.Strategy
		outcome.SourceURL = res.SourceURL
		outcome.Attempts = res.Attempts
	}
	if err != nil {
		log.Warn("retrieval failed", "error", err)
		return outcome.fail(err), err
	}

	set, err := p.extractor.Extract(ctx, res.Path, workDir)
	if err != nil {
		log.Warn("extraction failed", "file", res.Path, "error", err)
		return outcome.fail(err), err
	}

	written, err := p.organizer.Organize(set, p.seq)
	outcome.Outputs = written
	if err != nil {
		log.Warn("organization failed", "error", err)
		return outcome.fail(err), err
	}

	outcome.Status = StatusSucceeded
	log.Info("record succeeded", "strategy", outcome.Strategy, "outputs", len(written))
	return outcome, nil
}

// shouldRetryDynamic allows exactly one browser retry, for direct links
// that failed on the network or turned out to be a page.
func shouldRetryDynamic(res *core.DownloadResult, err error) bool {
	return res != nil &&
		res.Strategy == core.StrategyDirectFile &&
		res.SourceURL != "" &&
		core.KindOf(err) == core.NetworkError &&
		!errors.Is(err, core.ErrEnvironment)
}

// abort marks records[from:] as failed so the report still covers the batch.
func (p *Pipeline) abort(report *BatchReport, records []core.Record, from int, reason string, cause error) {
	for i := from; i < len(records); i++ {
		report.add(RecordOutcome{
			Index:  i + 1,
			Name:   output.RecordName(records[i], i+1),
			Record: records[i],
			Status: StatusFailed,
			Reason: reason,
			Error:  fmt.Sprintf("%s: %v", reason, cause),
		})
	}
}
