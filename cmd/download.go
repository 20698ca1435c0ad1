package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/archive"
	"github.com/gaurav-prasanna/editalpipe/core/browser"
	"github.com/gaurav-prasanna/editalpipe/core/classify"
	"github.com/gaurav-prasanna/editalpipe/core/fetch"
	"github.com/gaurav-prasanna/editalpipe/core/manifest"
	"github.com/gaurav-prasanna/editalpipe/core/output"
	"github.com/gaurav-prasanna/editalpipe/core/pipeline"
	"github.com/gaurav-prasanna/editalpipe/core/resolve"
	"github.com/gaurav-prasanna/editalpipe/core/route"
	"github.com/spf13/cobra"
)

var (
	flagPDFDir      string
	flagReportsDir  string
	flagFailOnError bool
	flagHeaded      bool
	flagChromePath  string
	flagNoSnapshots bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <url|manifest.json>",
	Short: "Download procurement notices and organize their PDFs",
	Long: `Download processes a single link, or every record of a JSON manifest
({"licitacoes": [{"link": "..."}]}), in order. Each record is fetched
directly, resolved through an aggregator page or driven in a headless
browser; archives are extracted and every PDF is written to the output
directory without overwriting earlier files.

Examples:
  editalpipe download https://pncp.gov.br/app/editais/00394452000103/2024/81
  editalpipe download licitacoes.json --pdf-dir ./editais
  editalpipe download licitacoes.json --fail-on-error`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&flagPDFDir, "pdf-dir", "", "Output directory for PDFs (default pdfs)")
	downloadCmd.Flags().StringVar(&flagReportsDir, "reports-dir", "", "Directory for batch reports (default reports)")
	downloadCmd.Flags().BoolVar(&flagFailOnError, "fail-on-error", false, "Exit non-zero when any record fails")
	downloadCmd.Flags().BoolVar(&flagHeaded, "headed", false, "Show the browser window")
	downloadCmd.Flags().StringVar(&flagChromePath, "chrome-path", "", "Chrome executable (default: look up on PATH)")
	downloadCmd.Flags().BoolVar(&flagNoSnapshots, "no-snapshots", false, "Do not save page.md for pages without a download control")
}

func runDownload(cmd *cobra.Command, args []string) error {
	applyDownloadFlags(cmd)

	records, err := loadRecords(args[0])
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	p, err := newPipeline(slog.Default(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	report, runErr := p.Run(ctx, records)

	if path, err := pipeline.WriteReport(cfg.Dirs.Reports, report); err != nil {
		slog.Error("writing batch report", "error", err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", path)
	}
	pipeline.PrintSummary(cmd.OutOrStdout(), report)

	if runErr != nil {
		return fmt.Errorf("batch stopped: %w", runErr)
	}
	if cfg.Pipeline.FailOnError && report.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", report.Failed, report.Total)
	}
	return nil
}

func applyDownloadFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("pdf-dir") {
		cfg.Dirs.Output = flagPDFDir
	}
	if flags.Changed("reports-dir") {
		cfg.Dirs.Reports = flagReportsDir
	}
	if flags.Changed("fail-on-error") {
		cfg.Pipeline.FailOnError = flagFailOnError
	}
	if flags.Changed("headed") {
		cfg.Browser.Headless = !flagHeaded
	}
	if flags.Changed("chrome-path") {
		cfg.Browser.ExecPath = flagChromePath
	}
	if flags.Changed("no-snapshots") {
		cfg.Browser.Snapshots = !flagNoSnapshots
	}
}

// loadRecords treats an http(s) argument as a single link and anything
// else as a manifest path.
func loadRecords(arg string) ([]core.Record, error) {
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return manifest.FromURL(arg), nil
	}
	return manifest.Load(arg)
}

func newPipeline(logger *slog.Logger, progress io.Writer) (*pipeline.Pipeline, error) {
	fetcher := fetch.New(fetch.Options{
		Timeout:      cfg.HTTP.Timeout,
		MaxRedirects: cfg.HTTP.MaxRedirects,
		UserAgent:    cfg.HTTP.UserAgent,
		Logger:       logger,
	})
	classifier := classify.New()
	driver := browser.NewDriver(&browser.ChromeLauncher{
		Headless:  cfg.Browser.Headless,
		ExecPath:  cfg.Browser.ExecPath,
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    logger,
	}, browser.Options{
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		DownloadTimeout:   cfg.Browser.DownloadTimeout,
		LocateAttempts:    cfg.Browser.LocateAttempts,
		LocateBackoff:     cfg.Browser.LocateBackoff,
		Snapshots:         cfg.Browser.Snapshots,
		Logger:            logger,
	})
	router := route.New(classifier, fetcher, resolve.New(fetcher, classifier, logger), driver, logger)

	seq, err := output.SeedSequence(cfg.Dirs.Output, cfg.Output.Prefix)
	if err != nil {
		return nil, core.Environmental(fmt.Errorf("reading output directory: %w", err))
	}
	organizer := output.NewOrganizer(cfg.Dirs.Output, cfg.Output.Prefix, logger)

	return pipeline.New(router, archive.New(logger), organizer, seq, pipeline.Options{
		Layout:                  cfg.Layout(),
		MaxOrganizationFailures: cfg.Pipeline.MaxOrganizationFailures,
		Logger:                  logger,
		Progress:                progress,
	}), nil
}
