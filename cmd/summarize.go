package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gaurav-prasanna/editalpipe/core/summarize"
	"github.com/spf13/cobra"
)

var (
	flagAPIKey      string
	flagProject     string
	flagModel       string
	flagRegion      string
	flagPDFInputDir string
	flagSummaryDir  string
	flagSummaryPDF  bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [pdf]",
	Short: "Analyze organized edital PDFs with Amazon Bedrock",
	Long: `Summarize sends each edital PDF to a Bedrock model and writes a Markdown
analysis (city, issuing body, object, technical specifications, estimated
values, dates and participation requirements) per file.

Without an argument every edital_<n>.pdf in the input directory is analyzed
in numeric order. A single file may be named as a path or relative to the
input directory.

Examples:
  editalpipe summarize
  editalpipe summarize edital_3.pdf --pdf
  editalpipe summarize --model amazon.nova-pro-v1:0 --region us-west-2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Bedrock API key (default: AWS credential chain)")
	summarizeCmd.Flags().StringVar(&flagProject, "project", "", "AWS shared config profile")
	summarizeCmd.Flags().StringVar(&flagModel, "model", "", "Bedrock model id (default "+summarize.DefaultModel+")")
	summarizeCmd.Flags().StringVar(&flagRegion, "region", "", "AWS region (default "+summarize.DefaultRegion+")")
	summarizeCmd.Flags().StringVar(&flagPDFInputDir, "pdf-input-dir", "", "Directory with edital PDFs (default: the download output directory)")
	summarizeCmd.Flags().StringVar(&flagSummaryDir, "summary-dir", "", "Directory for analyses (default summaries)")
	summarizeCmd.Flags().BoolVar(&flagSummaryPDF, "pdf", false, "Also render each analysis as PDF")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	applySummarizeFlags(cmd)

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	logger := slog.Default()
	analyzer, err := summarize.NewBedrockAnalyzer(ctx, summarize.BedrockOptions{
		Model:   cfg.Summarize.Model,
		Region:  cfg.Summarize.Region,
		Profile: cfg.Summarize.Profile,
		APIKey:  cfg.Summarize.APIKey,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	runner := summarize.NewRunner(analyzer, summarize.RunnerOptions{
		InputDir:  cfg.SummaryInputDir(),
		OutputDir: cfg.Summarize.OutputDir,
		Prefix:    cfg.Output.Prefix,
		PDF:       cfg.Summarize.PDF,
		Logger:    logger,
		Progress:  cmd.OutOrStdout(),
	})

	var only string
	if len(args) == 1 {
		only = args[0]
	}
	result, err := runner.Run(ctx, only)
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d files written, %d PDFs failed\n", len(result.Written), len(result.Failed))
	}
	return err
}

func applySummarizeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.Summarize.APIKey = flagAPIKey
	}
	if flags.Changed("project") {
		cfg.Summarize.Profile = flagProject
	}
	if flags.Changed("model") {
		cfg.Summarize.Model = flagModel
	}
	if flags.Changed("region") {
		cfg.Summarize.Region = flagRegion
	}
	if flags.Changed("pdf-input-dir") {
		cfg.Summarize.InputDir = flagPDFInputDir
	}
	if flags.Changed("summary-dir") {
		cfg.Summarize.OutputDir = flagSummaryDir
	}
	if flags.Changed("pdf") {
		cfg.Summarize.PDF = flagSummaryPDF
	}
}
