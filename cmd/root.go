// Package cmd implements the editalpipe CLI using Cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaurav-prasanna/editalpipe/config"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogFile  string
)

// Set by the root PersistentPreRunE before any subcommand runs.
var (
	cfg      *config.Config
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "editalpipe",
	Short: "Acquire procurement notices (editais) as PDFs",
	Long: `editalpipe downloads procurement notices from direct links, aggregator
pages and JavaScript portals, unpacks archives and writes every PDF as
edital_<n>.pdf into one output directory.

Usage:
  editalpipe download <url|manifest.json> [flags]
  editalpipe summarize [pdf] [flags]`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "JSON log file (default editalpipe.log)")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.Log.Level = flagLogLevel
	}
	if cmd.Flags().Changed("log-file") {
		loaded.Log.File = flagLogFile
	}
	cfg = loaded

	logger, cleanup := config.SetupLogger(cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
	slog.SetDefault(logger)
	closeLog = cleanup
	return nil
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. Signal
// handling is then released, so a second interrupt terminates the process
// while a record is still finishing.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	_ = closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
