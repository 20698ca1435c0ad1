// Package config loads editalpipe settings.
// Precedence: defaults, then an optional YAML file, then EDITALPIPE_*
// environment variables. Command-line flags are applied on top by cmd.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core/output"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	Dirs      DirsConfig      `yaml:"dirs"`
	Output    OutputConfig    `yaml:"output"`
	HTTP      HTTPConfig      `yaml:"http"`
	Browser   BrowserConfig   `yaml:"browser"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Log       LogConfig       `yaml:"log"`
}

type DirsConfig struct {
	Downloads string `yaml:"downloads"`
	Extracted string `yaml:"extracted"`
	Output    string `yaml:"output"`
	Reports   string `yaml:"reports"`
}

type OutputConfig struct {
	Prefix string `yaml:"prefix"`
}

type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxRedirects int           `yaml:"max_redirects"`
}

type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	ExecPath          string        `yaml:"exec_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
	LocateAttempts    int           `yaml:"locate_attempts"`
	LocateBackoff     time.Duration `yaml:"locate_backoff"`
	Snapshots         bool          `yaml:"snapshots"`
}

type PipelineConfig struct {
	MaxOrganizationFailures int  `yaml:"max_organization_failures"`
	FailOnError             bool `yaml:"fail_on_error"`
}

type SummarizeConfig struct {
	Model     string `yaml:"model"`
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"`
	APIKey    string `yaml:"api_key"`
	InputDir  string `yaml:"input_dir"` // empty: dirs.output
	OutputDir string `yaml:"output_dir"`
	PDF       bool   `yaml:"pdf"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dirs: DirsConfig{
			Downloads: "downloads",
			Extracted: "extracted",
			Output:    "pdfs",
			Reports:   "reports",
		},
		Output: OutputConfig{Prefix: output.DefaultPrefix},
		HTTP: HTTPConfig{
			Timeout:      60 * time.Second,
			MaxRedirects: 10,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 60 * time.Second,
			DownloadTimeout:   30 * time.Second,
			LocateAttempts:    3,
			LocateBackoff:     500 * time.Millisecond,
			Snapshots:         true,
		},
		Pipeline: PipelineConfig{MaxOrganizationFailures: 2},
		Summarize: SummarizeConfig{
			Model:     "amazon.nova-lite-v1:0",
			Region:    "us-east-1",
			OutputDir: "summaries",
		},
		Log: LogConfig{File: "editalpipe.log", Level: "info"},
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"EDITALPIPE_DOWNLOAD_DIR":  &c.Dirs.Downloads,
		"EDITALPIPE_EXTRACTED_DIR": &c.Dirs.Extracted,
		"EDITALPIPE_OUTPUT_DIR":    &c.Dirs.Output,
		"EDITALPIPE_REPORTS_DIR":   &c.Dirs.Reports,
		"EDITALPIPE_USER_AGENT":    &c.HTTP.UserAgent,
		"EDITALPIPE_CHROME_PATH":   &c.Browser.ExecPath,
		"EDITALPIPE_MODEL":         &c.Summarize.Model,
		"EDITALPIPE_REGION":        &c.Summarize.Region,
		"EDITALPIPE_PROFILE":       &c.Summarize.Profile,
		"EDITALPIPE_API_KEY":       &c.Summarize.APIKey,
		"EDITALPIPE_PDF_INPUT_DIR": &c.Summarize.InputDir,
		"EDITALPIPE_SUMMARY_DIR":   &c.Summarize.OutputDir,
		"EDITALPIPE_LOG_FILE":      &c.Log.File,
		"EDITALPIPE_LOG_LEVEL":     &c.Log.Level,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	if v := os.Getenv("EDITALPIPE_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EDITALPIPE_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv("EDITALPIPE_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EDITALPIPE_HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	return nil
}

// fillDefaults restores defaults a YAML file zeroed out.
func (c *Config) fillDefaults() {
	d := Default()
	setString(&c.Dirs.Downloads, d.Dirs.Downloads)
	setString(&c.Dirs.Extracted, d.Dirs.Extracted)
	setString(&c.Dirs.Output, d.Dirs.Output)
	setString(&c.Dirs.Reports, d.Dirs.Reports)
	setString(&c.Output.Prefix, d.Output.Prefix)
	setString(&c.Summarize.Model, d.Summarize.Model)
	setString(&c.Summarize.Region, d.Summarize.Region)
	setString(&c.Summarize.OutputDir, d.Summarize.OutputDir)
	setString(&c.Log.Level, d.Log.Level)
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = d.HTTP.Timeout
	}
	if c.HTTP.MaxRedirects <= 0 {
		c.HTTP.MaxRedirects = d.HTTP.MaxRedirects
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = d.Browser.NavigationTimeout
	}
	if c.Browser.DownloadTimeout <= 0 {
		c.Browser.DownloadTimeout = d.Browser.DownloadTimeout
	}
	if c.Browser.LocateAttempts <= 0 {
		c.Browser.LocateAttempts = d.Browser.LocateAttempts
	}
	if c.Browser.LocateBackoff <= 0 {
		c.Browser.LocateBackoff = d.Browser.LocateBackoff
	}
	if c.Pipeline.MaxOrganizationFailures <= 0 {
		c.Pipeline.MaxOrganizationFailures = d.Pipeline.MaxOrganizationFailures
	}
}

func setString(target *string, def string) {
	if *target == "" {
		*target = def
	}
}

// Layout returns the staging directories.
func (c *Config) Layout() output.Layout {
	return output.Layout{
		DownloadDir:  c.Dirs.Downloads,
		ExtractedDir: c.Dirs.Extracted,
		OutputDir:    c.Dirs.Output,
	}
}

// SummaryInputDir is where summarize looks for PDFs.
func (c *Config) SummaryInputDir() string {
	if c.Summarize.InputDir != "" {
		return c.Summarize.InputDir
	}
	return c.Dirs.Output
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
