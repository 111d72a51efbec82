package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/batch"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/config"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

type flags struct {
	in            string
	url           string
	pageOrigin    string
	archiveOrigin string
	serverBase    string
	configPath    string
	scripts       bool
	dev           bool
	report        string
	out           string
	dir           string
	glob          string
	outDir        string
	workers       int
}

// Report is the diagnostics file written with -report
type Report struct {
	Page     string                     `json:"page"`
	Archive  rewrite.Archive            `json:"archive"`
	Title    string                     `json:"title"`
	Rewrites []rewrite.Entry            `json:"rewrites"`
	Console  []sandbox.LogEntry         `json:"console"`
	Metrics  monitoring.MetricsSnapshot `json:"metrics"`
}

func main() {
	var f flags
	flag.StringVar(&f.in, "in", "", "Captured page file (.html, .gz, .zst)")
	flag.StringVar(&f.url, "url", "", "Page URL to fetch")
	flag.StringVar(&f.pageOrigin, "page-origin", "", "URL the page believes it is served from")
	flag.StringVar(&f.archiveOrigin, "archive-origin", "", "Origin of the archived site")
	flag.StringVar(&f.serverBase, "server-base", "", "Replay server prefix for rewritten absolute URLs")
	flag.StringVar(&f.configPath, "config", "", "Config file (.yaml, .toml, .json)")
	flag.BoolVar(&f.scripts, "scripts", false, "Run the page's inline scripts")
	flag.BoolVar(&f.dev, "dev", false, "Development logging")
	flag.StringVar(&f.report, "report", "", "Write a JSON diagnostics report to this file")
	flag.StringVar(&f.out, "out", "", "Write the patched page here instead of stdout")
	flag.StringVar(&f.dir, "dir", "", "Patch every capture under this directory")
	flag.StringVar(&f.glob, "glob", "", "Doublestar pattern selecting captures under -dir")
	flag.StringVar(&f.outDir, "out-dir", "", "Write pages patched with -dir here")
	flag.IntVar(&f.workers, "workers", 0, "Pages patched in parallel with -dir (default sandbox pool size)")
	flag.Parse()

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.Build("patchpage", cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	for _, w := range cfg.Warnings() {
		logger.Warn("config", zap.String("warning", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, logger.Logger); err != nil {
		logger.Error("patch failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig reads env and the optional file, then applies flags
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if f.pageOrigin != "" {
		cfg.Replay.PageURL = f.pageOrigin
	}
	if f.archiveOrigin != "" {
		cfg.Replay.ArchiveOrigin = f.archiveOrigin
	}
	if f.serverBase != "" {
		cfg.Replay.ServerBase = f.serverBase
	}
	if f.scripts {
		cfg.Replay.RunScripts = true
	}
	if f.dev {
		cfg.Logging.Development = true
	}
	if f.report != "" {
		cfg.Diagnostics.Enabled = true
		cfg.Diagnostics.ReportPath = f.report
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *zap.Logger) error {
	if f.dir != "" {
		if f.in != "" || f.url != "" {
			return fmt.Errorf("-dir cannot be combined with -in or -url")
		}
		return runBatch(ctx, cfg, f, logger)
	}
	if (f.in == "") == (f.url == "") {
		return fmt.Errorf("exactly one of -in, -url and -dir is required")
	}

	metrics := monitoring.NewMetrics()
	provider, err := browser.New(providerConfig(cfg),
		browser.WithClient(client.NewClient(
			client.WithConfig(clientConfig(cfg)),
			client.WithLogger(logger),
		)),
		browser.WithLogger(logger),
		browser.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer provider.Close()

	var report rewrite.Report
	req := browser.LoadRequest{
		Path:        f.in,
		URL:         f.url,
		PageURL:     cfg.Replay.PageURL,
		RunScripts:  cfg.Replay.RunScripts,
		Diagnostics: cfg.Diagnostics.Enabled,
		Recorder:    &report,
	}

	page, err := provider.Load(ctx, req)
	if err != nil {
		return err
	}
	defer page.Close()

	html, err := page.HTML()
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if err := writeOutput(f.out, html); err != nil {
		return err
	}

	snapshot := metrics.Snapshot()
	logger.Info("page patched",
		zap.String("title", page.Title()),
		zap.Int64("url_rewrites", snapshot.URLRewrites),
		zap.Int64("attribute_writes", snapshot.AttributeWrites),
		zap.Int64("mutation_records", snapshot.MutationRecords),
		zap.Int64("intercepted_calls", snapshot.InterceptedCalls),
		zap.Int64("host_requests", snapshot.HostRequests),
		zap.Int64("script_errors", snapshot.ScriptErrors),
	)

	if cfg.Diagnostics.ReportPath == "" {
		return nil
	}
	return writeReport(cfg.Diagnostics.ReportPath, Report{
		Page:     page.Document().Location().Href,
		Archive:  page.Archive(),
		Title:    page.Title(),
		Rewrites: report.Entries(),
		Console:  page.Console(),
		Metrics:  snapshot,
	})
}

// runBatch patches a directory of captures. -page-origin is the URL the
// directory is served from.
func runBatch(ctx context.Context, cfg *config.Config, f flags, logger *zap.Logger) error {
	workers := f.workers
	if workers <= 0 {
		workers = cfg.Sandbox.PoolSize
	}

	pc := providerConfig(cfg)
	pc.PoolSize = workers
	provider, err := browser.New(pc,
		browser.WithClient(client.NewClient(
			client.WithConfig(clientConfig(cfg)),
			client.WithLogger(logger),
		)),
		browser.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer provider.Close()

	summary, err := batch.NewRunner(provider, workers, logger).Run(ctx, batch.Job{
		Root:       f.dir,
		Pattern:    f.glob,
		OutDir:     f.outDir,
		PageBase:   cfg.Replay.PageURL,
		RunScripts: cfg.Replay.RunScripts,
	})
	if err != nil {
		return err
	}

	if cfg.Diagnostics.ReportPath != "" {
		if err := writeJSON(cfg.Diagnostics.ReportPath, summary); err != nil {
			return err
		}
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d pages failed", summary.Failed, summary.Pages)
	}
	return nil
}

func providerConfig(cfg *config.Config) browser.Config {
	pc := browser.DefaultConfig()
	pc.PoolSize = 1
	pc.Sandbox.Timeout = cfg.Sandbox.Timeout.Std()
	pc.Sandbox.MaxTimers = cfg.Sandbox.MaxTimers
	pc.Sandbox.EnableConsole = cfg.Sandbox.Console
	pc.Sandbox.EnableFetch = cfg.Sandbox.Network
	if cfg.Replay.ArchiveOrigin != "" {
		pc.Archive = rewrite.Archive{
			Origin:     cfg.Replay.ArchiveOrigin,
			ServerBase: cfg.Replay.ServerBase,
		}
	}
	return pc
}

func clientConfig(cfg *config.Config) client.Config {
	return client.Config{
		Timeout:      cfg.Fetch.Timeout.Std(),
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryWaitMin: cfg.Fetch.RetryWaitMin.Std(),
		RetryWaitMax: cfg.Fetch.RetryWaitMax.Std(),
		RateLimit:    cfg.Fetch.RateLimit,
		UserAgent:    cfg.Fetch.UserAgent,
	}
}

func writeOutput(path, html string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer file.Close()
		w = file
	}
	_, err := io.WriteString(w, html)
	return err
}

func writeReport(path string, report Report) error {
	return writeJSON(path, report)
}

func writeJSON(path string, v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
