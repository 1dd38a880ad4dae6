package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jonathan/apply-agent/internal/browser"
	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/catalog"
	"github.com/jonathan/apply-agent/internal/config"
	"github.com/jonathan/apply-agent/internal/db"
	"github.com/jonathan/apply-agent/internal/discovery"
	"github.com/jonathan/apply-agent/internal/llm"
	"github.com/jonathan/apply-agent/internal/mapping"
	"github.com/jonathan/apply-agent/internal/observability"
	"github.com/jonathan/apply-agent/internal/pagination"
	"github.com/jonathan/apply-agent/internal/resume"
	"github.com/jonathan/apply-agent/internal/runner"
)

// loadConfig layers the config file, the environment and then overrides, and validates the result.
func loadConfig(overrides func(*config.Config)) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	cfg, err := cfg.FromEnv()
	if err != nil {
		return cfg, err
	}
	if overrides != nil {
		overrides(&cfg)
	}
	if verbose {
		cfg.Verbose = true
	}

	cfg = cfg.MergeWithDefaults(config.Config{})
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// app holds the wired collaborators of one command invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  db.Store
	client llm.Client
	runner *runner.Runner
}

// Close releases the store and the inference client.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing job store", "error", err)
		}
	}
	if a.client != nil {
		_ = a.client.Close()
	}
}

// newApp wires the runner and everything it drives from cfg.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable or api_key config is required")
	}
	policy, err := mapping.ParsePolicy(cfg.MappingPolicy)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.client, err = llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	inference := llm.NewInference(a.client, llm.WithInferenceLogger(logger))

	a.store, err = db.Open(ctx, db.Options{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	resumes, err := newResumeFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	var sites *discovery.Config
	if cfg.SitesPath != "" {
		if sites, err = discovery.LoadFile(cfg.SitesPath); err != nil {
			return nil, fmt.Errorf("failed to load sites: %w", err)
		}
	}

	factory := browser.Launcher(inference,
		browser.WithCallTimeout(config.Duration(cfg.CallTimeout, browser.DefaultCallTimeout)),
		browser.WithExecPath(cfg.ChromePath),
		browser.WithLogger(logger),
	)

	deps := runner.Deps{
		Sessions:     browser.NewPool(cfg.MaxConcurrency, factory, logger),
		Mapper:       mapping.NewEngine(inference, mapping.WithPolicy(policy), mapping.WithLogger(logger)),
		Inference:    inference,
		Resumes:      resumes,
		Store:        a.store,
		Pagination:   pagination.New(pagination.WithLogger(logger)),
		Sites:        sites,
		MaxPages:     cfg.MaxPages,
		ConfigRoot:   cfg.ConfigRoot,
		Concurrency:  cfg.MaxConcurrency,
		SubmitSettle: config.Duration(cfg.SubmitSettle, catalog.DefaultSubmitSettle),
		Logger:       logger,
	}
	if cfg.Verbose && out != nil {
		deps.OnProgress = progressPrinter(out)
	}

	a.runner, err = runner.New(deps)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// newResumeFetcher picks blob storage, a local directory or no resume source.
func newResumeFetcher(cfg config.Config, logger *slog.Logger) (capability.ResumeFetcher, error) {
	switch {
	case cfg.AzureConnection != "":
		f, err := resume.NewBlob(cfg.AzureConnection, cfg.ResumeContainer, resume.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create blob resume fetcher: %w", err)
		}
		return f, nil
	case cfg.ResumeDir != "":
		return resume.NewDir(cfg.ResumeDir, resume.WithLogger(logger)), nil
	}
	return nil, nil
}

// progressPrinter serializes progress lines from concurrent runs.
func progressPrinter(out io.Writer) runner.ProgressCallback {
	var mu sync.Mutex
	printer := observability.NewPrinter(out)
	return func(event runner.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		printer.PrintProgress(event)
	}
}
