package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonathan/apply-agent/internal/catalog"
	"github.com/jonathan/apply-agent/internal/discovery"
	"github.com/jonathan/apply-agent/internal/types"
)

// DiscoverRequest is one discovery run
type DiscoverRequest struct {
	Domain     string
	Filters    map[string]string
	ConfigPath string
	MaxPages   int
}

// Discover runs the discovery graph for a domain and persists the scraped jobs in one batch.
func (r *Runner) Discover(ctx context.Context, req DiscoverRequest) (types.DiscoveryResult, error) {
	runID := newRunID()
	logger := r.logger.With("run_id", runID, "domain", req.Domain)
	if strings.TrimSpace(req.Domain) == "" {
		return types.DiscoveryResult{}, fmt.Errorf("%w: domain is required", ErrInvalidRequest)
	}
	if req.MaxPages < 0 {
		return types.DiscoveryResult{}, fmt.Errorf("%w: maxPages must not be negative", ErrInvalidRequest)
	}

	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = r.MaxPages
	}

	sites, err := r.sitesFor(req.ConfigPath)
	if err != nil {
		return types.DiscoveryResult{}, err
	}

	page, release, err := r.Sessions.Acquire(ctx)
	if err != nil {
		return types.DiscoveryResult{}, err
	}
	defer release()

	graph, err := catalog.NewDiscoveryGraph(catalog.DiscoveryDeps{
		Page:       page,
		Inference:  r.Inference,
		Sites:      sites,
		Pagination: r.Pagination,
		Now:        r.Now,
		Logger:     logger,
	}, r.graphOptions(ProgressEvent{RunID: runID, Domain: req.Domain}, logger)...)
	if err != nil {
		return types.DiscoveryResult{}, fmt.Errorf("building discovery graph: %w", err)
	}

	final, runErr := graph.Run(ctx, catalog.NewDiscoveryState(req.Domain, req.Filters, maxPages))
	result := final.Result()
	logger.Info("discovery finished", "processed", len(result.ProcessedURLs), "jobs", result.Count,
		"errors", len(result.Errors))
	if runErr != nil {
		return result, fmt.Errorf("discovery run %s: %w", runID, runErr)
	}

	if len(result.ScrapedJobs) > 0 {
		if err := r.Store.PutRecords(ctx, result.ScrapedJobs); err != nil {
			return result, fmt.Errorf("persisting discovered jobs: %w", err)
		}
	}
	return result, nil
}

// sitesFor loads the request's site configuration, falling back to the configured one.
func (r *Runner) sitesFor(path string) (*discovery.Config, error) {
	if path == "" {
		return r.Sites, nil
	}
	if r.ConfigRoot != "" {
		if filepath.IsAbs(path) {
			return nil, fmt.Errorf("%w: config path must be relative", ErrInvalidRequest)
		}
		rel := filepath.Clean(path)
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: config path escapes the config directory", ErrInvalidRequest)
		}
		path = filepath.Join(r.ConfigRoot, rel)
	}
	cfg, err := discovery.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return cfg, nil
}
