package runner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/apply-agent/internal/catalog"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
)

// ApplyRequest is one application run
type ApplyRequest struct {
	JobURL         string
	Candidate      types.Candidate
	JobDescription string
	DryRun         bool
}

// BatchItem is the result for one URL of a batch
type BatchItem struct {
	JobURL  string                      `json:"jobUrl"`
	Success bool                        `json:"success"`
	Outcome *catalog.ApplicationOutcome `json:"outcome,omitempty"`
	Error   string                      `json:"error,omitempty"`
}

// BatchResult is the per-URL results of a batch, in request order, plus a summary
type BatchResult struct {
	Results []BatchItem        `json:"results"`
	Summary types.BatchSummary `json:"summary"`
}

// Apply runs the application graph for one job posting.
//
// Jobs already recorded as applied are skipped. The outcome is persisted as the job's record unless
// the run is a dry run. A non-nil error means the run could not start or the engine halted it;
// the outcome is still populated in the latter case.
func (r *Runner) Apply(ctx context.Context, req ApplyRequest) (catalog.ApplicationOutcome, error) {
	runID := newRunID()
	logger := r.logger.With("run_id", runID, "job_url", req.JobURL)
	if req.JobURL == "" {
		return catalog.ApplicationOutcome{}, fmt.Errorf("%w: job url is required", ErrInvalidRequest)
	}
	id := types.JobID(req.JobURL)

	if !req.DryRun {
		existing, err := r.Store.GetRecord(ctx, id)
		if err != nil {
			logger.Warn("job record lookup failed", "error", err)
		} else if existing != nil && existing.Status == types.StatusApplied {
			logger.Info("already applied, skipping")
			return catalog.SkippedOutcome(req.JobURL), nil
		}
		r.persist(ctx, logger, r.jobRecord(req.JobURL, types.StatusProcessing, ""))
	}

	page, release, err := r.Sessions.Acquire(ctx)
	if err != nil {
		if !req.DryRun {
			r.persist(ctx, logger, r.jobRecord(req.JobURL, types.StatusFailed, err.Error()))
		}
		return catalog.ApplicationOutcome{}, err
	}
	defer release()

	opts := append(r.graphOptions(ProgressEvent{RunID: runID, JobURL: req.JobURL}, logger),
		workflow.WithMaxSteps(r.MaxSteps))
	graph, err := catalog.NewApplicationGraph(catalog.ApplicationDeps{
		Page:         page,
		Mapper:       r.Mapper,
		Resumes:      r.Resumes,
		SubmitSettle: r.SubmitSettle,
		Logger:       logger,
	}, opts...)
	if err != nil {
		return catalog.ApplicationOutcome{}, fmt.Errorf("building application graph: %w", err)
	}

	candidate := req.Candidate
	final, runErr := graph.Run(ctx, catalog.NewApplicationState(req.JobURL, &candidate, req.JobDescription, req.DryRun))
	outcome := final.Outcome()
	logger.Info("application finished", "status", outcome.Status, "filled", len(outcome.Filled),
		"unfilled", len(outcome.Unfilled), "submitted", outcome.Submitted)

	if !req.DryRun {
		msg := ""
		if !outcome.Success() {
			msg = outcome.Message()
		}
		r.persist(ctx, logger, r.jobRecord(req.JobURL, outcome.JobStatus(), msg))
	}
	if runErr != nil {
		return outcome, fmt.Errorf("application run %s: %w", runID, runErr)
	}
	return outcome, nil
}

// ApplyBatch applies to every URL with at most Concurrency runs in flight. A failing URL never
// stops the others; repeated URLs are reported once and flagged as duplicates afterwards.
func (r *Runner) ApplyBatch(ctx context.Context, urls []string, candidate types.Candidate, dryRun bool) BatchResult {
	items := make([]BatchItem, len(urls))
	seen := make(map[string]int, len(urls))

	g := new(errgroup.Group)
	g.SetLimit(r.Concurrency)
	for i, u := range urls {
		items[i].JobURL = u
		id := types.JobID(u)
		if first, dup := seen[id]; dup {
			items[i].Error = fmt.Sprintf("duplicate of %s", urls[first])
			continue
		}
		seen[id] = i

		g.Go(func() error {
			outcome, err := r.Apply(ctx, ApplyRequest{JobURL: u, Candidate: candidate, DryRun: dryRun})
			item := BatchItem{JobURL: u}
			if outcome.Status != "" {
				item.Outcome = &outcome
				item.Success = outcome.Success()
				if !item.Success {
					item.Error = outcome.Message()
				}
			}
			if err != nil {
				item.Success = false
				item.Error = err.Error()
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	successful := 0
	for _, it := range items {
		if it.Success {
			successful++
		}
	}
	return BatchResult{Results: items, Summary: types.NewBatchSummary(len(items), successful)}
}

func (r *Runner) jobRecord(jobURL string, status types.JobStatus, msg string) types.JobRecord {
	now := r.Now()
	return types.JobRecord{
		ID:        types.JobID(jobURL),
		URL:       jobURL,
		Status:    status,
		Domain:    types.DomainOf(jobURL),
		Error:     msg,
		ScrapedAt: now,
		UpdatedAt: now,
	}
}

// persist writes records, logging rather than failing the run when the store is unavailable.
func (r *Runner) persist(ctx context.Context, logger *slog.Logger, records ...types.JobRecord) {
	if err := r.Store.PutRecords(ctx, records); err != nil {
		logger.Warn("persisting job records failed", "count", len(records), "error", err)
	}
}
