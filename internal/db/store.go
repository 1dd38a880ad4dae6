package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/apply-agent/internal/types"
)

// Store persists job records keyed by their opaque id.
//
// GetRecord returns nil, nil when no record exists. PutRecords upserts a batch atomically,
// merging each record into any stored one with Merge.
type Store interface {
	GetRecord(ctx context.Context, id string) (*types.JobRecord, error)
	PutRecords(ctx context.Context, records []types.JobRecord) error
	ListRecords(ctx context.Context, filter ListFilter) ([]types.JobRecord, error)
	Close() error
}

// ListFilter narrows ListRecords. Zero values match everything; Limit <= 0 means no limit.
type ListFilter struct {
	Domain string
	Status types.JobStatus
	Limit  int
}

// Options selects a backend for Open
type Options struct {
	DatabaseURL string
	SQLitePath  string
}

// Open returns the Postgres store when a database URL is set, else SQLite when a path is set,
// else an in-memory store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch {
	case opts.DatabaseURL != "":
		return Connect(ctx, opts.DatabaseURL)
	case opts.SQLitePath != "":
		return OpenSQLite(ctx, opts.SQLitePath)
	}
	return NewMemory(), nil
}

// Merge combines an incoming record with the stored one.
// Status never regresses to discovered, empty incoming fields keep stored values,
// and the first scrape time is kept.
func Merge(existing *types.JobRecord, incoming types.JobRecord, now time.Time) types.JobRecord {
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = now
	}
	if incoming.ScrapedAt.IsZero() {
		incoming.ScrapedAt = incoming.UpdatedAt
	}
	if existing == nil {
		return incoming
	}

	out := *existing
	out.Status = types.MergeStatus(existing.Status, incoming.Status)
	if out.Status == incoming.Status {
		out.Error = incoming.Error
	}
	out.Title = firstNonEmpty(incoming.Title, existing.Title)
	out.Company = firstNonEmpty(incoming.Company, existing.Company)
	out.Location = firstNonEmpty(incoming.Location, existing.Location)
	out.Domain = firstNonEmpty(incoming.Domain, existing.Domain)
	out.SourceURL = firstNonEmpty(incoming.SourceURL, existing.SourceURL)
	out.URL = firstNonEmpty(existing.URL, incoming.URL)
	if len(incoming.Filters) > 0 {
		out.Filters = incoming.Filters
	}
	if existing.ScrapedAt.IsZero() || incoming.ScrapedAt.Before(existing.ScrapedAt) {
		out.ScrapedAt = incoming.ScrapedAt
	}
	out.UpdatedAt = incoming.UpdatedAt
	return out
}

func validateRecord(r types.JobRecord) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("job record for %q has no id", r.URL)
	case r.URL == "":
		return fmt.Errorf("job record %s has no url", r.ID)
	case !r.Status.Valid():
		return fmt.Errorf("job record %s has invalid status %q", r.ID, r.Status)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
