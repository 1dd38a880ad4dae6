// Package db persists job records in PostgreSQL, SQLite or memory.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/apply-agent/internal/types"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_records (
		id         TEXT PRIMARY KEY,
		url        TEXT NOT NULL,
		status     TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		company    TEXT NOT NULL DEFAULT '',
		location   TEXT NOT NULL DEFAULT '',
		domain     TEXT NOT NULL DEFAULT '',
		filters    JSONB,
		source_url TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		scraped_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS job_records_domain_idx ON job_records (domain, status)`,
}

const recordColumns = `id, url, status, title, company, location, domain, filters, source_url, error, scraped_at, updated_at`

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect establishes a connection pool to the database and creates the schema.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &DB{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// GetRecord retrieves a job record by id
func (db *DB) GetRecord(ctx context.Context, id string) (*types.JobRecord, error) {
	rec, err := scanPostgres(db.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return rec, nil
}

// PutRecords upserts a batch of job records in one transaction
func (db *DB) PutRecords(ctx context.Context, records []types.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := db.now()
	for _, in := range records {
		existing, err := scanPostgres(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM job_records WHERE id = $1 FOR UPDATE`, in.ID))
		if err != nil {
			return fmt.Errorf("failed to read job record %s: %w", in.ID, err)
		}
		r := Merge(existing, in, now)

		filters, err := marshalFilters(r.Filters)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO job_records (`+recordColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
			   url = $2, status = $3, title = $4, company = $5, location = $6, domain = $7,
			   filters = $8, source_url = $9, error = $10, scraped_at = $11, updated_at = $12`,
			r.ID, r.URL, string(r.Status), r.Title, r.Company, r.Location, r.Domain,
			filters, r.SourceURL, r.Error, r.ScrapedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert job record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job records: %w", err)
	}
	return nil
}

// ListRecords returns records, most recently updated first
func (db *DB) ListRecords(ctx context.Context, filter ListFilter) ([]types.JobRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM job_records
		WHERE ($1 = '' OR domain = $1) AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC, id`
	args := []any{filter.Domain, string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	records := []types.JobRecord{}
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanPostgres returns nil, nil when the row does not exist.
func scanPostgres(row pgx.Row) (*types.JobRecord, error) {
	var r types.JobRecord
	var status string
	var filters []byte
	err := row.Scan(&r.ID, &r.URL, &status, &r.Title, &r.Company, &r.Location, &r.Domain,
		&filters, &r.SourceURL, &r.Error, &r.ScrapedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Status = types.JobStatus(status)
	r.ScrapedAt = r.ScrapedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &r.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters: %w", err)
		}
	}
	return &r, nil
}

func marshalFilters(filters map[string]string) ([]byte, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filters: %w", err)
	}
	return data, nil
}
