package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/apply-agent/internal/types"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_records (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	domain     TEXT NOT NULL DEFAULT '',
	filters    TEXT,
	source_url TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	scraped_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS job_records_domain_idx ON job_records (domain, status)`,
}

// SQLite is a single-file job store for local and CLI use.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetRecord retrieves a job record by id.
func (s *SQLite) GetRecord(ctx context.Context, id string) (*types.JobRecord, error) {
	rec, err := scanSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get job record: %w", err)
	}
	return rec, nil
}

// PutRecords upserts a batch of job records in one transaction.
func (s *SQLite) PutRecords(ctx context.Context, records []types.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	for _, in := range records {
		existing, err := scanSQLite(tx.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM job_records WHERE id = ?`, in.ID))
		if err != nil {
			return fmt.Errorf("sqlite: read job record %s: %w", in.ID, err)
		}
		r := Merge(existing, in, now)

		filters, err := marshalFilters(r.Filters)
		if err != nil {
			return err
		}
		var filtersText any
		if filters != nil {
			filtersText = string(filters)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_records (`+recordColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   url = excluded.url, status = excluded.status, title = excluded.title,
			   company = excluded.company, location = excluded.location, domain = excluded.domain,
			   filters = excluded.filters, source_url = excluded.source_url, error = excluded.error,
			   scraped_at = excluded.scraped_at, updated_at = excluded.updated_at`,
			r.ID, r.URL, string(r.Status), r.Title, r.Company, r.Location, r.Domain,
			filtersText, r.SourceURL, r.Error, formatTime(r.ScrapedAt), formatTime(r.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: upsert job record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// ListRecords returns records, most recently updated first.
func (s *SQLite) ListRecords(ctx context.Context, filter ListFilter) ([]types.JobRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM job_records
		WHERE (? = '' OR domain = ?) AND (? = '' OR status = ?)
		ORDER BY updated_at DESC, id`
	args := []any{filter.Domain, filter.Domain, string(filter.Status), string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list job records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []types.JobRecord{}
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan job record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

// scanSQLite returns nil, nil when the row does not exist.
func scanSQLite(row sqlScanner) (*types.JobRecord, error) {
	var r types.JobRecord
	var status, scrapedAt, updatedAt string
	var filters sql.NullString
	err := row.Scan(&r.ID, &r.URL, &status, &r.Title, &r.Company, &r.Location, &r.Domain,
		&filters, &r.SourceURL, &r.Error, &scrapedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Status = types.JobStatus(status)
	if filters.Valid && filters.String != "" {
		if err := json.Unmarshal([]byte(filters.String), &r.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}
	if r.ScrapedAt, err = time.Parse(timeLayout, scrapedAt); err != nil {
		return nil, fmt.Errorf("decode scraped_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
