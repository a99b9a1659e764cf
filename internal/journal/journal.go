// Package journal records webhook deliveries in a local SQLite database so
// redeliveries can be recognised and operators can see recent activity.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Delivery is one recorded webhook delivery.
type Delivery struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Action     string    `json:"action,omitempty"`
	Repository string    `json:"repository,omitempty"`
	PR         int       `json:"pr,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Journal is a SQLite-backed delivery log.
type Journal struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(j *Journal) { j.clock = c }
}

// Open opens (creating if needed) the journal at path and applies migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{db: db, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		slog.Debug("applied journal migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts d, or updates the outcome and error of an existing delivery
// with the same ID. Deliveries without an ID are not recorded.
func (j *Journal) Record(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		return nil
	}
	now := j.clock.Now()
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = now
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO deliveries (delivery_id, event, action, repository, pr, outcome, error, received_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (delivery_id) DO UPDATE SET
			outcome = excluded.outcome,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		d.ID, d.Event, d.Action, d.Repository, d.PR, d.Outcome, d.Error,
		d.ReceivedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", d.ID, err)
	}
	return nil
}

// Get returns the delivery with the given ID, or ok=false.
func (j *Journal) Get(ctx context.Context, id string) (Delivery, bool, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT delivery_id, event, action, repository, pr, outcome, error, received_at
		FROM deliveries WHERE delivery_id = ?`, id)

	d, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, fmt.Errorf("get delivery %s: %w", id, err)
	}
	return d, true, nil
}

// Handled reports whether id was already processed successfully or
// scheduled, in which case a redelivery must not run again.
func (j *Journal) Handled(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	d, ok, err := j.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return d.Outcome == "ok" || d.Outcome == "scheduled", nil
}

// Recent returns up to limit deliveries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT delivery_id, event, action, repository, pr, outcome, error, received_at
		FROM deliveries ORDER BY received_at DESC, delivery_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Delivery, error) {
	var d Delivery
	var received int64
	if err := s.Scan(&d.ID, &d.Event, &d.Action, &d.Repository, &d.PR, &d.Outcome, &d.Error, &received); err != nil {
		return Delivery{}, err
	}
	d.ReceivedAt = time.UnixMilli(received).UTC()
	return d, nil
}
