package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrExchangeNotFound is returned when no exchange has the requested id.
var ErrExchangeNotFound = errors.New("exchange not found")

// Exchange is one audited message and its reply.
type Exchange struct {
	ID        string        `json:"id"`
	Sender    string        `json:"sender"`
	Input     string        `json:"input"`
	Reply     string        `json:"reply"`
	Outcome   string        `json:"outcome"`
	Model     string        `json:"model,omitempty"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListOptions filters ListExchanges.
type ListOptions struct {
	Sender  string
	Outcome string
	Since   time.Time
	Limit   int
}

// DefaultListLimit bounds ListExchanges when no limit is given.
const DefaultListLimit = 50

// InsertExchange stores ex.
func (db *DB) InsertExchange(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		return errors.New("exchange id is required")
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO exchanges (id, sender, input, reply, outcome, model, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Sender, ex.Input, ex.Reply, ex.Outcome,
		nullString(ex.Model), ex.Latency.Milliseconds(), nullString(ex.Error), ex.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// GetExchange returns the exchange with id.
func (db *DB) GetExchange(ctx context.Context, id string) (*Exchange, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, sender, input, reply, outcome, model, latency_ms, error, created_at
		 FROM exchanges WHERE id = ?`, id)

	ex, err := scanExchange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	return ex, err
}

// ListExchanges returns matching exchanges, newest first.
func (db *DB) ListExchanges(ctx context.Context, opts ListOptions) ([]*Exchange, error) {
	var (
		where []string
		args  []any
	)
	if opts.Sender != "" {
		where = append(where, "sender = ?")
		args = append(args, opts.Sender)
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UTC())
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, sender, input, reply, outcome, model, latency_ms, error, created_at FROM exchanges`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var out []*Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// OutcomeCounts returns the number of exchanges per outcome.
func (db *DB) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM exchanges GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// PruneExchanges deletes exchanges created before cutoff and returns how
// many were removed.
func (db *DB) PruneExchanges(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM exchanges WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(s scanner) (*Exchange, error) {
	var (
		ex        Exchange
		model     sql.NullString
		errText   sql.NullString
		latencyMS int64
	)
	if err := s.Scan(&ex.ID, &ex.Sender, &ex.Input, &ex.Reply, &ex.Outcome,
		&model, &latencyMS, &errText, &ex.CreatedAt); err != nil {
		return nil, err
	}
	ex.Model = model.String
	ex.Error = errText.String
	ex.Latency = time.Duration(latencyMS) * time.Millisecond
	return &ex, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
