// Package eventlog records and queries cycle and observer lifecycle events in
// the session SQLite database. The run command appends; vigil status and
// vigil-dash read.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event types written over a cycle's lifetime.
const (
	TypeCycleStart    = "cycle_start"
	TypeCycleComplete = "cycle_complete"
	TypeObserverOK    = "observer_ok"
	TypeObserverSkip  = "observer_skip"
	TypeObserverFail  = "observer_fail"
	TypeTimeout       = "observer_timeout"
)

// Event is one row from the session event log.
type Event struct {
	ID        int64
	Type      string
	Observer  string
	Detail    string
	CreatedAt time.Time
}

// QueryOpts filters event queries. Zero values mean no filter.
type QueryOpts struct {
	Observer  string
	EventType string
	After     *time.Time
	Limit     int
}

// Log appends and queries events over a shared session database handle.
type Log struct {
	db *sql.DB
}

// NewLog wraps an open session database.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append records one event. Detail is free-form text, typically a count
// summary or an error message.
func (l *Log) Append(ctx context.Context, eventType, observer, detail string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (type, observer, detail, created_at) VALUES (?, ?, ?, ?)`,
		eventType, observer, detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Query retrieves events matching the filter, newest first.
func (l *Log) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var observer, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &observer, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Observer = observer.String
		e.Detail = detail.String
		if createdAt != "" {
			ts, err := parseTimestamp(createdAt)
			if err != nil {
				return nil, fmt.Errorf("parse created_at: %w", err)
			}
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// parseTimestamp accepts both our RFC3339 writes and SQLite's own
// datetime('now') default format.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

func buildQuery(opts QueryOpts) (string, []any) {
	query := `SELECT id, type, observer, detail, created_at FROM events WHERE 1=1`
	var args []any

	if opts.Observer != "" {
		query += " AND observer = ?"
		args = append(args, opts.Observer)
	}
	if opts.EventType != "" {
		query += " AND type = ?"
		args = append(args, opts.EventType)
	}
	if opts.After != nil {
		query += " AND created_at >= ?"
		args = append(args, opts.After.UTC().Format(time.RFC3339Nano))
	}

	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return query, args
}
