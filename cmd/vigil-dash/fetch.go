package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"vigil/pkg/eventlog"
	"vigil/pkg/observation"
)

// snapshot is one refresh of everything the dashboard displays.
type snapshot struct {
	Observations []observation.Observation
	BySeverity   map[observation.Severity]int
	Events       []eventlog.Event
}

// fetchSnapshot reads the session database in read-only mode so the dashboard
// never blocks a running cycle.
func fetchSnapshot(ctx context.Context, dbPath string, status observation.Status) (*snapshot, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("session database not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	defer db.Close()

	store := observation.NewStore(db)
	observations, err := store.List(ctx, observation.ListOpts{
		Status:         status,
		SortBySeverity: true,
	})
	if err != nil {
		return nil, err
	}
	bySeverity, err := store.CountBySeverity(ctx, observation.StatusOpen)
	if err != nil {
		return nil, err
	}
	events, err := eventlog.NewLog(db).Query(ctx, eventlog.QueryOpts{Limit: 5})
	if err != nil {
		return nil, err
	}

	return &snapshot{
		Observations: observations,
		BySeverity:   bySeverity,
		Events:       events,
	}, nil
}
