package detect

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists the watch-target fingerprint map in the session database so
// change detection survives process restarts. One row per target key.
type Store struct {
	db *sql.DB

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewStore creates a fingerprint Store backed by the given SQLite database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// Load returns the last committed fingerprint for every known target key.
func (s *Store) Load(ctx context.Context) (map[string]Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, hash FROM fingerprints`)
	if err != nil {
		return nil, fmt.Errorf("fingerprint load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Fingerprint)
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			return nil, fmt.Errorf("fingerprint scan: %w", err)
		}
		out[key] = Fingerprint(hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fingerprint rows: %w", err)
	}
	return out, nil
}

// Commit upserts fingerprints for the given keys only. Keys not present in
// the map keep their previously committed value, so targets that were never
// inspected this cycle do not advance.
func (s *Store) Commit(ctx context.Context, fps map[string]Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fingerprint commit begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	for key, fp := range fps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprints (key, hash, seen_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET hash = excluded.hash, seen_at = excluded.seen_at`,
			key, string(fp), now,
		)
		if err != nil {
			return fmt.Errorf("fingerprint upsert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fingerprint commit: %w", err)
	}
	return nil
}
