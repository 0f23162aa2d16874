package observation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timeLayout is how timestamps are stored in SQLite TEXT columns.
const timeLayout = time.RFC3339Nano

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store manages the observations table in SQLite. Writes are serialized by
// an internal mutex so concurrent reconciler applications cannot interleave.
type Store struct {
	db *sql.DB

	mu sync.Mutex

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewStore creates a Store backed by the given SQLite database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// CreateParams holds the caller-supplied fields of a new observation.
// ID, status, and created_at are assigned by the store.
type CreateParams struct {
	Observer   string
	Content    string
	Severity   Severity
	SourceType SourceType
	SourceRef  string
	Category   string
	Suggestion string
}

// ListOpts configures a List query.
type ListOpts struct {
	Status         Status     // optional status filter
	Severities     []Severity // optional severity set filter
	Observer       string     // optional observer filter
	SortBySeverity bool       // most urgent first; default is created_at desc
	Limit          int        // 0 = no limit
}

// Create inserts a new observation with status open, a generated id, and
// the current timestamp.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return create(ctx, s.db, s.nowFunc(), p)
}

// CreateBatch inserts several observations in one transaction.
func (s *Store) CreateBatch(ctx context.Context, params []CreateParams) ([]Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("observation create batch begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.nowFunc()
	out := make([]Observation, 0, len(params))
	for _, p := range params {
		obs, err := create(ctx, tx, now, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("observation create batch commit: %w", err)
	}
	return out, nil
}

// create is the shared insert path used by Store and Tx.
func create(ctx context.Context, q querier, now time.Time, p CreateParams) (*Observation, error) {
	if p.Severity == "" {
		return nil, fmt.Errorf("observation create: severity is required")
	}
	sourceType := p.SourceType
	if sourceType == "" {
		sourceType = SourceUnknown
	}

	obs := Observation{
		ID:         uuid.New().String(),
		Observer:   p.Observer,
		Content:    p.Content,
		Severity:   p.Severity,
		Status:     StatusOpen,
		SourceType: sourceType,
		SourceRef:  p.SourceRef,
		Category:   p.Category,
		Suggestion: p.Suggestion,
		CreatedAt:  now.UTC(),
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO observations (id, observer, content, severity, status, source_type, source_ref, category, suggestion, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.Observer, obs.Content, string(obs.Severity), string(obs.Status),
		string(obs.SourceType), obs.SourceRef, obs.Category, obs.Suggestion,
		obs.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("observation insert: %w", err)
	}
	return &obs, nil
}

const selectColumns = `id, observer, content, severity, status, source_type,
       COALESCE(source_ref, ''), COALESCE(category, ''), COALESCE(suggestion, ''),
       created_at, acknowledged_at, resolved_at, COALESCE(resolution_note, '')`

// Get returns a single observation by id.
func (s *Store) Get(ctx context.Context, id string) (*Observation, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q querier, id string) (*Observation, error) {
	row := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM observations WHERE id = ?`, selectColumns), id)
	obs, err := scanObservation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("observation get: %w", err)
	}
	return obs, nil
}

// List returns observations matching the filters, newest first (or most
// urgent first with SortBySeverity).
func (s *Store) List(ctx context.Context, opts ListOpts) ([]Observation, error) {
	var conditions []string
	var args []any

	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}
	if len(opts.Severities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(opts.Severities)), ", ")
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", placeholders))
		for _, sev := range opts.Severities {
			args = append(args, string(sev))
		}
	}
	if opts.Observer != "" {
		conditions = append(conditions, "observer = ?")
		args = append(args, opts.Observer)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderClause := "ORDER BY created_at DESC, id DESC"
	if opts.SortBySeverity {
		orderClause = `ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 3
			ELSE 4 END, created_at DESC`
	}

	limitClause := ""
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}

	q := fmt.Sprintf(`SELECT %s FROM observations %s %s %s`,
		selectColumns, whereClause, orderClause, limitClause)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observation list: %w", err)
	}
	defer rows.Close()

	var results []Observation
	for rows.Next() {
		obs, err := scanObservation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("observation list scan: %w", err)
		}
		results = append(results, *obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("observation list rows: %w", err)
	}
	return results, nil
}

// Open returns all open observations, most urgent first. This is the dedup
// context handed to observers at dispatch time.
func (s *Store) Open(ctx context.Context) ([]Observation, error) {
	return s.List(ctx, ListOpts{Status: StatusOpen, SortBySeverity: true})
}

// Acknowledge moves an open observation to acknowledged. Acknowledging an
// already-acknowledged observation is a no-op; acknowledging a resolved one
// fails because resolved is terminal.
func (s *Store) Acknowledge(ctx context.Context, id string) (*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs, err := get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	switch obs.Status {
	case StatusAcknowledged:
		return obs, nil
	case StatusResolved:
		return nil, &AlreadyResolvedError{ID: id}
	}

	now := s.nowFunc().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE observations SET status = ?, acknowledged_at = ? WHERE id = ?`,
		string(StatusAcknowledged), now.Format(timeLayout), id,
	)
	if err != nil {
		return nil, fmt.Errorf("observation acknowledge: %w", err)
	}

	obs.Status = StatusAcknowledged
	obs.AcknowledgedAt = &now
	return obs, nil
}

// Resolve moves an open or acknowledged observation to resolved, recording
// the resolution note and timestamp.
func (s *Store) Resolve(ctx context.Context, id, note string) (*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolve(ctx, s.db, s.nowFunc(), id, note)
}

func resolve(ctx context.Context, q querier, now time.Time, id, note string) (*Observation, error) {
	obs, err := get(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if obs.Status == StatusResolved {
		return nil, &AlreadyResolvedError{ID: id}
	}

	resolvedAt := now.UTC()
	_, err = q.ExecContext(ctx,
		`UPDATE observations SET status = ?, resolved_at = ?, resolution_note = ? WHERE id = ?`,
		string(StatusResolved), resolvedAt.Format(timeLayout), note, id,
	)
	if err != nil {
		return nil, fmt.Errorf("observation resolve: %w", err)
	}

	obs.Status = StatusResolved
	obs.ResolvedAt = &resolvedAt
	obs.ResolutionNote = note
	return obs, nil
}

// ClearResolved deletes all resolved observations and returns the count
// removed. Open and acknowledged observations are untouched.
func (s *Store) ClearResolved(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM observations WHERE status = ?`, string(StatusResolved))
	if err != nil {
		return 0, fmt.Errorf("observation clear resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("observation clear resolved count: %w", err)
	}
	return n, nil
}

// CountBySeverity returns open/acknowledged/resolved counts grouped by
// severity for the given status ("" = all).
func (s *Store) CountBySeverity(ctx context.Context, status Status) (map[Severity]int, error) {
	q := `SELECT severity, COUNT(*) FROM observations GROUP BY severity`
	var args []any
	if status != "" {
		q = `SELECT severity, COUNT(*) FROM observations WHERE status = ? GROUP BY severity`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observation count by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[Severity]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("observation count scan: %w", err)
		}
		counts[Severity(sev)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("observation count rows: %w", err)
	}
	return counts, nil
}

// CountByStatus returns observation counts grouped by lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM observations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("observation count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("observation count scan: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("observation count rows: %w", err)
	}
	return counts, nil
}

// --- Transactional apply support ---

// Tx is a write transaction over the observation store, used by the
// reconciler to apply one observer result as a single unit.
type Tx struct {
	tx      *sql.Tx
	store   *Store
	nowFunc func() time.Time
	done    bool
}

// Begin starts a write transaction. The store's write mutex is held until
// Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("observation begin: %w", err)
	}
	return &Tx{tx: tx, store: s, nowFunc: s.nowFunc}, nil
}

// Create inserts a new observation within the transaction.
func (t *Tx) Create(ctx context.Context, p CreateParams) (*Observation, error) {
	return create(ctx, t.tx, t.nowFunc(), p)
}

// Resolve resolves an observation within the transaction.
func (t *Tx) Resolve(ctx context.Context, id, note string) (*Observation, error) {
	return resolve(ctx, t.tx, t.nowFunc(), id, note)
}

// Commit commits the transaction and releases the store write lock.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("observation commit: transaction already finished")
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("observation commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and releases the store write lock. After
// Commit it is a no-op, so defer tx.Rollback() is always safe.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("observation rollback: %w", err)
	}
	return nil
}

// scanObservation reads one observations row via the given Scan func.
func scanObservation(scan func(dest ...any) error) (*Observation, error) {
	var obs Observation
	var severity, status, sourceType, createdAt string
	var acknowledgedAt, resolvedAt sql.NullString

	err := scan(
		&obs.ID, &obs.Observer, &obs.Content, &severity, &status, &sourceType,
		&obs.SourceRef, &obs.Category, &obs.Suggestion,
		&createdAt, &acknowledgedAt, &resolvedAt, &obs.ResolutionNote,
	)
	if err != nil {
		return nil, err
	}

	obs.Severity = Severity(severity)
	obs.Status = Status(status)
	obs.SourceType = SourceType(sourceType)

	obs.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if acknowledgedAt.Valid {
		ts, err := time.Parse(timeLayout, acknowledgedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse acknowledged_at: %w", err)
		}
		obs.AcknowledgedAt = &ts
	}
	if resolvedAt.Valid {
		ts, err := time.Parse(timeLayout, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at: %w", err)
		}
		obs.ResolvedAt = &ts
	}
	return &obs, nil
}
