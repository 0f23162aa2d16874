package observation

// SchemaDDL defines the SQLite schema for a vigil session database.
// Tables: observations, fingerprints, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Findings reported by observers, with lifecycle status
CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    observer TEXT NOT NULL,
    content TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    source_type TEXT NOT NULL DEFAULT 'unknown',
    source_ref TEXT,
    category TEXT,
    suggestion TEXT,
    created_at TEXT NOT NULL,
    acknowledged_at TEXT,
    resolved_at TEXT,
    resolution_note TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_status ON observations(status);
CREATE INDEX IF NOT EXISTS idx_observations_observer ON observations(observer);

-- Last-seen content fingerprints per watch target, scoped to the session
CREATE TABLE IF NOT EXISTS fingerprints (
    key TEXT PRIMARY KEY,
    hash TEXT NOT NULL,
    seen_at TEXT NOT NULL
);

-- Cycle and observer lifecycle events for status display and debugging
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    observer TEXT,
    detail TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
