// CLAUDE:SUMMARY Applies the observation journal SQL schema: runs, residency, snapshots, change events.
package journal

import "database/sql"

// Schema is the complete journal schema. All timestamps are Unix milliseconds.
const Schema = `
-- One row per fetch attempt, successful or not
CREATE TABLE IF NOT EXISTS source_runs (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    observed_at  INTEGER NOT NULL,
    ok           INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    fingerprint  TEXT NOT NULL DEFAULT '',
    score        REAL NOT NULL DEFAULT 0,
    snippet_md   TEXT NOT NULL DEFAULT '',
    screenshot   TEXT NOT NULL DEFAULT '',
    publish_note TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_runs_source ON source_runs(source_id, observed_at DESC);

-- Consolidated hero residency timeline
CREATE TABLE IF NOT EXISTS residency (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL,
    url           TEXT NOT NULL,
    title         TEXT NOT NULL,
    image_url     TEXT NOT NULL DEFAULT '',
    first_seen_at INTEGER NOT NULL,
    last_seen_at  INTEGER NOT NULL,
    seen_count    INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_residency_source ON residency(source_id, first_seen_at);

-- Ranked-list snapshots for top10 sources
CREATE TABLE IF NOT EXISTS snapshots (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    ok          INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_snapshots_source ON snapshots(source_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS snapshot_items (
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    rank        INTEGER NOT NULL,
    title       TEXT NOT NULL,
    url         TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    UNIQUE(snapshot_id, rank)
);

-- Diff events between consecutive snapshots
CREATE TABLE IF NOT EXISTS change_events (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    title       TEXT NOT NULL,
    url         TEXT NOT NULL,
    from_rank   INTEGER NOT NULL DEFAULT 0,
    to_rank     INTEGER NOT NULL DEFAULT 0,
    observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_events_source ON change_events(source_id, observed_at);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
