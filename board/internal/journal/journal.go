// Package journal is the local observation log: every fetch attempt, the
// consolidated hero residency timeline, top10 snapshots, and change events.
// It is the source of truth for the API and MCP queries; published artifacts
// are derived from it.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/kiosque/dbopen"
	"github.com/hazyhaar/kiosque/rankdiff"
	"github.com/hazyhaar/kiosque/residency"
)

// ErrNotFound is returned when a query matches no rows.
var ErrNotFound = errors.New("journal: not found")

// Run records one fetch attempt for a source, successful or not.
type Run struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"sourceId"`
	ObservedAt  int64   `json:"observedAt"`
	OK          bool    `json:"ok"`
	Error       string  `json:"error,omitempty"`
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Score       float64 `json:"score,omitempty"`
	SnippetMD   string  `json:"snippetMd,omitempty"`
	Screenshot  string  `json:"screenshot,omitempty"`
	PublishNote string  `json:"publishNote,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

// Event is a persisted change event with its observation time.
type Event struct {
	ID          string `json:"id"`
	SourceID    string `json:"sourceId"`
	SnapshotID  string `json:"snapshotId"`
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	FromRank    int    `json:"fromRank,omitempty"`
	ToRank      int    `json:"toRank,omitempty"`
	ObservedAt  int64  `json:"observedAt"`
}

// Store wraps the journal database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// InsertRun records a fetch attempt. Every attempt gets a row: identical
// consecutive observations are not collapsed here, only in residency.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = r.ObservedAt
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO source_runs (id, source_id, observed_at, ok, error, title, url,
		image_url, fingerprint, score, snippet_md, screenshot, publish_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceID, r.ObservedAt, r.OK, r.Error, r.Title, r.URL,
		r.ImageURL, r.Fingerprint, r.Score, r.SnippetMD, r.Screenshot, r.PublishNote, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}
	return nil
}

// SetRunPublishNote stores the publish batch outcome on an existing run row.
func (s *Store) SetRunPublishNote(ctx context.Context, runID, note string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE source_runs SET publish_note = ? WHERE id = ?`, note, runID)
	if err != nil {
		return fmt.Errorf("journal: set publish note: %w", err)
	}
	return nil
}

// CurrentFor returns the most recent run for a source.
func (s *Store) CurrentFor(ctx context.Context, sourceID string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, source_id, observed_at, ok, error, title, url, image_url,
		fingerprint, score, snippet_md, screenshot, publish_note, created_at
		FROM source_runs WHERE source_id = ?
		ORDER BY observed_at DESC LIMIT 1`, sourceID)
	r := &Run{}
	err := row.Scan(&r.ID, &r.SourceID, &r.ObservedAt, &r.OK, &r.Error, &r.Title,
		&r.URL, &r.ImageURL, &r.Fingerprint, &r.Score, &r.SnippetMD, &r.Screenshot,
		&r.PublishNote, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: current for %s: %w", sourceID, err)
	}
	return r, nil
}

// LoadResidency returns the residency timeline for a source, oldest first.
func (s *Store) LoadResidency(ctx context.Context, sourceID string) ([]residency.Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT url, title, image_url, first_seen_at, last_seen_at, seen_count
		FROM residency WHERE source_id = ?
		ORDER BY first_seen_at ASC, rowid ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("journal: load residency: %w", err)
	}
	defer rows.Close()

	var entries []residency.Entry
	for rows.Next() {
		var e residency.Entry
		if err := rows.Scan(&e.URL, &e.Title, &e.ImageURL, &e.FirstSeenAt, &e.LastSeenAt, &e.SeenCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveResidency replaces the stored timeline for a source. The in-memory
// upsert is the authority; a delete-and-reinsert inside one transaction keeps
// the table consistent with it.
func (s *Store) SaveResidency(ctx context.Context, sourceID string, entries []residency.Entry, newID func() string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM residency WHERE source_id = ?`, sourceID); err != nil {
			return fmt.Errorf("journal: clear residency: %w", err)
		}
		for _, e := range entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO residency (id, source_id, url, title, image_url,
				first_seen_at, last_seen_at, seen_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				newID(), sourceID, e.URL, e.Title, e.ImageURL,
				e.FirstSeenAt, e.LastSeenAt, e.SeenCount)
			if err != nil {
				return fmt.Errorf("journal: insert residency: %w", err)
			}
		}
		return nil
	})
}

// HistoryFor returns the residency timeline, newest first, capped at limit.
func (s *Store) HistoryFor(ctx context.Context, sourceID string, limit int) ([]residency.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT url, title, image_url, first_seen_at, last_seen_at, seen_count
		FROM residency WHERE source_id = ?
		ORDER BY first_seen_at DESC, rowid DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: history for %s: %w", sourceID, err)
	}
	defer rows.Close()

	var entries []residency.Entry
	for rows.Next() {
		var e residency.Entry
		if err := rows.Scan(&e.URL, &e.Title, &e.ImageURL, &e.FirstSeenAt, &e.LastSeenAt, &e.SeenCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertSnapshot persists a ranked snapshot with its items.
func (s *Store) InsertSnapshot(ctx context.Context, snap *rankdiff.Snapshot) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, source_id, observed_at, ok, error)
			VALUES (?, ?, ?, ?, ?)`,
			snap.ID, snap.SourceID, snap.ObservedAt, snap.OK, snap.Error)
		if err != nil {
			return fmt.Errorf("journal: insert snapshot: %w", err)
		}
		for _, it := range snap.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO snapshot_items (snapshot_id, rank, title, url, fingerprint)
				VALUES (?, ?, ?, ?, ?)`,
				snap.ID, it.Rank, it.Title, it.URL, it.Fingerprint)
			if err != nil {
				return fmt.Errorf("journal: insert snapshot item rank %d: %w", it.Rank, err)
			}
		}
		return nil
	})
}

// LatestSnapshot returns the most recent snapshot for a source with items
// ordered by rank.
func (s *Store) LatestSnapshot(ctx context.Context, sourceID string) (*rankdiff.Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, source_id, observed_at, ok, error
		FROM snapshots WHERE source_id = ?
		ORDER BY observed_at DESC LIMIT 1`, sourceID)
	snap := &rankdiff.Snapshot{}
	err := row.Scan(&snap.ID, &snap.SourceID, &snap.ObservedAt, &snap.OK, &snap.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: latest snapshot for %s: %w", sourceID, err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT rank, title, url, fingerprint
		FROM snapshot_items WHERE snapshot_id = ? ORDER BY rank ASC`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("journal: snapshot items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it rankdiff.Item
		if err := rows.Scan(&it.Rank, &it.Title, &it.URL, &it.Fingerprint); err != nil {
			return nil, err
		}
		snap.Items = append(snap.Items, it)
	}
	return snap, rows.Err()
}

// InsertEvents persists diff events against the snapshot that produced them.
// urls maps fingerprints to story URLs (from the snapshot items); an exited
// story's URL comes from the previous snapshot.
func (s *Store) InsertEvents(ctx context.Context, sourceID, snapshotID string, observedAt int64, events []rankdiff.Event, urls map[string]string, newID func() string) error {
	if len(events) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, ev := range events {
			title := ev.ToTitle
			if ev.Type == rankdiff.EventExited {
				title = ev.FromTitle
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO change_events (id, source_id, snapshot_id, event_type,
				fingerprint, title, url, from_rank, to_rank, observed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				newID(), sourceID, snapshotID, string(ev.Type),
				ev.Fingerprint, title, urls[ev.Fingerprint], ev.FromRank, ev.ToRank, observedAt)
			if err != nil {
				return fmt.Errorf("journal: insert event: %w", err)
			}
		}
		return nil
	})
}

// EventsSince returns change events at or after the given timestamp,
// oldest first.
func (s *Store) EventsSince(ctx context.Context, sourceID string, since int64) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_id, snapshot_id, event_type, fingerprint, title, url,
		from_rank, to_rank, observed_at
		FROM change_events WHERE source_id = ? AND observed_at >= ?
		ORDER BY observed_at ASC, rowid ASC`, sourceID, since)
	if err != nil {
		return nil, fmt.Errorf("journal: events since: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.SnapshotID, &ev.Type,
			&ev.Fingerprint, &ev.Title, &ev.URL, &ev.FromRank, &ev.ToRank, &ev.ObservedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneBefore deletes journal rows older than cutoff. Residency entries are
// pruned on last_seen_at so an entry still on the front page survives.
// Retention is age-based and explicit; ingestion never triggers it.
func (s *Store) PruneBefore(ctx context.Context, cutoff int64) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmts := []struct{ q string }{
			{`DELETE FROM snapshot_items WHERE snapshot_id IN
				(SELECT id FROM snapshots WHERE observed_at < ?)`},
			{`DELETE FROM snapshots WHERE observed_at < ?`},
			{`DELETE FROM change_events WHERE observed_at < ?`},
			{`DELETE FROM source_runs WHERE observed_at < ?`},
			{`DELETE FROM residency WHERE last_seen_at < ?`},
		}
		for _, st := range stmts {
			if _, err := tx.ExecContext(ctx, st.q, cutoff); err != nil {
				return fmt.Errorf("journal: prune: %w", err)
			}
		}
		return nil
	})
}
