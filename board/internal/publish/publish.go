// Package publish renders journal state into consumable artifacts: JSON
// state files, markdown hero snippets, and daily digests. Local files are
// the canonical output; remote upload is the caller's concern.
package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/kiosque/board/internal/journal"
	"github.com/hazyhaar/kiosque/heromark"
	"github.com/hazyhaar/kiosque/rankdiff"
	"github.com/hazyhaar/kiosque/residency"
)

// CurrentState is the per-source current-hero artifact.
type CurrentState struct {
	OK        bool           `json:"ok"`
	UpdatedAt int64          `json:"updatedAt"`
	Error     string         `json:"error,omitempty"`
	Since     int64          `json:"since,omitempty"`
	Item      *heromark.Hero `json:"item,omitempty"`
}

// History is the per-source residency timeline artifact.
type History struct {
	SourceID  string            `json:"sourceId"`
	UpdatedAt int64             `json:"updatedAt"`
	Entries   []residency.Entry `json:"entries"`
}

// Events is the per-source windowed change-event artifact.
type Events struct {
	SourceID  string          `json:"sourceId"`
	UpdatedAt int64           `json:"updatedAt"`
	Events    []journal.Event `json:"events"`
}

// Writer writes artifacts under a root directory. All writes are atomic
// (tmp file then rename) so readers never see a torn file.
type Writer struct {
	Dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// WriteJSON marshals v and atomically writes it at relPath under the root.
func (w *Writer) WriteJSON(relPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: marshal %s: %w", relPath, err)
	}
	return w.WriteBytes(relPath, append(data, '\n'))
}

// WriteBytes atomically writes raw bytes at relPath under the root.
func (w *Writer) WriteBytes(relPath string, data []byte) error {
	if strings.Contains(relPath, "..") {
		return fmt.Errorf("publish: invalid path %q", relPath)
	}
	full := filepath.Join(w.Dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("publish: mkdir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("publish: write %s: %w", relPath, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish: rename %s: %w", relPath, err)
	}
	return nil
}

// CurrentPath returns the current-state artifact path for a source.
func CurrentPath(sourceID string) string { return "current/" + sourceID + ".json" }

// HistoryPath returns the residency timeline artifact path for a source.
func HistoryPath(sourceID string) string { return "history/" + sourceID + ".json" }

// EventsPath returns the change-event artifact path for a source.
func EventsPath(sourceID string) string { return "events/" + sourceID + ".json" }

// Top10LatestPath returns the latest-snapshot artifact path for a source.
func Top10LatestPath(sourceID string) string { return "top10/" + sourceID + "/latest.json" }

// Top10DatedPath returns the dated per-run snapshot path for a source.
func Top10DatedPath(sourceID string, at time.Time, runID string) string {
	return fmt.Sprintf("top10/%s/%s/%s.json", sourceID, at.UTC().Format("2006-01-02"), runID)
}

// WriteCurrent writes the current-state artifact. Degraded states
// (ok:false with an error) go through the same path.
func (w *Writer) WriteCurrent(sourceID string, state CurrentState) error {
	return w.WriteJSON(CurrentPath(sourceID), state)
}

// WriteHistory writes the residency timeline artifact.
func (w *Writer) WriteHistory(sourceID string, updatedAt int64, entries []residency.Entry) error {
	return w.WriteJSON(HistoryPath(sourceID), History{
		SourceID: sourceID, UpdatedAt: updatedAt, Entries: entries,
	})
}

// WriteEvents writes the windowed change-event artifact.
func (w *Writer) WriteEvents(sourceID string, updatedAt int64, events []journal.Event) error {
	return w.WriteJSON(EventsPath(sourceID), Events{
		SourceID: sourceID, UpdatedAt: updatedAt, Events: events,
	})
}

// WriteTop10 writes the latest snapshot artifact plus its dated copy.
func (w *Writer) WriteTop10(sourceID string, snap *rankdiff.Snapshot, runID string) error {
	if err := w.WriteJSON(Top10LatestPath(sourceID), snap); err != nil {
		return err
	}
	at := time.UnixMilli(snap.ObservedAt)
	return w.WriteJSON(Top10DatedPath(sourceID, at, runID), snap)
}
