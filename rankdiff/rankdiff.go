// CLAUDE:SUMMARY Ranked-list diff engine: turns two ordered top-N snapshots into typed change events.
// Package rankdiff compares two ordered top-N snapshots of a source and
// emits typed change events: a story entered the list, exited it, moved
// rank, or had its title edited in place.
package rankdiff

import "sort"

// EventType classifies a change between two snapshots.
type EventType string

const (
	EventEntered      EventType = "ENTERED"
	EventExited       EventType = "EXITED"
	EventMoved        EventType = "MOVED"
	EventTitleUpdated EventType = "TITLE_UPDATED"
)

// Item is one ranked story in a snapshot. Ranks are 1-based and unique
// within a snapshot, as are fingerprints.
type Item struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Fingerprint string `json:"fingerprint"`
}

// Snapshot is one observation of a ranked-list source.
type Snapshot struct {
	ID         string `json:"id,omitempty"`
	SourceID   string `json:"source_id"`
	ObservedAt int64  `json:"observed_at"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Items      []Item `json:"items"`
}

// Event is a derived, immutable change record. Rank zero means "not in
// that snapshot" (entered has no FromRank, exited no ToRank).
type Event struct {
	SourceID       string    `json:"source_id"`
	ObservedAt     int64     `json:"observed_at"`
	Type           EventType `json:"event_type"`
	Fingerprint    string    `json:"fingerprint"`
	FromRank       int       `json:"from_rank,omitempty"`
	ToRank         int       `json:"to_rank,omitempty"`
	FromTitle      string    `json:"from_title,omitempty"`
	ToTitle        string    `json:"to_title,omitempty"`
	FromSnapshotID string    `json:"from_snapshot_id,omitempty"`
	ToSnapshotID   string    `json:"to_snapshot_id,omitempty"`
}

// Diff compares previous against current and returns the change events,
// attributed to current.ObservedAt. A nil previous is the bootstrap case:
// every current item yields one ENTERED event.
//
// Per fingerprint the checks are independent: an item that moved AND had
// its title edited yields both a MOVED and a TITLE_UPDATED event. Items
// unchanged in both rank and title yield nothing.
//
// Output order is stable for snapshot tests: ENTERED by current rank,
// then MOVED/TITLE_UPDATED by current rank (MOVED first for the same
// fingerprint), then EXITED by previous rank.
func Diff(previous *Snapshot, current Snapshot) []Event {
	var fromID string
	prevByFP := map[string]Item{}
	if previous != nil {
		fromID = previous.ID
		for _, it := range previous.Items {
			prevByFP[it.Fingerprint] = it
		}
	}
	curByFP := make(map[string]Item, len(current.Items))
	for _, it := range current.Items {
		curByFP[it.Fingerprint] = it
	}

	base := Event{
		SourceID:       current.SourceID,
		ObservedAt:     current.ObservedAt,
		FromSnapshotID: fromID,
		ToSnapshotID:   current.ID,
	}

	var entered, changed, exited []Event

	for _, cur := range sortedByRank(current.Items) {
		prev, seen := prevByFP[cur.Fingerprint]
		if !seen {
			ev := base
			ev.Type = EventEntered
			ev.Fingerprint = cur.Fingerprint
			ev.ToRank = cur.Rank
			ev.ToTitle = cur.Title
			// Bootstrap events have no previous snapshot to point at.
			if previous == nil {
				ev.FromSnapshotID = ""
			}
			entered = append(entered, ev)
			continue
		}
		if prev.Rank != cur.Rank {
			ev := base
			ev.Type = EventMoved
			ev.Fingerprint = cur.Fingerprint
			ev.FromRank = prev.Rank
			ev.ToRank = cur.Rank
			ev.ToTitle = cur.Title
			changed = append(changed, ev)
		}
		if prev.Title != cur.Title {
			ev := base
			ev.Type = EventTitleUpdated
			ev.Fingerprint = cur.Fingerprint
			ev.FromRank = prev.Rank
			ev.ToRank = cur.Rank
			ev.FromTitle = prev.Title
			ev.ToTitle = cur.Title
			changed = append(changed, ev)
		}
	}

	if previous != nil {
		for _, prev := range sortedByRank(previous.Items) {
			if _, still := curByFP[prev.Fingerprint]; still {
				continue
			}
			ev := base
			ev.Type = EventExited
			ev.Fingerprint = prev.Fingerprint
			ev.FromRank = prev.Rank
			ev.FromTitle = prev.Title
			exited = append(exited, ev)
		}
	}

	out := make([]Event, 0, len(entered)+len(changed)+len(exited))
	out = append(out, entered...)
	out = append(out, changed...)
	out = append(out, exited...)
	return out
}

func sortedByRank(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
