// CLAUDE:SUMMARY Residency consolidation: collapses repeated lead-story observations into continuous-occupancy entries and answers "since when".
// Package residency turns a per-run stream of selected lead stories into a
// per-source, time-ordered, append-only occupancy history. Entries are
// ordered by FirstSeenAt; only the last entry may still be mutated, every
// earlier entry is frozen once superseded.
package residency

import "github.com/hazyhaar/kiosque/heromark"

// Entry records one continuous period during which a (url, title) pair
// occupied the top slot for a source. Timestamps are Unix milliseconds.
type Entry struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	ImageURL    string `json:"image_url,omitempty"`
	FirstSeenAt int64  `json:"first_seen_at"`
	LastSeenAt  int64  `json:"last_seen_at"`
	SeenCount   int    `json:"seen_count"`
}

// Upsert applies one observation to a source's history and returns the
// updated slice plus whether a new entry was appended.
//
// A nil item (failed fetch) leaves the history untouched. When the last
// entry matches the item on both url and title, the entry is extended in
// place: LastSeenAt advances, SeenCount increments, and a non-empty image
// URL replaces the stored one. Anything else (a new url, or the same url
// with an edited title) appends a fresh entry, so title edits stay
// visible in the timeline.
func Upsert(entries []Entry, observedAt int64, item *heromark.Hero) ([]Entry, bool) {
	if item == nil {
		return entries, false
	}

	if n := len(entries); n > 0 {
		last := &entries[n-1]
		if last.URL == item.URL && last.Title == item.Title {
			last.LastSeenAt = observedAt
			last.SeenCount++
			if item.ImageURL != "" {
				last.ImageURL = item.ImageURL
			}
			return entries, false
		}
	}

	return append(entries, Entry{
		URL:         item.URL,
		Title:       item.Title,
		ImageURL:    item.ImageURL,
		FirstSeenAt: observedAt,
		LastSeenAt:  observedAt,
		SeenCount:   1,
	}), true
}

// SinceFor answers "since when has currentURL held the top slot". It scans
// backward from the last entry across consecutive entries sharing that url
// (titles may differ; edits do not reset the clock) and returns the
// earliest FirstSeenAt reached.
//
// When the history is empty or the last entry's url differs from
// currentURL the answer is (0, false): the current item is stale relative
// to history, a normal state right after a url change and before the next
// write.
func SinceFor(entries []Entry, currentURL string) (int64, bool) {
	n := len(entries)
	if n == 0 || entries[n-1].URL != currentURL {
		return 0, false
	}

	i := n - 1
	for i > 0 && entries[i-1].URL == currentURL {
		i--
	}
	return entries[i].FirstSeenAt, true
}
