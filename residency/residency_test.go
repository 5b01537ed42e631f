package residency

import (
	"testing"

	"github.com/hazyhaar/kiosque/heromark"
)

func hero(title, url string) *heromark.Hero {
	return &heromark.Hero{Title: title, URL: url, Fingerprint: heromark.Fingerprint(title, url)}
}

func TestUpsert_NilItem(t *testing.T) {
	// WHAT: A failed fetch (nil item) never mutates the history.
	entries := []Entry{{URL: "u", Title: "t", FirstSeenAt: 1, LastSeenAt: 1, SeenCount: 1}}
	got, appended := Upsert(entries, 2, nil)
	if appended || len(got) != 1 || got[0].LastSeenAt != 1 || got[0].SeenCount != 1 {
		t.Fatalf("nil item mutated history: %+v", got)
	}
}

func TestUpsert_Idempotence(t *testing.T) {
	// WHAT: Two observations of the same (url, title) consolidate into one
	// entry with SeenCount 2, FirstSeenAt unchanged, LastSeenAt updated.
	// WHY: Residency collapses repeated observations instead of duplicating rows.
	var entries []Entry
	entries, appended := Upsert(entries, 100, hero("T", "https://e.com/a"))
	if !appended {
		t.Fatal("first observation should append")
	}
	entries, appended = Upsert(entries, 200, hero("T", "https://e.com/a"))
	if appended {
		t.Fatal("second identical observation should not append")
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.SeenCount != 2 || e.FirstSeenAt != 100 || e.LastSeenAt != 200 {
		t.Fatalf("entry = %+v, want SeenCount 2, FirstSeenAt 100, LastSeenAt 200", e)
	}
}

func TestUpsert_TitleEditAppends(t *testing.T) {
	// WHAT: Same url with a changed title appends a NEW entry, not a merge;
	// distinct from a new url also appending.
	// WHY: Title edits are part of the observable history.
	var entries []Entry
	entries, _ = Upsert(entries, 100, hero("First headline", "https://e.com/a"))
	entries, appended := Upsert(entries, 200, hero("Edited headline", "https://e.com/a"))
	if !appended || len(entries) != 2 {
		t.Fatalf("title edit did not append: %+v", entries)
	}
	if entries[0].SeenCount != 1 || entries[0].LastSeenAt != 100 {
		t.Errorf("frozen entry mutated: %+v", entries[0])
	}

	entries, appended = Upsert(entries, 300, hero("Edited headline", "https://e.com/b"))
	if !appended || len(entries) != 3 {
		t.Fatalf("url change did not append: %+v", entries)
	}
}

func TestUpsert_ImageURLRefresh(t *testing.T) {
	// WHAT: A non-empty image url on a consolidated observation replaces the
	// stored one; an empty one keeps it.
	var entries []Entry
	h := hero("T", "https://e.com/a")
	h.ImageURL = "https://img/1.jpg"
	entries, _ = Upsert(entries, 1, h)

	entries, _ = Upsert(entries, 2, hero("T", "https://e.com/a"))
	if entries[0].ImageURL != "https://img/1.jpg" {
		t.Errorf("empty image url overwrote stored one: %q", entries[0].ImageURL)
	}

	h2 := hero("T", "https://e.com/a")
	h2.ImageURL = "https://img/2.jpg"
	entries, _ = Upsert(entries, 3, h2)
	if entries[0].ImageURL != "https://img/2.jpg" {
		t.Errorf("fresh image url not applied: %q", entries[0].ImageURL)
	}
}

func TestSinceFor_Boundary(t *testing.T) {
	// WHAT: Empty history or a last entry for a different url → not found.
	// WHY: The current item is stale relative to history right after a url
	// change; the next write repairs it.
	if _, ok := SinceFor(nil, "https://e.com/a"); ok {
		t.Error("empty history should not answer")
	}
	entries := []Entry{{URL: "https://e.com/old", FirstSeenAt: 1, LastSeenAt: 1, SeenCount: 1}}
	if _, ok := SinceFor(entries, "https://e.com/new"); ok {
		t.Error("stale last entry should not answer")
	}
}

func TestSinceFor_AcrossTitleEdits(t *testing.T) {
	// WHAT: Consecutive entries for the same url (title edits) count as one
	// continuous residency; the earliest FirstSeenAt wins.
	entries := []Entry{
		{URL: "https://e.com/other", Title: "X", FirstSeenAt: 50, LastSeenAt: 90, SeenCount: 3},
		{URL: "https://e.com/a", Title: "V1", FirstSeenAt: 100, LastSeenAt: 150, SeenCount: 2},
		{URL: "https://e.com/a", Title: "V2", FirstSeenAt: 200, LastSeenAt: 260, SeenCount: 2},
	}
	since, ok := SinceFor(entries, "https://e.com/a")
	if !ok {
		t.Fatal("expected an answer")
	}
	if since != 100 {
		t.Fatalf("since = %d, want 100 (earliest FirstSeenAt of the url streak)", since)
	}
}

func TestSinceFor_StreakStopsAtURLChange(t *testing.T) {
	// WHAT: The backward scan stops at the first entry with a different url,
	// even if the same url appears earlier in history.
	entries := []Entry{
		{URL: "https://e.com/a", Title: "old stint", FirstSeenAt: 10, LastSeenAt: 20, SeenCount: 1},
		{URL: "https://e.com/b", Title: "interloper", FirstSeenAt: 30, LastSeenAt: 40, SeenCount: 1},
		{URL: "https://e.com/a", Title: "back on top", FirstSeenAt: 50, LastSeenAt: 60, SeenCount: 1},
	}
	since, ok := SinceFor(entries, "https://e.com/a")
	if !ok || since != 50 {
		t.Fatalf("since = %d ok = %v, want 50 (earlier stint excluded)", since, ok)
	}
}
