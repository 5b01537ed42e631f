package publish

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/kiosque/heromark"
	"github.com/hazyhaar/kiosque/rankdiff"
	"github.com/hazyhaar/kiosque/residency"
)

func TestWriteCurrent_Atomic(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	state := CurrentState{
		OK:        true,
		UpdatedAt: 1700000000000,
		Since:     1699990000000,
		Item:      &heromark.Hero{Title: "Une", URL: "https://x/a", Fingerprint: "abc"},
	}
	if err := w.WriteCurrent("lemonde", state); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "current", "lemonde.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got CurrentState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.OK || got.Item == nil || got.Item.Title != "Une" || got.Since == 0 {
		t.Fatalf("round trip = %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "current", "lemonde.json.tmp")); !os.IsNotExist(err) {
		t.Error("tmp file left behind")
	}
}

func TestWriteCurrent_Degraded(t *testing.T) {
	// WHAT: A failed fetch still produces a valid artifact with the error,
	// and omits the hero and since fields.
	dir := t.TempDir()
	w := NewWriter(dir)

	if err := w.WriteCurrent("figaro", CurrentState{
		OK: false, UpdatedAt: 1000, Error: "blocked: captcha interstitial",
	}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "current", "figaro.json"))
	s := string(data)
	if !strings.Contains(s, `"ok": false`) || !strings.Contains(s, "blocked") {
		t.Fatalf("artifact = %s", s)
	}
	if strings.Contains(s, `"item"`) || strings.Contains(s, `"since"`) {
		t.Fatalf("degraded artifact should omit item and since: %s", s)
	}
}

func TestWriteBytes_RejectsTraversal(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := w.WriteBytes("../escape.json", []byte("x")); err == nil {
		t.Fatal("traversal path accepted")
	}
}

func TestWriteTop10_Paths(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	snap := &rankdiff.Snapshot{
		ID: "snap_1", SourceID: "lemonde_top", ObservedAt: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC).UnixMilli(),
		OK:    true,
		Items: []rankdiff.Item{{Rank: 1, Title: "A", URL: "https://x/a", Fingerprint: "fa"}},
	}
	if err := w.WriteTop10("lemonde_top", snap, "run_9"); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{
		"top10/lemonde_top/latest.json",
		"top10/lemonde_top/2026-08-03/run_9.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("missing artifact %s: %v", p, err)
		}
	}
}

func TestSnippet(t *testing.T) {
	s := NewSnipper()

	md := s.Snippet(`<div><h2><a href="/article/1">Grande une</a></h2><script>evil()</script><p>Chapeau de l'article.</p></div>`, "https://journal.example")
	if !strings.Contains(md, "Grande une") || !strings.Contains(md, "Chapeau") {
		t.Fatalf("snippet = %q", md)
	}
	if strings.Contains(md, "evil") {
		t.Fatalf("script survived sanitization: %q", md)
	}
	// Relative link resolved against the page URL.
	if !strings.Contains(md, "https://journal.example/article/1") {
		t.Errorf("relative link not resolved: %q", md)
	}
}

func TestWriteDigest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	err := w.WriteDigest(date, []DigestSource{
		{
			SourceID: "lemonde", Name: "Le Monde",
			Spans: []residency.Entry{
				{Title: "Une du matin", FirstSeenAt: date.Add(6 * time.Hour).UnixMilli(), LastSeenAt: date.Add(9 * time.Hour).UnixMilli(), SeenCount: 4},
			},
			EventCounts: map[string]int{"ENTERED": 2, "MOVED": 1},
			TopMovers:   []string{"Une du matin: 5 -> 1"},
		},
		{SourceID: "quiet", Name: "Quiet Source"},
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "digest", "2026-08-03.md"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{"# Front pages 2026-08-03", "## Le Monde", "Une du matin", "ENTERED: 2", "Top movers", "No observations."} {
		if !strings.Contains(s, want) {
			t.Errorf("digest missing %q:\n%s", want, s)
		}
	}
}
