package harvest

import (
	"regexp"
	"strings"
	"testing"
)

func cand(order int, title, url string, signals map[string]float64) *Candidate {
	if signals == nil {
		signals = map[string]float64{}
	}
	return &Candidate{Title: title, URL: url, Order: order, Signals: signals}
}

var testRules = []Rule{
	{Signal: "heading", Weight: 5},
	{Signal: "image", Weight: 3},
	{Signal: "main", Weight: 2},
	{Signal: "video", Weight: -4},
	{Signal: "live", Weight: -4},
}

func TestPick_HighestScoreWins(t *testing.T) {
	// WHAT: The additive rule score decides the winner, weights from config.
	cands := []*Candidate{
		cand(0, "A plain headline here", "https://e.com/a", map[string]float64{"image": 1}),
		cand(1, "The actual lead story", "https://e.com/b", map[string]float64{"heading": 1, "image": 1, "main": 1}),
		cand(2, "A demoted video story", "https://e.com/c", map[string]float64{"heading": 1, "video": 1}),
	}
	sel := Pick(cands, testRules, Filter{})
	if !sel.OK {
		t.Fatalf("not ok: %s", sel.Reason)
	}
	if sel.Candidate.URL != "https://e.com/b" {
		t.Errorf("winner = %s, want /b", sel.Candidate.URL)
	}
	if sel.Score != 10 {
		t.Errorf("score = %v, want 10", sel.Score)
	}
}

func TestPick_TieBreaksByOrder(t *testing.T) {
	// WHAT: Equal scores → earlier document order wins.
	cands := []*Candidate{
		cand(0, "First equal candidate", "https://e.com/a", map[string]float64{"heading": 1}),
		cand(1, "Second equal candidate", "https://e.com/b", map[string]float64{"heading": 1}),
	}
	sel := Pick(cands, testRules, Filter{})
	if !sel.OK || sel.Candidate.URL != "https://e.com/a" {
		t.Fatalf("winner = %+v, want first in document order", sel.Candidate)
	}
}

func TestPick_NoCandidates(t *testing.T) {
	sel := Pick(nil, testRules, Filter{})
	if sel.OK || sel.Reason != "no candidates found" {
		t.Fatalf("selection = %+v", sel)
	}
}

func TestPick_RejectionFilters(t *testing.T) {
	// WHAT: Short titles and non-story URLs are rejected before scoring,
	// with a diagnostic reason when nothing survives.
	storyRe := regexp.MustCompile(`/\d{4}/`)
	filter := Filter{
		MinTitleLen: 8,
		StoryURL:    func(u string) bool { return storyRe.MatchString(u) },
	}

	cands := []*Candidate{
		cand(0, "Short", "https://e.com/2026/a", nil),
		cand(1, "Long enough headline", "https://e.com/tag/politics", nil),
	}
	sel := Pick(cands, testRules, filter)
	if sel.OK {
		t.Fatalf("selection ok, want rejection: %+v", sel)
	}
	if !strings.Contains(sel.Reason, "title too short") || !strings.Contains(sel.Reason, "not a story url") {
		t.Errorf("reason = %q", sel.Reason)
	}

	// A surviving candidate beats rejected ones regardless of score.
	cands = append(cands, cand(2, "The real story headline", "https://e.com/2026/real", nil))
	sel = Pick(cands, testRules, filter)
	if !sel.OK || sel.Candidate.URL != "https://e.com/2026/real" {
		t.Fatalf("selection = %+v", sel)
	}
}

func TestPickTop_RanksAndDedup(t *testing.T) {
	// WHAT: PickTop ranks by score then order, dedups by fingerprint, caps at n.
	cands := []*Candidate{
		cand(0, "Story number one here", "https://e.com/1", map[string]float64{"image": 1}),
		cand(1, "Story number two here", "https://e.com/2", map[string]float64{"heading": 1, "image": 1}),
		// Duplicate of story one, lower score, dropped.
		cand(2, "Story number one here", "https://e.com/1", nil),
		cand(3, "Story number three ok", "https://e.com/3", nil),
	}
	ranked := PickTop(cands, testRules, Filter{}, 10)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d items, want 3 (dedup)", len(ranked))
	}
	if ranked[0].Candidate.URL != "https://e.com/2" || ranked[0].Rank != 1 {
		t.Errorf("rank 1 = %+v", ranked[0])
	}
	if ranked[1].Candidate.URL != "https://e.com/1" || ranked[1].Rank != 2 {
		t.Errorf("rank 2 = %+v", ranked[1])
	}
	if ranked[2].Candidate.URL != "https://e.com/3" || ranked[2].Rank != 3 {
		t.Errorf("rank 3 = %+v", ranked[2])
	}

	if got := PickTop(cands, testRules, Filter{}, 2); len(got) != 2 {
		t.Errorf("cap at n: got %d", len(got))
	}
}

const fixturePage = `<!doctype html>
<html><body>
<header><a href="/subscribe">Subscribe now today</a></header>
<main>
  <div class="hero">
    <span class="kicker">Politics</span>
    <h1><a href="/2026/08/budget-vote">Budget vote passes after marathon session</a></h1>
    <img src="/img/budget.jpg" alt="">
  </div>
  <div class="secondary">
    <h2><a href="/2026/08/strike-update">Transit strike enters second week</a></h2>
  </div>
  <div class="secondary video-block">
    <h2><a href="/video/press-conference">Watch: the full press conference</a></h2>
  </div>
</main>
<footer><a href="/about">About this site and team</a></footer>
</body></html>`

func TestExtract_FirstGroupWinsExclusively(t *testing.T) {
	// WHAT: The first selector group yielding ≥1 candidate is used alone;
	// fallback groups are not merged in.
	groups := [][]string{
		{"main .hero"},
		{"main .secondary"},
	}
	cands, label, err := Extract(fixturePage, "https://e.com/", groups)
	if err != nil {
		t.Fatal(err)
	}
	if label != "css:0" {
		t.Errorf("label = %q, want css:0", label)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1 (no merging with fallbacks)", len(cands))
	}
	c := cands[0]
	if c.Title != "Budget vote passes after marathon session" {
		t.Errorf("title = %q", c.Title)
	}
	if c.URL != "https://e.com/2026/08/budget-vote" {
		t.Errorf("url = %q (relative href must resolve)", c.URL)
	}
	if c.ImageURL != "/img/budget.jpg" {
		t.Errorf("image = %q", c.ImageURL)
	}
	for _, sig := range []string{"heading", "image", "main", "kicker"} {
		if c.Signals[sig] != 1 {
			t.Errorf("signal %s = %v, want 1", sig, c.Signals[sig])
		}
	}
}

func TestExtract_FallbackGroup(t *testing.T) {
	// WHAT: An empty primary group falls through to the next one.
	groups := [][]string{
		{".does-not-exist"},
		{"main .secondary"},
	}
	cands, label, err := Extract(fixturePage, "https://e.com/", groups)
	if err != nil {
		t.Fatal(err)
	}
	if label != "css:1" {
		t.Errorf("label = %q, want css:1", label)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	// The video block carries the demotion signal.
	var video *Candidate
	for _, c := range cands {
		if strings.Contains(c.URL, "/video/") {
			video = c
		}
	}
	if video == nil || video.Signals["video"] != 1 {
		t.Errorf("video candidate signals: %+v", video)
	}
}

func TestExtract_NothingMatches(t *testing.T) {
	cands, label, err := Extract(fixturePage, "https://e.com/", [][]string{{".nope"}})
	if err != nil || cands != nil || label != "" {
		t.Fatalf("got %v %q %v, want empty result", cands, label, err)
	}
}

func TestExtract_MalformedSrcset(t *testing.T) {
	// WHAT: A srcset whose leading entries are empty must not break
	// extraction; the first entry with a url wins, and an all-empty
	// srcset yields no image.
	const page = `<!doctype html>
<html><body><main>
  <div class="hero">
    <h1><a href="/2026/08/one">Leading comma in the srcset here</a></h1>
    <img srcset=", https://e.com/img/one.jpg 2x">
  </div>
  <div class="hero">
    <h1><a href="/2026/08/two">Srcset with nothing in it at all</a></h1>
    <img srcset=",,">
  </div>
</main></body></html>`

	cands, _, err := Extract(page, "https://e.com/", [][]string{{"main .hero"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	if cands[0].ImageURL != "https://e.com/img/one.jpg" {
		t.Errorf("image = %q, want the first non-empty srcset entry", cands[0].ImageURL)
	}
	if cands[1].ImageURL != "" {
		t.Errorf("image = %q, want none for an empty srcset", cands[1].ImageURL)
	}
}

func TestParseFeed(t *testing.T) {
	const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
<item><title>Feed story one</title><link>https://e.com/f1</link></item>
<item><title>Feed story two</title><link>https://e.com/f2</link>
  <enclosure url="https://img/f2.jpg" type="image/jpeg" length="1"/></item>
<item><title></title><link>https://e.com/skipme</link></item>
</channel></rss>`

	cands, err := ParseFeed(feedXML)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2 (untitled item skipped)", len(cands))
	}
	if cands[0].Title != "Feed story one" || cands[0].Signals["feed"] != 1 {
		t.Errorf("first = %+v", cands[0])
	}
	if cands[1].ImageURL != "https://img/f2.jpg" {
		t.Errorf("enclosure image = %q", cands[1].ImageURL)
	}
}

func TestBlockedMarker(t *testing.T) {
	if m := BlockedMarker("<html><body>Just a moment...</body></html>"); m == "" {
		t.Error("cloudflare interstitial not detected")
	}
	if m := BlockedMarker("<html><body>Please complete the CAPTCHA</body></html>"); m == "" {
		t.Error("captcha not detected")
	}
	if m := BlockedMarker(fixturePage); m != "" {
		t.Errorf("false positive on real page: %q", m)
	}
}
