// CLAUDE:SUMMARY Candidate model + heuristic scorer: picks the single best top-story element (or a ranked top-N) per page.
// Package harvest extracts link-like candidates from a rendered front page
// and scores them to select the lead story. The scoring rules are
// per-source configuration, not global constants; the algorithm is one
// generic scorer parameterized by a site adapter, never N copies.
package harvest

import (
	"fmt"
	"sort"

	"github.com/hazyhaar/kiosque/heromark"
)

// Candidate is one link-like node extracted from a page. Transient:
// produced per page, never persisted directly.
type Candidate struct {
	Title    string
	URL      string
	ImageURL string
	// HTML is the matched block's outer HTML, kept for the snippet
	// pipeline. Feed candidates leave it empty.
	HTML string
	// Order is the document-order index within the extraction, used for
	// deterministic tie-breaking (earlier wins).
	Order int
	// Signals holds boolean signals as 1/0 plus any numeric ones.
	Signals map[string]float64
}

// Rule maps a signal to an additive weight. Negative weights demote
// (video, live tickers, photo galleries).
type Rule struct {
	Signal string  `yaml:"signal" json:"signal"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Filter rejects candidates outright before scoring.
type Filter struct {
	// MinTitleLen is the minimum title length in runes. Default: 8.
	MinTitleLen int
	// StoryURL reports whether a URL is a story URL for this source.
	// Nil accepts everything.
	StoryURL func(string) bool
}

func (f *Filter) defaults() {
	if f.MinTitleLen <= 0 {
		f.MinTitleLen = 8
	}
}

// Selection is the outcome of picking a winner. Absence of a story is a
// normal, reportable outcome: OK false with a diagnostic reason, never
// an error.
type Selection struct {
	OK        bool
	Reason    string
	Candidate *Candidate
	Score     float64
}

// Score computes the additive rule score for one candidate.
func Score(c *Candidate, rules []Rule) float64 {
	var total float64
	for _, r := range rules {
		if v, present := c.Signals[r.Signal]; present {
			total += r.Weight * v
		}
	}
	return total
}

// Pick selects the highest-scoring candidate that survives the rejection
// filters. Ties break by extraction order, earliest wins.
func Pick(cands []*Candidate, rules []Rule, filter Filter) Selection {
	filter.defaults()

	if len(cands) == 0 {
		return Selection{Reason: "no candidates found"}
	}

	survivors, shortTitle, notStory := applyFilter(cands, filter)
	if len(survivors) == 0 {
		return Selection{Reason: rejectionReason(shortTitle, notStory)}
	}

	best := survivors[0]
	bestScore := Score(best, rules)
	for _, c := range survivors[1:] {
		if s := Score(c, rules); s > bestScore {
			best, bestScore = c, s
		}
	}
	return Selection{OK: true, Candidate: best, Score: bestScore}
}

// Ranked is one entry of a top-N selection.
type Ranked struct {
	Rank      int
	Candidate *Candidate
	Score     float64
}

// PickTop applies the same rejection filters and scoring as Pick, then
// returns up to n candidates ranked 1..n by score (document order breaks
// ties). Duplicate stories (same fingerprint) keep only the
// highest-scored occurrence.
func PickTop(cands []*Candidate, rules []Rule, filter Filter, n int) []Ranked {
	filter.defaults()

	survivors, _, _ := applyFilter(cands, filter)
	if len(survivors) == 0 {
		return nil
	}

	bestByFP := map[string]Ranked{}
	for _, c := range survivors {
		fp := heromark.Fingerprint(c.Title, c.URL)
		r := Ranked{Candidate: c, Score: Score(c, rules)}
		prev, seen := bestByFP[fp]
		if !seen || r.Score > prev.Score {
			bestByFP[fp] = r
			continue
		}
		if r.Score == prev.Score && c.Order < prev.Candidate.Order {
			bestByFP[fp] = r
		}
	}

	ranked := make([]Ranked, 0, len(bestByFP))
	for _, r := range bestByFP {
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.Order < ranked[j].Candidate.Order
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func applyFilter(cands []*Candidate, filter Filter) (survivors []*Candidate, shortTitle, notStory int) {
	for _, c := range cands {
		if len([]rune(heromark.CollapseTitle(c.Title))) < filter.MinTitleLen {
			shortTitle++
			continue
		}
		if filter.StoryURL != nil && !filter.StoryURL(c.URL) {
			notStory++
			continue
		}
		survivors = append(survivors, c)
	}
	return survivors, shortTitle, notStory
}

func rejectionReason(shortTitle, notStory int) string {
	switch {
	case shortTitle > 0 && notStory > 0:
		return fmt.Sprintf("all candidates rejected: %d title too short, %d not a story url", shortTitle, notStory)
	case shortTitle > 0:
		return "all candidates rejected: title too short"
	default:
		return "all candidates rejected: not a story url"
	}
}
