// CLAUDE:SUMMARY RSS/Atom strategy via gofeed: maps feed items to candidates in feed order.
package harvest

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// ExtractFeed fetches an RSS/Atom feed and maps its items to candidates
// in feed order. Used as the ranked-list fallback when a source declares
// a feed URL. The "feed" signal lets rule sets weigh feed-sourced
// candidates differently from scraped ones.
func ExtractFeed(ctx context.Context, feedURL string) ([]*Candidate, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest: parse feed %s: %w", feedURL, err)
	}
	return feedCandidates(feed), nil
}

// ParseFeed maps already-fetched feed XML to candidates. Split from
// ExtractFeed so tests and buffered fetches can feed raw bytes.
func ParseFeed(xml string) ([]*Candidate, error) {
	feed, err := gofeed.NewParser().ParseString(xml)
	if err != nil {
		return nil, fmt.Errorf("harvest: parse feed: %w", err)
	}
	return feedCandidates(feed), nil
}

func feedCandidates(feed *gofeed.Feed) []*Candidate {
	cands := make([]*Candidate, 0, len(feed.Items))
	for i, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}
		c := &Candidate{
			Title:   item.Title,
			URL:     item.Link,
			Order:   i,
			Signals: map[string]float64{"feed": 1},
		}
		if item.Image != nil {
			c.ImageURL = item.Image.URL
		} else if len(item.Enclosures) > 0 {
			c.ImageURL = item.Enclosures[0].URL
		}
		cands = append(cands, c)
	}
	return cands
}
