// CLAUDE:SUMMARY Daily markdown digest: residency spans, change-event counts, top movers per source.
package publish

import (
	"bytes"
	"fmt"
	"time"

	"github.com/nao1215/markdown"

	"github.com/hazyhaar/kiosque/residency"
)

// DigestSource is one source's section in the daily digest.
type DigestSource struct {
	SourceID    string
	Name        string
	Spans       []residency.Entry
	EventCounts map[string]int // event type -> count
	TopMovers   []string       // "title: 5 -> 2" strings, pre-formatted
}

// DigestPath returns the digest artifact path for a date.
func DigestPath(date time.Time) string {
	return "digest/" + date.UTC().Format("2006-01-02") + ".md"
}

// WriteDigest builds the daily digest and writes it under digest/.
func (w *Writer) WriteDigest(date time.Time, sources []DigestSource) error {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Front pages " + date.UTC().Format("2006-01-02"))
	md.PlainText("")

	for _, src := range sources {
		name := src.Name
		if name == "" {
			name = src.SourceID
		}
		md.H2(name)

		if len(src.Spans) == 0 {
			md.PlainText("No observations.")
			md.PlainText("")
			continue
		}

		rows := make([][]string, 0, len(src.Spans))
		for _, e := range src.Spans {
			rows = append(rows, []string{
				e.Title,
				time.UnixMilli(e.FirstSeenAt).UTC().Format("15:04"),
				time.UnixMilli(e.LastSeenAt).UTC().Format("15:04"),
				fmt.Sprintf("%d", e.SeenCount),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Hero", "First seen", "Last seen", "Sightings"},
			Rows:   rows,
		})
		md.PlainText("")

		if len(src.EventCounts) > 0 {
			var items []string
			for _, typ := range []string{"ENTERED", "EXITED", "MOVED", "TITLE_UPDATED"} {
				if n := src.EventCounts[typ]; n > 0 {
					items = append(items, fmt.Sprintf("%s: %d", typ, n))
				}
			}
			if len(items) > 0 {
				md.H3("Changes")
				md.BulletList(items...)
				md.PlainText("")
			}
		}

		if len(src.TopMovers) > 0 {
			md.H3("Top movers")
			md.BulletList(src.TopMovers...)
			md.PlainText("")
		}
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("publish: build digest: %w", err)
	}
	return w.WriteBytes(DigestPath(date), buf.Bytes())
}
