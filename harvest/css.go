// CLAUDE:SUMMARY CSS selector extraction strategies via goquery: ordered priority groups, first non-empty group wins.
package harvest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract runs selector groups against pageHTML in priority order and
// returns the candidates of the FIRST group that yields any; fallback
// groups are never merged with primary results. The returned label names
// the winning group ("css:0", "css:1", ...) for run diagnostics.
func Extract(pageHTML, pageURL string, groups [][]string) ([]*Candidate, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, "", fmt.Errorf("harvest: parse page: %w", err)
	}

	base, _ := url.Parse(pageURL)

	for i, selectors := range groups {
		cands := extractGroup(doc, base, selectors)
		if len(cands) > 0 {
			return cands, fmt.Sprintf("css:%d", i), nil
		}
	}
	return nil, "", nil
}

func extractGroup(doc *goquery.Document, base *url.URL, selectors []string) []*Candidate {
	var cands []*Candidate
	seen := map[string]bool{}

	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, node *goquery.Selection) {
			c := candidateFrom(node, base)
			if c == nil || seen[c.URL] {
				return
			}
			seen[c.URL] = true
			c.Order = len(cands)
			cands = append(cands, c)
		})
	}
	return cands
}

// candidateFrom derives a Candidate from a matched node: the node itself
// when it is an anchor, otherwise its first descendant link.
func candidateFrom(node *goquery.Selection, base *url.URL) *Candidate {
	link := node
	if !node.Is("a[href]") {
		link = node.Find("a[href]").First()
		if link.Length() == 0 {
			return nil
		}
	}

	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return nil
	}
	abs := resolveURL(base, href)

	title := titleOf(node, link)
	if title == "" {
		return nil
	}

	outer, _ := goquery.OuterHtml(node)
	c := &Candidate{
		Title:    title,
		URL:      abs,
		ImageURL: imageOf(node),
		HTML:     outer,
		Signals:  map[string]float64{},
	}
	fillSignals(c, node, link)
	return c
}

func titleOf(node, link *goquery.Selection) string {
	if heading := node.Find("h1, h2, h3").First(); heading.Length() > 0 {
		if t := strings.Join(strings.Fields(heading.Text()), " "); t != "" {
			return t
		}
	}
	if label, ok := link.Attr("aria-label"); ok {
		if t := strings.Join(strings.Fields(label), " "); t != "" {
			return t
		}
	}
	return strings.Join(strings.Fields(link.Text()), " ")
}

func imageOf(node *goquery.Selection) string {
	img := node.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset, ok := img.Attr("srcset"); ok && srcset != "" {
		// srcset entries are "url width-descriptor" pairs; entries can be
		// empty in malformed markup, so take the first that has a url.
		for _, entry := range strings.Split(srcset, ",") {
			if fields := strings.Fields(entry); len(fields) > 0 {
				return fields[0]
			}
		}
	}
	return ""
}

// mediaMarkers flag non-article formats demoted by typical rule sets.
var mediaMarkers = map[string][]string{
	"video":   {"/video", "video-", "is-video"},
	"live":    {"/live", "live-blog", "liveblog", "en-direct"},
	"gallery": {"/gallery", "/diaporama", "photo-gallery", "slideshow"},
}

func fillSignals(c *Candidate, node, link *goquery.Selection) {
	if node.Is("h1, h2") || node.Find("h1, h2").Length() > 0 || node.Closest("h1, h2").Length() > 0 {
		c.Signals["heading"] = 1
	}
	if c.ImageURL != "" {
		c.Signals["image"] = 1
	}
	if node.Closest("main, article, [role=main]").Length() > 0 {
		c.Signals["main"] = 1
	}
	if node.Find("[class*=kicker], [class*=overline], [class*=surtitre]").Length() > 0 {
		c.Signals["kicker"] = 1
	}

	class, _ := node.Attr("class")
	probe := strings.ToLower(c.URL + " " + class)
	for signal, markers := range mediaMarkers {
		for _, m := range markers {
			if strings.Contains(probe, m) {
				c.Signals[signal] = 1
				break
			}
		}
	}
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
