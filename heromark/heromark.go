// CLAUDE:SUMMARY Stable story fingerprinting plus title/URL normalization shared by every HeroItem producer.
// Package heromark derives stable content keys for stories so the same
// story can be matched across observation runs. A fingerprint depends only
// on the normalized (title, url) pair, never on rank or timestamp.
package heromark

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Hero is a selected lead story, normalized and fingerprinted.
// Immutable once created; owned by a single run.
type Hero struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// NewHero normalizes the raw extraction output into a Hero.
func NewHero(title, rawURL, imageURL string) *Hero {
	t := CollapseTitle(title)
	u := CanonicalURL(rawURL)
	return &Hero{
		Title:       t,
		URL:         u,
		ImageURL:    strings.TrimSpace(imageURL),
		Fingerprint: Fingerprint(t, u),
	}
}

// Fingerprint returns a deterministic content key for a (title, url) pair.
// Both inputs are normalized first, so callers may pass raw extraction
// output. Equal output means "same story".
func Fingerprint(title, rawURL string) string {
	h := sha256.New()
	h.Write([]byte(CollapseTitle(title)))
	h.Write([]byte{0})
	h.Write([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// CollapseTitle trims the title and collapses internal whitespace runs
// (including newlines from multi-line headline markup) to single spaces.
func CollapseTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// trackingParams are query parameters stripped during URL canonicalization.
// Click-tracking noise changes between page renders of the same story.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"igshid": true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
	"cmpid":  true,
	"smid":   true,
	"ito":    true,
	"xtor":   true,
}

// CanonicalURL canonicalizes a story URL for fingerprinting and dedup:
// lowercase scheme and host, fragment dropped, tracking parameters
// (utm_*, fbclid, gclid, ...) stripped, remaining query params sorted,
// trailing slash removed on non-root paths. Normalization never fails;
// an unparseable URL is returned trimmed but otherwise untouched.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		q := parsed.Query()
		for key := range q {
			if trackingParams[key] || strings.HasPrefix(key, "utm_") {
				q.Del(key)
			}
		}
		parsed.RawQuery = sortedEncode(q)
	}

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

// sortedEncode encodes query values with keys in sorted order.
// url.Values.Encode already sorts keys; kept separate so the contract is
// explicit and testable.
func sortedEncode(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
