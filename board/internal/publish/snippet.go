package publish

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

const maxSnippet = 2000

// Snipper turns a captured hero block's HTML into a short markdown snippet:
// sanitize first, then convert. Conversion failures degrade to an empty
// snippet, never an error.
type Snipper struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewSnipper creates a Snipper with a UGC sanitization policy.
func NewSnipper() *Snipper {
	return &Snipper{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Snippet converts hero HTML to markdown. pageURL resolves relative links.
func (s *Snipper) Snippet(html, pageURL string) string {
	clean := s.policy.Sanitize(html)
	md, err := s.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	if len(md) > maxSnippet {
		md = md[:maxSnippet]
	}
	return md
}
