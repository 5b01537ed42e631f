// CLAUDE:SUMMARY Compact failure diagnostics: HTML error bodies collapsed to text, structured store errors preserved, bounded length.
package relay

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxDiagnostic bounds the diagnostic text carried on a UnitError.
// Reverse proxies love returning whole HTML error pages.
const maxDiagnostic = 300

var stripTags = bluemonday.StrictPolicy()

// Fielder is implemented by structured store errors whose code/details/hint
// fields should survive into the diagnostic.
type Fielder interface {
	ErrorFields() (code, details, hint string)
}

// Diagnose renders an error into a compact single-line diagnostic.
// Structured fields (status, code, details, hint) are preserved when the
// error exposes them; HTML bodies are collapsed to plain text; the result
// is truncated to a bounded length.
func Diagnose(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	var parts []string
	if status := statusOf(err); status != 0 {
		parts = append(parts, fmt.Sprintf("status %d", status))
	}
	for e := err; e != nil; e = unwrap(e) {
		if f, ok := e.(Fielder); ok {
			code, details, hint := f.ErrorFields()
			if code != "" {
				parts = append(parts, "code="+code)
			}
			if details != "" {
				parts = append(parts, "details="+details)
			}
			if hint != "" {
				parts = append(parts, "hint="+hint)
			}
			break
		}
	}

	if looksLikeHTML(msg) {
		msg = stripTags.Sanitize(msg)
	}
	msg = strings.Join(strings.Fields(msg), " ")

	if len(parts) > 0 {
		msg = strings.Join(parts, " ") + ": " + msg
	}
	return truncate(msg, maxDiagnostic)
}

func looksLikeHTML(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "<html") ||
		strings.Contains(ls, "<!doctype") ||
		strings.Contains(ls, "<body") ||
		strings.Contains(ls, "</p>") ||
		strings.Contains(ls, "</div>")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
