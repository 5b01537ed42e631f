// CLAUDE:SUMMARY Store-error classifier: maps (status, error text) to transient/permanent and flags outage-like signatures.
package relay

import (
	"strconv"
	"strings"
)

// Class categorizes a write failure for retry purposes.
type Class string

const (
	// ClassTransient failures are worth retrying: rate limits, timeouts,
	// upstream 5xx, dropped connections.
	ClassTransient Class = "transient"
	// ClassPermanent failures surface immediately: auth, validation,
	// malformed requests. Retrying them only burns the budget.
	ClassPermanent Class = "permanent"
)

// transientStatus lists the HTTP-like status codes treated as retryable.
var transientStatus = map[int]bool{
	408: true, 425: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
	520: true, 522: true, 524: true,
}

// transientPatterns are case-insensitive substrings of error text that mark
// a failure as transient even without a usable status code.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"fetch failed",
	"temporarily unavailable",
	"tls handshake",
	"eof",
}

// outagePatterns is the stricter set fed to the batch breaker: signatures
// of broad external-service unavailability rather than one-off errors.
var outagePatterns = []string{
	"status 500", "status 502", "status 503", "status 504",
	"status 520", "status 522", "status 524",
	"timeout", "timed out", "deadline exceeded",
	"connection reset", "connection refused",
	"temporarily unavailable",
}

// StatusCoder is implemented by errors that know their HTTP status.
// depot's API errors implement it.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify determines whether a failure is worth retrying. The status
// argument may be zero; it is then recovered from the error (StatusCoder
// or an embedded "status NNN" in the text) when possible.
func Classify(status int, err error) Class {
	if err == nil {
		return ClassPermanent
	}
	if status == 0 {
		status = statusOf(err)
	}
	if transientStatus[status] {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// statusOf recovers an HTTP status from an error: a StatusCoder anywhere
// in the chain wins, otherwise the first "status NNN" / "http NNN" token
// found in the error text.
func statusOf(err error) int {
	for e := err; e != nil; e = unwrap(e) {
		if sc, ok := e.(StatusCoder); ok {
			return sc.HTTPStatus()
		}
	}
	return extractStatusCode(err.Error())
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// extractStatusCode pulls an HTTP status code out of an error message.
// Returns 0 if none found. Handles "http 503", "http: 404", "status 429".
func extractStatusCode(errMsg string) int {
	msg := strings.ToLower(errMsg)
	for _, prefix := range []string{"status ", "status: ", "http ", "http: "} {
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			continue
		}
		numStr := strings.TrimSpace(msg[idx+len(prefix):])
		if sp := strings.IndexByte(numStr, ' '); sp > 0 {
			numStr = numStr[:sp]
		}
		numStr = strings.TrimRight(numStr, ".,:;)")
		if code, err := strconv.Atoi(numStr); err == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

// isOutageLike reports whether a final unit failure should count toward
// the batch breaker threshold: transient class AND an outage signature in
// the diagnostic.
func isOutageLike(ue *UnitError) bool {
	if ue == nil || ue.Class != ClassTransient {
		return false
	}
	probe := strings.ToLower(ue.Diagnostic)
	if ue.Status != 0 {
		probe += " status " + strconv.Itoa(ue.Status)
	}
	for _, p := range outagePatterns {
		if strings.Contains(probe, p) {
			return true
		}
	}
	return false
}
