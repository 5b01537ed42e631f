// CLAUDE:SUMMARY Bot-wall detection: CAPTCHA and interstitial text markers on a rendered page.
package harvest

import "strings"

// blockedMarkers are lowercase substrings whose presence in a rendered
// page means the fetch hit a bot wall instead of the front page.
var blockedMarkers = []string{
	"captcha",
	"are you a robot",
	"are you human",
	"unusual traffic",
	"access denied",
	"just a moment...",
	"pardon our interruption",
	"verify you are a human",
	"please enable javascript and cookies",
}

// BlockedMarker returns the first bot-wall marker found in the page, or
// "" when the page looks like real content. Blocked fetches are recorded
// and not retried within the same run.
func BlockedMarker(pageHTML string) string {
	probe := strings.ToLower(pageHTML)
	for _, m := range blockedMarkers {
		if strings.Contains(probe, m) {
			return m
		}
	}
	return ""
}
