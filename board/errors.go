// CLAUDE:SUMMARY Sentinel errors for the board service: blocked source, invalid config, sweep in progress.
package board

import "errors"

// ErrBlocked is returned when a source serves a CAPTCHA, interstitial, or
// rate-limit page instead of its front page. Not retried within the run.
var ErrBlocked = errors.New("board: source blocked")

// ErrValidation is returned for malformed configuration or input.
var ErrValidation = errors.New("board: invalid input")

// ErrBusy is returned when a sweep is already in progress.
var ErrBusy = errors.New("board: sweep already running")
