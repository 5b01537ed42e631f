// CLAUDE:SUMMARY Page-driver contract consumed by the board: navigate, evaluate, waitFor, screenshot, HTML, overlay cleanup.
// Package browse owns the browser side of an observation run: one Chrome
// process, one page at a time, stealth levels, per-operation timeouts,
// deterministic shutdown on every exit path.
package browse

import (
	"context"
	"errors"
	"time"
)

// ErrNavigateTimeout marks a navigation that exceeded its per-operation
// timeout. Recoverable: the source is recorded as failed, the run
// continues.
var ErrNavigateTimeout = errors.New("browse: navigation timeout")

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("browse: manager is closed")

// Pager is the driver contract consumed by the orchestrator. One page at
// a time; a timed-out sub-step degrades to best-effort-skipped rather
// than aborting the source.
type Pager interface {
	// Navigate loads url, waiting up to timeout. Timeout surfaces as
	// ErrNavigateTimeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Evaluate runs a pure extraction function against the current DOM and
	// decodes the structured result into out.
	Evaluate(ctx context.Context, js string, out any) error
	// WaitFor polls a JS predicate until it returns true or timeout elapses.
	WaitFor(ctx context.Context, js string, timeout time.Duration) error
	// HTML returns the serialized document for the selector strategies.
	HTML(ctx context.Context) (string, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// DismissOverlays runs the best-effort overlay cleanup. Never fails.
	DismissOverlays(ctx context.Context)
	// Close releases the page.
	Close() error
}

// StealthLevel controls how hard the browser pretends to be a human.
type StealthLevel int

const (
	StealthOff      StealthLevel = 0 // plain headless page
	StealthPage     StealthLevel = 1 // stealth-patched page
	StealthFullMask StealthLevel = 2 // stealth page + UA override
)
