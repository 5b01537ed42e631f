// CLAUDE:SUMMARY Retry runner: bounded attempts with exponential backoff + jitter for transient store failures.
// Package relay wraps writes to the external store with retry, backoff,
// error classification, and a batch-level circuit breaker. It never hides
// a failure: an exhausted or permanent unit surfaces as a *UnitError
// carrying a compact diagnostic.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// UnitError is the terminal failure of one named write unit.
type UnitError struct {
	Label      string
	Attempts   int
	Class      Class
	Status     int
	Diagnostic string
	Cause      error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("relay: unit %q failed (%s, %d attempts): %s",
		e.Label, e.Class, e.Attempts, e.Diagnostic)
}

func (e *UnitError) Unwrap() error { return e.Cause }

// Runner executes a single named unit of work with retry on transient
// failures. The zero value is usable; defaults fill in on first Do.
type Runner struct {
	// Attempts is the maximum number of tries per unit. Default: 4.
	Attempts int
	// Base is the first backoff delay; doubled each attempt. Default: 500ms.
	Base time.Duration
	// MaxDelay caps a single backoff wait. Default: 30s.
	MaxDelay time.Duration
	// Rand supplies jitter in [0, 1). Default: math/rand/v2. Injectable
	// for deterministic tests.
	Rand func() float64
	// Sleep waits for d or until ctx is cancelled. Injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (r *Runner) defaults() {
	if r.Attempts <= 0 {
		r.Attempts = 4
	}
	if r.Base <= 0 {
		r.Base = 500 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.Rand == nil {
		r.Rand = rand.Float64
	}
	if r.Sleep == nil {
		r.Sleep = sleepCtx
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
}

// Do runs fn up to Attempts times. Transient failures before the last
// attempt wait base*2^(attempt-1) plus uniform jitter in [0, base), then
// retry. A permanent failure, a transient failure on the final attempt,
// or a cancelled context returns a *UnitError.
func (r *Runner) Do(ctx context.Context, label string, fn func(context.Context) error) error {
	r.defaults()

	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class := Classify(0, err)
		if class == ClassPermanent {
			return r.fail(label, attempt, class, err)
		}
		if attempt == r.Attempts {
			break
		}
		if ctx.Err() != nil {
			return r.fail(label, attempt, class, err)
		}

		wait := r.backoff(attempt)
		r.Logger.WarnContext(ctx, "relay: retrying unit",
			"label", label,
			"attempt", attempt,
			"max_attempts", r.Attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
		if serr := r.Sleep(ctx, wait); serr != nil {
			return r.fail(label, attempt, class, err)
		}
	}
	return r.fail(label, r.Attempts, ClassTransient, lastErr)
}

// backoff returns base*2^(attempt-1) + jitter, capped at MaxDelay.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.Base << uint(attempt-1)
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	jitter := time.Duration(r.Rand() * float64(r.Base))
	return d + jitter
}

func (r *Runner) fail(label string, attempts int, class Class, err error) *UnitError {
	return &UnitError{
		Label:      label,
		Attempts:   attempts,
		Class:      class,
		Status:     statusOf(err),
		Diagnostic: Diagnose(err),
		Cause:      err,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
