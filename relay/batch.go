// CLAUDE:SUMMARY Batch-level circuit breaker: skips remaining write units after repeated outage-like failures.
package relay

import (
	"context"
	"errors"
	"log/slog"
)

// Unit is one independent write against the external store.
type Unit struct {
	Label string
	Fn    func(context.Context) error
}

// Summary is the outcome of a batch. A batch never fails as a whole:
// the caller reads the summary and persists whatever local state it can.
type Summary struct {
	Completed []string         `json:"completed,omitempty"`
	Failed    map[string]error `json:"-"`
	Skipped   []string         `json:"skipped,omitempty"`
	Tripped   bool             `json:"tripped,omitempty"`
}

// OK reports whether every unit completed.
func (s Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Skipped) == 0
}

// FailedLabels renders the failure map as label → diagnostic for logs and
// the run record.
func (s Summary) FailedLabels() map[string]string {
	if len(s.Failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Failed))
	for label, err := range s.Failed {
		out[label] = err.Error()
	}
	return out
}

// Batch executes a sequence of independent write units through a Runner,
// tracking outage-like failures. Once the threshold is reached the
// remaining units are skipped without being attempted; there is no point
// hammering a store that is down.
type Batch struct {
	Runner *Runner
	// OutageThreshold is the number of outage-like unit failures that
	// trips the breaker for the rest of the batch. Default: 2.
	OutageThreshold int
	Logger          *slog.Logger
}

// Run executes the units in order and returns the batch summary. It never
// returns an error itself; per-unit failures live in the summary.
func (b *Batch) Run(ctx context.Context, units []Unit) Summary {
	runner := b.Runner
	if runner == nil {
		runner = &Runner{}
	}
	threshold := b.OutageThreshold
	if threshold <= 0 {
		threshold = 2
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sum := Summary{Failed: map[string]error{}}
	outages := 0

	for _, u := range units {
		if sum.Tripped {
			sum.Skipped = append(sum.Skipped, u.Label)
			continue
		}

		err := runner.Do(ctx, u.Label, u.Fn)
		if err == nil {
			sum.Completed = append(sum.Completed, u.Label)
			continue
		}
		sum.Failed[u.Label] = err

		var ue *UnitError
		if errors.As(err, &ue) && isOutageLike(ue) {
			outages++
			if outages >= threshold {
				sum.Tripped = true
				logger.WarnContext(ctx, "relay: batch breaker tripped",
					"outages", outages, "threshold", threshold, "last_unit", u.Label)
			}
		}
	}

	return sum
}
