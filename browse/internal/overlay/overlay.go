// CLAUDE:SUMMARY Overlay dismissal orchestrator: ordered best-effort steps (escape, consent click, close click, CMP frames, DOM sweep), each tri-state.
// Package overlay implements best-effort pre-capture page cleanup: consent
// banners, modals, interstitials. The operation always returns normally:
// every step swallows its own errors and reports a tri-state outcome,
// and is idempotent against already-dismissed overlays.
package overlay

import "context"

// Page is the slice of page-driver behaviour the heuristic needs. The rod
// adapter implements it; tests use fakes.
type Page interface {
	// PressEscape sends a neutral dismiss keystroke.
	PressEscape(ctx context.Context) error
	// ClickByText clicks visible controls whose accessible name matches one
	// of the phrases, in phrase order. Returns how many were clicked.
	ClickByText(ctx context.Context, phrases []string) (int, error)
	// ClickBySelector clicks visible elements matching close-button-like
	// selectors. Returns how many were clicked.
	ClickBySelector(ctx context.Context, selectors []string) (int, error)
	// ConsentFrames returns same-origin-accessible embedded frames whose
	// URL matches known consent-management-platform patterns.
	ConsentFrames(ctx context.Context, patterns []string) ([]Page, error)
	// SweepOverlays removes fixed/sticky, high-z, viewport-covering
	// elements carrying overlay-ish signals. Returns how many were removed.
	SweepOverlays(ctx context.Context) (int, error)
}

// StepResult is the tri-state outcome of one dismissal step.
type StepResult string

const (
	StepApplied       StepResult = "applied"
	StepNotApplicable StepResult = "not_applicable"
	StepFailed        StepResult = "failed" // error swallowed, recorded here
)

// StepOutcome records one step for the run log. Never acted on.
type StepOutcome struct {
	Name   string     `json:"name"`
	Result StepResult `json:"result"`
	Detail string     `json:"detail,omitempty"`
}

// Report is the composed outcome of a dismissal pass.
type Report struct {
	Steps []StepOutcome `json:"steps"`
}

// Applied counts steps that actually changed the page.
func (r Report) Applied() int {
	n := 0
	for _, s := range r.Steps {
		if s.Result == StepApplied {
			n++
		}
	}
	return n
}

// ConsentPhrases is the ordered list of consent-affirmation accessible
// names clicked by the heuristic. Order matters: refuse-free dismissals
// ("continuer sans accepter") are tried after the plain accepts because
// sites hide them behind extra layers.
var ConsentPhrases = []string{
	"tout accepter",
	"accept all",
	"accept all cookies",
	"j'accepte",
	"i agree",
	"agree",
	"accepter & fermer",
	"accepter et fermer",
	"consent",
	"got it",
	"ok, got it",
	"continuer sans accepter",
}

// CloseSelectors match close-button-like controls.
var CloseSelectors = []string{
	"[aria-label*=close i]",
	"[aria-label*=fermer i]",
	".modal-close",
	".popup-close",
	"button.close",
	"[class*=dismiss]",
}

// CMPPatterns match consent-management-platform frame URLs.
var CMPPatterns = []string{
	"sourcepoint",
	"onetrust",
	"didomi",
	"consensu.org",
	"cmp",
	"privacy",
	"quantcast",
}

// Dismiss runs the dismissal sequence against p and returns the report.
// Safe to invoke multiple times; never returns an error.
func Dismiss(ctx context.Context, p Page) Report {
	var r Report

	r.add("escape", run0(ctx, p.PressEscape))
	r.add("consent_click", runN(func() (int, error) { return p.ClickByText(ctx, ConsentPhrases) }))
	r.add("close_click", runN(func() (int, error) { return p.ClickBySelector(ctx, CloseSelectors) }))
	r.add("cmp_frames", dismissFrames(ctx, p))
	r.add("dom_sweep", runN(func() (int, error) { return p.SweepOverlays(ctx) }))

	return r
}

// dismissFrames repeats the click steps inside each CMP frame.
func dismissFrames(ctx context.Context, p Page) StepOutcome {
	frames, err := p.ConsentFrames(ctx, CMPPatterns)
	if err != nil {
		return StepOutcome{Result: StepFailed, Detail: err.Error()}
	}
	if len(frames) == 0 {
		return StepOutcome{Result: StepNotApplicable}
	}

	clicked := 0
	for _, f := range frames {
		if n, err := f.ClickByText(ctx, ConsentPhrases); err == nil {
			clicked += n
		}
		if n, err := f.ClickBySelector(ctx, CloseSelectors); err == nil {
			clicked += n
		}
	}
	if clicked == 0 {
		return StepOutcome{Result: StepNotApplicable}
	}
	return StepOutcome{Result: StepApplied}
}

func (r *Report) add(name string, o StepOutcome) {
	o.Name = name
	r.Steps = append(r.Steps, o)
}

func run0(ctx context.Context, fn func(context.Context) error) StepOutcome {
	if err := fn(ctx); err != nil {
		return StepOutcome{Result: StepFailed, Detail: err.Error()}
	}
	return StepOutcome{Result: StepApplied}
}

func runN(fn func() (int, error)) StepOutcome {
	n, err := fn()
	if err != nil {
		return StepOutcome{Result: StepFailed, Detail: err.Error()}
	}
	if n == 0 {
		return StepOutcome{Result: StepNotApplicable}
	}
	return StepOutcome{Result: StepApplied}
}
