// CLAUDE:SUMMARY Rod page adapter: navigation with timeout, JS evaluation, predicate wait, screenshot, overlay-cleanup hooks.
package browse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/kiosque/browse/internal/overlay"
)

// Page adapts one rod page to the Pager contract.
type Page struct {
	page   *rod.Page
	logger *slog.Logger
}

// Navigate loads url and waits for the load event, bounded by timeout.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrNavigateTimeout, url)
		}
		return fmt.Errorf("browse: navigate %s: %w", url, err)
	}
	// A slow load event is not fatal: the DOM is usually usable.
	if err := p.page.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("browse: wait load", "url", url, "error", err)
	}
	return nil
}

// Evaluate runs js (an arrow function) and decodes the result into out.
func (p *Page) Evaluate(ctx context.Context, js string, out any) error {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return fmt.Errorf("browse: eval: %w", err)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(res.Value)
	if err != nil {
		return fmt.Errorf("browse: eval result: %w", err)
	}
	return json.Unmarshal(data, out)
}

// WaitFor polls the js predicate every 200ms until it is true or timeout
// elapses.
func (p *Page) WaitFor(ctx context.Context, js string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		var ok bool
		if err := p.Evaluate(waitCtx, js, &ok); err == nil && ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("browse: waitFor: %w", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// HTML serializes the current document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.Evaluate(ctx, `() => document.documentElement.outerHTML`, &html); err != nil {
		return "", err
	}
	return html, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browse: screenshot: %w", err)
	}
	return data, nil
}

// DismissOverlays runs the overlay heuristic and logs its report.
func (p *Page) DismissOverlays(ctx context.Context) {
	report := overlay.Dismiss(ctx, (*overlayPage)(p))
	p.logger.Debug("browse: overlay dismissal", "applied", report.Applied(), "steps", report.Steps)
}

// Close releases the page.
func (p *Page) Close() error {
	if p.page == nil {
		return nil
	}
	return p.page.Close()
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// overlayPage implements overlay.Page on top of a rod page. Every method
// applies its own short timeout so one stuck evaluation cannot stall the
// sweep that follows it.
type overlayPage Page

const overlayOpTimeout = 3 * time.Second

func (o *overlayPage) rod(ctx context.Context) (*rod.Page, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, overlayOpTimeout)
	return o.page.Context(opCtx), cancel
}

func (o *overlayPage) PressEscape(ctx context.Context) error {
	page, cancel := o.rod(ctx)
	defer cancel()
	return page.Keyboard.Press(input.Escape)
}

// clickByTextJS clicks the first visible control per phrase whose
// accessible name (aria-label or trimmed text) matches, in phrase order.
const clickByTextJS = `(phrases) => {
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	const name = (el) => ((el.getAttribute('aria-label') || el.innerText || '').trim().toLowerCase());
	const controls = Array.from(document.querySelectorAll('button, [role=button], a, input[type=button], input[type=submit]'));
	let clicked = 0;
	for (const phrase of phrases) {
		for (const el of controls) {
			if (!visible(el)) continue;
			const n = name(el);
			if (n === phrase || (n.length < 80 && n.includes(phrase))) {
				el.click();
				clicked++;
				break;
			}
		}
	}
	return clicked;
}`

func (o *overlayPage) ClickByText(ctx context.Context, phrases []string) (int, error) {
	page, cancel := o.rod(ctx)
	defer cancel()
	res, err := page.Eval(clickByTextJS, phrases)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

const clickBySelectorJS = `(selectors) => {
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	let clicked = 0;
	for (const sel of selectors) {
		let matches;
		try { matches = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of matches) {
			if (visible(el)) { el.click(); clicked++; }
		}
	}
	return clicked;
}`

func (o *overlayPage) ClickBySelector(ctx context.Context, selectors []string) (int, error) {
	page, cancel := o.rod(ctx)
	defer cancel()
	res, err := page.Eval(clickBySelectorJS, selectors)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (o *overlayPage) ConsentFrames(ctx context.Context, patterns []string) ([]overlay.Page, error) {
	page, cancel := o.rod(ctx)
	defer cancel()

	elements, err := page.Elements("iframe")
	if err != nil {
		return nil, err
	}

	var frames []overlay.Page
	for _, el := range elements {
		src, err := el.Attribute("src")
		if err != nil || src == nil {
			continue
		}
		lsrc := strings.ToLower(*src)
		matched := false
		for _, pat := range patterns {
			if strings.Contains(lsrc, pat) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		// Cross-origin frames fail here; that is expected and skipped.
		framePage, err := el.Frame()
		if err != nil {
			continue
		}
		frames = append(frames, (*overlayPage)(&Page{page: framePage, logger: o.logger}))
	}
	return frames, nil
}

// sweepOverlaysJS removes fixed/sticky, high-z elements covering most of
// the viewport when they carry overlay-ish role/class/id/text signals.
const sweepOverlaysJS = `() => {
	const vw = window.innerWidth, vh = window.innerHeight;
	const signals = ['dialog', 'consent', 'cookie', 'gdpr', 'paywall', 'overlay', 'subscribe', 'newsletter', 'modal'];
	let removed = 0;
	for (const el of Array.from(document.querySelectorAll('body *'))) {
		const s = getComputedStyle(el);
		if (s.position !== 'fixed' && s.position !== 'sticky') continue;
		const z = parseInt(s.zIndex, 10);
		if (isNaN(z) || z < 1000) continue;
		const r = el.getBoundingClientRect();
		if (r.width * r.height < vw * vh * 0.55) continue;
		const probe = ((el.getAttribute('role') || '') + ' ' + el.className + ' ' + el.id + ' ' + (el.innerText || '').slice(0, 200)).toLowerCase();
		if (!signals.some(sig => probe.includes(sig))) continue;
		el.remove();
		removed++;
	}
	if (removed > 0) {
		document.body.style.overflow = '';
		document.documentElement.style.overflow = '';
	}
	return removed;
}`

func (o *overlayPage) SweepOverlays(ctx context.Context) (int, error) {
	page, cancel := o.rod(ctx)
	defer cancel()
	res, err := page.Eval(sweepOverlaysJS)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}
