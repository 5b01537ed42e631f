// CLAUDE:SUMMARY Chrome lifecycle manager: launch, stealth page creation, count/time-based recycling, deterministic close.
package browse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// Headless controls Chrome's headless flag. Default: true.
	Headless *bool
	// Stealth sets the page creation mode. Default: StealthPage.
	Stealth StealthLevel
	// UserAgent overrides the UA at StealthFullMask. Default: a recent
	// desktop Chrome string.
	UserAgent string
	// WindowWidth/WindowHeight size the viewport. Default: 1440x1024.
	WindowWidth  int
	WindowHeight int
	// Lang is the Accept-Language / navigator language. Default: "fr-FR,fr,en".
	Lang string
	// RecyclePages restarts Chrome after this many pages. Default: 40.
	RecyclePages int
	// RecycleInterval restarts Chrome after this long. Default: 2h.
	RecycleInterval time.Duration
	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1440
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1024
	}
	if c.Lang == "" {
		c.Lang = "fr-FR,fr,en"
	}
	if c.RecyclePages <= 0 {
		c.RecyclePages = 40
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 2 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process and hands out one page at a time.
// Sequential model: callers must Close a page before opening the next.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	browser     *rod.Browser
	lnch        *launcher.Launcher
	startAt     time.Time
	pagesOpened int
	closed      bool
}

// NewManager creates a Manager. Chrome launches lazily on the first page.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// NewPage opens a page with the configured stealth level, recycling
// Chrome first when the page-count or age threshold is reached.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if m.browser != nil && m.dueForRecycleLocked() {
		m.cfg.Logger.Info("browse: recycling chrome",
			"pages", m.pagesOpened, "uptime", time.Since(m.startAt).Round(time.Second))
		m.cleanupLocked()
	}

	if m.browser == nil {
		if err := m.launchLocked(); err != nil {
			return nil, err
		}
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth >= StealthPage {
		page, err = stealth.Page(m.browser)
	} else {
		page, err = m.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browse: create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  m.cfg.WindowWidth,
		Height: m.cfg.WindowHeight,
	}); err != nil {
		m.cfg.Logger.Warn("browse: set viewport", "error", err)
	}

	if m.cfg.Stealth >= StealthFullMask {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent:      m.cfg.UserAgent,
			AcceptLanguage: m.cfg.Lang,
		}).Call(page); err != nil {
			m.cfg.Logger.Warn("browse: ua override", "error", err)
		}
	}

	m.pagesOpened++
	return &Page{page: page, logger: m.cfg.Logger}, nil
}

// Close shuts Chrome down. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanupLocked()
	return nil
}

func (m *Manager) dueForRecycleLocked() bool {
	return m.pagesOpened >= m.cfg.RecyclePages ||
		time.Since(m.startAt) > m.cfg.RecycleInterval
}

func (m *Manager) launchLocked() error {
	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		m.cfg.Logger.Info("browse: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(*m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("lang", m.cfg.Lang).
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browse: launch chrome: %w", err)
		}
		wsURL = u
		m.lnch = l
		m.cfg.Logger.Info("browse: launched chrome", "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return fmt.Errorf("browse: connect: %w", err)
	}

	m.browser = b
	m.startAt = time.Now()
	m.pagesOpened = 0
	return nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
