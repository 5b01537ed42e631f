// CLAUDE:SUMMARY Main Service orchestrator: per-source sweep, journal writes, artifact publication, scheduler wiring.
package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/kiosque/board/internal/journal"
	"github.com/hazyhaar/kiosque/board/internal/publish"
	"github.com/hazyhaar/kiosque/board/internal/scheduler"
	"github.com/hazyhaar/kiosque/browse"
	"github.com/hazyhaar/kiosque/dbopen"
	"github.com/hazyhaar/kiosque/depot"
	"github.com/hazyhaar/kiosque/harvest"
	"github.com/hazyhaar/kiosque/heromark"
	"github.com/hazyhaar/kiosque/idgen"
	"github.com/hazyhaar/kiosque/rankdiff"
	"github.com/hazyhaar/kiosque/relay"
	"github.com/hazyhaar/kiosque/residency"
)

// eventWindow bounds the change events included in the per-source artifact.
const eventWindow = 7 * 24 * time.Hour

// topN is the ranked-list depth observed for top10 sources.
const topN = 10

// Service observes front pages on a schedule and journals what it sees.
type Service struct {
	config  *Config
	logger  *slog.Logger
	manager *browse.Manager
	pager   browse.Pager // test override; nil means manager pages
	journal *journal.Store
	db      *sql.DB // owned unless injected
	ownsDB  bool
	writer  *publish.Writer
	snipper *publish.Snipper
	objects depot.ObjectStore
	rows    depot.RowStore
	batch   *relay.Batch
	sched   *scheduler.Scheduler
	clock   func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	newID   idgen.Generator
	running atomic.Bool
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

// WithPager replaces browser pages with a fixed driver. Use in tests with a
// fake that serves fixture HTML.
func WithPager(p browse.Pager) ServiceOption {
	return func(svc *Service) { svc.pager = p }
}

// WithObjectStore overrides the publish object store.
func WithObjectStore(s depot.ObjectStore) ServiceOption {
	return func(svc *Service) { svc.objects = s }
}

// WithRowStore overrides the publish row store.
func WithRowStore(s depot.RowStore) ServiceOption {
	return func(svc *Service) { svc.rows = s }
}

// WithClock overrides the time source for observedAt stamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.clock = now }
}

// WithIDs overrides the run/snapshot/event ID generator.
func WithIDs(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// WithJournalDB uses an already-opened journal database instead of opening
// one under the data dir. The caller keeps ownership.
func WithJournalDB(db *sql.DB) ServiceOption {
	return func(svc *Service) { svc.db = db; svc.ownsDB = false }
}

// New creates a board Service. The journal database and publish stores are
// opened per the config unless overridden by options.
func New(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	svc := &Service{
		config:  cfg,
		logger:  slog.Default(),
		writer:  publish.NewWriter(cfg.DataDir + "/artifacts"),
		snipper: publish.NewSnipper(),
		clock:   time.Now,
		sleep:   sleepCtx,
		newID:   idgen.Default,
		ownsDB:  true,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.db == nil {
		db, err := dbopen.Open(cfg.DataDir+"/kiosque.db",
			dbopen.WithMkdirAll(), dbopen.WithSchema(journal.Schema))
		if err != nil {
			return nil, fmt.Errorf("board: open journal: %w", err)
		}
		svc.db = db
	} else if err := journal.ApplySchema(svc.db); err != nil {
		return nil, fmt.Errorf("board: apply schema: %w", err)
	}
	svc.journal = journal.NewStore(svc.db)

	if svc.objects == nil || svc.rows == nil {
		objects, rows, err := svc.openStores()
		if err != nil {
			svc.closeDB()
			return nil, err
		}
		if svc.objects == nil {
			svc.objects = objects
		}
		if svc.rows == nil {
			svc.rows = rows
		}
	}

	svc.batch = &relay.Batch{
		Runner: &relay.Runner{Logger: svc.logger},
		Logger: svc.logger,
	}
	if svc.pager == nil {
		bcfg := cfg.browserConfig()
		bcfg.Logger = svc.logger
		svc.manager = browse.NewManager(bcfg)
	}
	svc.sched = scheduler.New(svc.RunOnce, svc.pruneOnce, scheduler.Config{
		Interval: cfg.Interval,
	}, svc.logger)

	return svc, nil
}

// openStores builds the publish stores per the config. Local mode shares
// the journal database for rows and keeps objects under the data dir, so
// both modes run the same publish pipeline.
func (svc *Service) openStores() (depot.ObjectStore, depot.RowStore, error) {
	if svc.config.Store.Mode == "remote" {
		r := depot.NewRemote(svc.config.Store.Remote.BaseURL, svc.config.Store.Remote.Token, 0)
		return r, r, nil
	}
	rows, err := depot.NewLocalRows(svc.db)
	if err != nil {
		return nil, nil, fmt.Errorf("board: open local rows: %w", err)
	}
	return depot.NewLocalObjects(svc.config.DataDir + "/store"), rows, nil
}

// Run starts the scheduler loop: one sweep immediately, then one per
// interval, with a daily retention prune. Blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) {
	svc.sched.Run(ctx)
}

// Close releases the browser and the journal database.
func (svc *Service) Close() error {
	if svc.manager != nil {
		svc.manager.Close()
	}
	svc.closeDB()
	svc.logger.Info("board: closed")
	return nil
}

func (svc *Service) closeDB() {
	if svc.ownsDB && svc.db != nil {
		svc.db.Close()
	}
}

// Sources returns the configured sources.
func (svc *Service) Sources() []SourceConfig {
	return svc.config.Sources
}

// Journal exposes the observation log for the API and MCP queries.
func (svc *Service) Journal() *journal.Store {
	return svc.journal
}

// RunOnce performs one full sweep across all sources, strictly sequential.
// Returns ErrBusy if a sweep is already in flight. Per-source failures are
// recorded and never abort the others; only filesystem-fatal errors abort
// the run, after degraded artifacts are written.
func (svc *Service) RunOnce(ctx context.Context) error {
	if !svc.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer svc.running.Store(false)

	var fatal error
	for i := range svc.config.Sources {
		if ctx.Err() != nil {
			break
		}
		src := &svc.config.Sources[i]
		if err := svc.sweepSource(ctx, src); err != nil {
			fatal = err
			svc.logger.Error("board: sweep aborted", "source", src.ID, "error", err)
			break
		}
	}

	if err := svc.writeDigest(ctx); err != nil {
		svc.logger.Warn("board: digest", "error", err)
	}
	return fatal
}

// pruneOnce applies the retention policy.
func (svc *Service) pruneOnce(ctx context.Context) error {
	cutoff := svc.clock().Add(-time.Duration(svc.config.RetentionDays) * 24 * time.Hour).UnixMilli()
	return svc.journal.PruneBefore(ctx, cutoff)
}

// observation is everything one page visit yielded before interpretation.
type observation struct {
	html     string
	shot     []byte
	fetchErr string
}

// sweepSource observes one source end to end. The returned error is only
// non-nil for filesystem-fatal conditions; everything else is recorded on
// the run and in the degraded artifact.
func (svc *Service) sweepSource(ctx context.Context, src *SourceConfig) error {
	runID := idgen.Prefixed("run_", svc.newID)()
	observedAt := svc.clock().UnixMilli()
	logger := svc.logger.With("source", src.ID, "run", runID)

	obs := svc.observe(ctx, src, logger)

	run := &journal.Run{
		ID:         runID,
		SourceID:   src.ID,
		ObservedAt: observedAt,
		Error:      obs.fetchErr,
	}

	if run.Error == "" {
		if marker := harvest.BlockedMarker(obs.html); marker != "" {
			run.Error = fmt.Errorf("%w: %s", ErrBlocked, marker).Error()
			logger.Warn("board: blocked", "marker", marker)
		}
	}

	var cands []*harvest.Candidate
	if run.Error == "" {
		var strategy string
		cands, strategy = svc.extract(ctx, src, obs.html, logger)
		logger.Debug("board: extracted", "strategy", strategy, "candidates", len(cands))
	}

	filter, _ := src.filter()
	var snap *rankdiff.Snapshot
	var events []rankdiff.Event
	var hero *heromark.Hero
	var entries []residency.Entry

	switch src.Kind {
	case "top10":
		snap, events = svc.observeTop10(ctx, src, run, cands, filter, logger)
	default:
		hero, entries = svc.observeHero(ctx, src, run, cands, filter, logger)
	}

	if obs.shot != nil {
		run.Screenshot = depot.ObjectPath("screenshots", src.ID, time.UnixMilli(observedAt), runID, "png")
	}

	if err := svc.journal.InsertRun(ctx, run); err != nil {
		return err
	}

	if err := svc.writeArtifacts(ctx, src, run, hero, entries, snap, logger); err != nil {
		return err
	}

	summary := svc.publishBatch(ctx, src, run, events, snap, obs.shot)
	if !summary.OK() {
		note, _ := json.Marshal(map[string]any{
			"completed": summary.Completed,
			"failed":    summary.FailedLabels(),
			"skipped":   summary.Skipped,
			"tripped":   summary.Tripped,
		})
		if err := svc.journal.SetRunPublishNote(ctx, runID, string(note)); err != nil {
			logger.Warn("board: publish note", "error", err)
		}
		logger.Warn("board: publish incomplete",
			"failed", len(summary.Failed), "skipped", len(summary.Skipped), "tripped", summary.Tripped)
	}

	logger.Info("board: swept", "ok", run.OK, "error", run.Error)
	return nil
}

// observe drives the page: navigate, dismiss overlays, settle, capture.
// Every sub-step failure degrades; the page is always closed.
func (svc *Service) observe(ctx context.Context, src *SourceConfig, logger *slog.Logger) observation {
	page, err := svc.page(ctx)
	if err != nil {
		return observation{fetchErr: "browser: " + err.Error()}
	}
	defer page.Close()

	if err := page.Navigate(ctx, src.URL, svc.config.navTimeout()); err != nil {
		if errors.Is(err, browse.ErrNavigateTimeout) {
			return observation{fetchErr: "navigation timeout"}
		}
		return observation{fetchErr: "navigate: " + err.Error()}
	}

	page.DismissOverlays(ctx)
	if err := svc.sleep(ctx, svc.config.SettleDelay); err != nil {
		return observation{fetchErr: "cancelled during settle"}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return observation{fetchErr: "capture: " + err.Error()}
	}

	var shot []byte
	if src.Screenshot {
		shot, err = page.Screenshot(ctx)
		if err != nil {
			logger.Warn("board: screenshot", "error", err)
			shot = nil
		}
	}
	return observation{html: html, shot: shot}
}

// page returns the driver page for this sweep: the injected pager or a
// fresh managed browser page.
func (svc *Service) page(ctx context.Context) (browse.Pager, error) {
	if svc.pager != nil {
		return svc.pager, nil
	}
	return svc.manager.NewPage(ctx)
}

// extract runs the strategy chain: CSS selector groups first, feed
// fallback when the page yields nothing and a feed is configured.
func (svc *Service) extract(ctx context.Context, src *SourceConfig, html string, logger *slog.Logger) ([]*harvest.Candidate, string) {
	cands, strategy, err := harvest.Extract(html, src.URL, src.Selectors)
	if err != nil {
		logger.Warn("board: extract", "error", err)
	}
	if len(cands) > 0 {
		return cands, strategy
	}
	if src.FeedURL != "" {
		feedCands, err := harvest.ExtractFeed(ctx, src.FeedURL)
		if err != nil {
			logger.Warn("board: feed fallback", "error", err)
			return nil, ""
		}
		return feedCands, "feed"
	}
	return nil, ""
}

// observeHero interprets the candidates for a hero source and advances the
// residency timeline. A pick failure is a normal recorded outcome.
func (svc *Service) observeHero(ctx context.Context, src *SourceConfig, run *journal.Run, cands []*harvest.Candidate, filter harvest.Filter, logger *slog.Logger) (*heromark.Hero, []residency.Entry) {
	var hero *heromark.Hero
	if run.Error == "" {
		sel := harvest.Pick(cands, src.Rules, filter)
		if sel.OK {
			hero = heromark.NewHero(sel.Candidate.Title, sel.Candidate.URL, sel.Candidate.ImageURL)
			run.OK = true
			run.Title = hero.Title
			run.URL = hero.URL
			run.ImageURL = hero.ImageURL
			run.Fingerprint = hero.Fingerprint
			run.Score = sel.Score
			run.SnippetMD = svc.snipper.Snippet(sel.Candidate.HTML, src.URL)
		} else {
			run.Error = sel.Reason
		}
	}

	entries, err := svc.journal.LoadResidency(ctx, src.ID)
	if err != nil {
		logger.Warn("board: load residency", "error", err)
		return hero, nil
	}
	// A nil hero is a no-op upsert: failures never distort the timeline.
	entries, _ = residency.Upsert(entries, run.ObservedAt, hero)
	if err := svc.journal.SaveResidency(ctx, src.ID, entries, svc.newID); err != nil {
		logger.Warn("board: save residency", "error", err)
	}
	return hero, entries
}

// observeTop10 interprets the candidates for a ranked-list source: builds
// the snapshot, diffs against the previous one, persists both.
func (svc *Service) observeTop10(ctx context.Context, src *SourceConfig, run *journal.Run, cands []*harvest.Candidate, filter harvest.Filter, logger *slog.Logger) (*rankdiff.Snapshot, []rankdiff.Event) {
	snap := &rankdiff.Snapshot{
		ID:         idgen.Prefixed("snap_", svc.newID)(),
		SourceID:   src.ID,
		ObservedAt: run.ObservedAt,
	}

	if run.Error == "" {
		ranked := harvest.PickTop(cands, src.Rules, filter, topN)
		if len(ranked) == 0 {
			run.Error = "no ranked candidates"
		} else {
			snap.OK = true
			run.OK = true
			for _, r := range ranked {
				snap.Items = append(snap.Items, rankdiff.Item{
					Rank:        r.Rank,
					Title:       heromark.CollapseTitle(r.Candidate.Title),
					URL:         r.Candidate.URL,
					Fingerprint: heromark.Fingerprint(r.Candidate.Title, r.Candidate.URL),
				})
			}
			top := ranked[0]
			run.Title = top.Candidate.Title
			run.URL = top.Candidate.URL
			run.Fingerprint = snap.Items[0].Fingerprint
			run.Score = top.Score
		}
	}
	if !snap.OK {
		snap.Error = run.Error
		// A failed observation is journaled but produces no diff; the next
		// good snapshot diffs against the last good one.
		if err := svc.journal.InsertSnapshot(ctx, snap); err != nil {
			logger.Warn("board: insert snapshot", "error", err)
		}
		return snap, nil
	}

	prev, err := svc.journal.LatestSnapshot(ctx, src.ID)
	if err != nil && !errors.Is(err, journal.ErrNotFound) {
		logger.Warn("board: latest snapshot", "error", err)
	}
	if prev != nil && !prev.OK {
		prev = nil // diff only against good observations
	}

	events := rankdiff.Diff(prev, *snap)
	if err := svc.journal.InsertSnapshot(ctx, snap); err != nil {
		logger.Warn("board: insert snapshot", "error", err)
		return snap, events
	}
	urls := snapshotURLs(prev, snap)
	if err := svc.journal.InsertEvents(ctx, src.ID, snap.ID, run.ObservedAt, events, urls, svc.newID); err != nil {
		logger.Warn("board: insert events", "error", err)
	}
	return snap, events
}

func snapshotURLs(prev, cur *rankdiff.Snapshot) map[string]string {
	urls := map[string]string{}
	if prev != nil {
		for _, it := range prev.Items {
			urls[it.Fingerprint] = it.URL
		}
	}
	for _, it := range cur.Items {
		urls[it.Fingerprint] = it.URL
	}
	return urls
}

// writeArtifacts writes the local JSON artifacts for a source, degraded or
// not. Failures here are filesystem-fatal.
func (svc *Service) writeArtifacts(ctx context.Context, src *SourceConfig, run *journal.Run, hero *heromark.Hero, entries []residency.Entry, snap *rankdiff.Snapshot, logger *slog.Logger) error {
	state := publish.CurrentState{
		OK:        run.OK,
		UpdatedAt: run.ObservedAt,
		Error:     run.Error,
		Item:      hero,
	}
	if hero != nil {
		if since, ok := residency.SinceFor(entries, hero.URL); ok {
			state.Since = since
		}
	}
	if err := svc.writer.WriteCurrent(src.ID, state); err != nil {
		return err
	}

	if src.Kind == "hero" {
		if err := svc.writer.WriteHistory(src.ID, run.ObservedAt, entries); err != nil {
			return err
		}
	}

	events, err := svc.journal.EventsSince(ctx, src.ID, run.ObservedAt-eventWindow.Milliseconds())
	if err != nil {
		// The events artifact stays stale; the next good run rewrites it.
		logger.Warn("board: events artifact", "error", err)
	} else if err := svc.writer.WriteEvents(src.ID, run.ObservedAt, events); err != nil {
		return err
	}

	if snap != nil && snap.OK {
		if err := svc.writer.WriteTop10(src.ID, snap, run.ID); err != nil {
			return err
		}
	}
	return nil
}

// publishBatch drives the store writes through the resilient pipeline.
// The batch never fails as a whole; the summary records partial outcomes.
func (svc *Service) publishBatch(ctx context.Context, src *SourceConfig, run *journal.Run, events []rankdiff.Event, snap *rankdiff.Snapshot, shot []byte) relay.Summary {
	at := time.UnixMilli(run.ObservedAt)
	prefix := svc.config.Store.Remote.Prefix
	units := []relay.Unit{
		{Label: "row:run", Fn: func(ctx context.Context) error {
			_, err := svc.rows.Insert(ctx, "runs", runRow(run))
			return err
		}},
	}
	for i := range events {
		ev := events[i]
		units = append(units, relay.Unit{
			Label: fmt.Sprintf("row:event:%d", i+1),
			Fn: func(ctx context.Context) error {
				_, err := svc.rows.Insert(ctx, "events", eventRow(&ev))
				return err
			},
		})
	}
	if snap != nil && snap.OK {
		units = append(units, relay.Unit{Label: "object:snapshot", Fn: func(ctx context.Context) error {
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			path := depot.ObjectPath(join(prefix, "snapshots"), src.ID, at, run.ID, "json")
			return svc.objects.Upload(ctx, path, data, "application/json")
		}})
	}
	if shot != nil {
		units = append(units, relay.Unit{Label: "object:screenshot", Fn: func(ctx context.Context) error {
			return svc.objects.Upload(ctx, join(prefix, run.Screenshot), shot, "image/png")
		}})
	}
	units = append(units, relay.Unit{Label: "object:current", Fn: func(ctx context.Context) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return svc.objects.Upload(ctx, join(prefix, publish.CurrentPath(src.ID)), data, "application/json")
	}})

	return svc.batch.Run(ctx, units)
}

func join(prefix, path string) string {
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}

func runRow(r *journal.Run) map[string]any {
	return map[string]any{
		"run_id":      r.ID,
		"source_id":   r.SourceID,
		"observed_at": r.ObservedAt,
		"ok":          r.OK,
		"error":       r.Error,
		"title":       r.Title,
		"url":         r.URL,
		"fingerprint": r.Fingerprint,
		"score":       r.Score,
	}
}

func eventRow(ev *rankdiff.Event) map[string]any {
	return map[string]any{
		"source_id":   ev.SourceID,
		"observed_at": ev.ObservedAt,
		"event_type":  string(ev.Type),
		"fingerprint": ev.Fingerprint,
		"from_rank":   ev.FromRank,
		"to_rank":     ev.ToRank,
		"from_title":  ev.FromTitle,
		"to_title":    ev.ToTitle,
	}
}

// writeDigest renders today's digest from the journal.
func (svc *Service) writeDigest(ctx context.Context) error {
	now := svc.clock().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()

	var sections []publish.DigestSource
	for _, src := range svc.config.Sources {
		section := publish.DigestSource{SourceID: src.ID, Name: src.Name}

		entries, err := svc.journal.LoadResidency(ctx, src.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.LastSeenAt >= dayStart {
				section.Spans = append(section.Spans, e)
			}
		}

		events, err := svc.journal.EventsSince(ctx, src.ID, dayStart)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			section.EventCounts = map[string]int{}
			for _, ev := range events {
				section.EventCounts[ev.Type]++
				if ev.Type == string(rankdiff.EventMoved) && ev.ToRank < ev.FromRank {
					section.TopMovers = append(section.TopMovers,
						fmt.Sprintf("%s: %d -> %d", ev.Title, ev.FromRank, ev.ToRank))
				}
			}
		}
		sections = append(sections, section)
	}
	return svc.writer.WriteDigest(now, sections)
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
