// Package engine runs the scan cycle: collect markets from every source,
// enrich them with intelligence and confidence scores, filter and diversify
// the candidates, suppress repeats, and dispatch the survivors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/intake"
	"github.com/alanyoungcy/marketscout/internal/resilience"
	"github.com/alanyoungcy/marketscout/internal/scoring"
	"github.com/alanyoungcy/marketscout/internal/selection"
)

var (
	// ErrAllSourcesFailed is returned when no source produced a usable result.
	ErrAllSourcesFailed = errors.New("engine: all sources failed")
	// ErrScanLocked is returned when another instance holds the scan lock.
	ErrScanLocked = errors.New("engine: scan running on another instance")
)

const scanLockKey = "scan"

// DefaultSearchLimit caps Search results when no limit is given.
const DefaultSearchLimit = 10

// Notifier delivers alerts to people.
type Notifier interface {
	NotifyMarket(ctx context.Context, m domain.Market) error
	NotifyOperational(ctx context.Context, a OpsAlert) error
}

// ReportSink receives every finished report (archive, live feed).
type ReportSink interface {
	PublishReport(ctx context.Context, r *Report) error
}

// Observer records scan and source outcomes for monitoring.
type Observer interface {
	ObserveSource(r intake.SourceResult)
	ObserveScan(r *Report)
	ObserveAlert(src domain.Source, err error)
}

// Collector is the intake stage.
type Collector interface {
	Collect(ctx context.Context) ([]domain.Market, []intake.SourceResult)
	Status() []intake.SourceStatus
}

// Config holds the decision parameters.
type Config struct {
	Thresholds  selection.Thresholds
	Diversity   selection.DiversityConfig
	SearchLimit int
}

// Engine runs scans. At most one scan is in flight; concurrent triggers wait
// for and share the running scan's report.
type Engine struct {
	intake   Collector
	scorer   *scoring.Scorer
	state    *State
	cfg      Config
	notifier Notifier
	alerts   domain.AlertStore
	sinks    []ReportSink
	observer Observer
	lock     domain.LockManager
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	flight singleflight.Group
}

// Option customises an Engine.
type Option func(*Engine)

// WithNotifier sets the alert notifier. Without one, scans select markets but
// dispatch nothing.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithAlertStore records every dispatched alert.
func WithAlertStore(s domain.AlertStore) Option { return func(e *Engine) { e.alerts = s } }

// WithReportSink adds a sink for finished reports.
func WithReportSink(s ReportSink) Option { return func(e *Engine) { e.sinks = append(e.sinks, s) } }

// WithObserver sets the monitoring observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithScanLock makes scans exclusive across instances sharing lm. ttl bounds
// how long a crashed holder blocks the others.
func WithScanLock(lm domain.LockManager, ttl time.Duration) Option {
	return func(e *Engine) { e.lock, e.lockTTL = lm, ttl }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New creates an Engine.
func New(collector Collector, scorer *scoring.Scorer, state *State, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	e := &Engine{
		intake: collector,
		scorer: scorer,
		state:  state,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the engine's shared state.
func (e *Engine) State() *State { return e.state }

// Sources reports the resilience state of every source.
func (e *Engine) Sources() []intake.SourceStatus { return e.intake.Status() }

// RunCycle runs one scan, or joins the scan already running. The report is
// returned even when the error is ErrAllSourcesFailed, and is nil for
// ErrScanLocked.
func (e *Engine) RunCycle(ctx context.Context, trigger string) (*Report, error) {
	v, err, shared := e.flight.Do("scan", func() (any, error) {
		return e.scan(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		e.logger.DebugContext(ctx, "joined running scan", slog.String("trigger", trigger))
	}
	r, _ := v.(*Report)
	return r, err
}

func (e *Engine) scan(ctx context.Context, trigger string) (*Report, error) {
	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx, scanLockKey, e.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, ErrScanLocked
		}
		if err != nil {
			// Scanning twice is better than not scanning.
			e.logger.WarnContext(ctx, "scan lock unavailable", slog.String("error", err.Error()))
		} else {
			defer unlock()
		}
	}

	start := e.now()
	r := &Report{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
	}
	log := e.logger.With(slog.String("scan_id", r.ID))
	log.InfoContext(ctx, "scan started", slog.String("trigger", trigger))

	e.flushOps(ctx, log)

	markets, results, _ := e.collect(ctx)
	r.Sources = summarize(results)
	r.Status = scanStatus(results)
	for _, res := range results {
		if e.observer != nil {
			e.observer.ObserveSource(res)
		}
		if res.Result.Status == resilience.StatusFailed {
			e.state.Ops.RegisterError(string(res.Source)+"-api", fmt.Errorf("%s fetch failed: %w", res.Source, res.Result.Err))
		}
	}

	if intake.AllFailed(results) {
		r.FinishedAt = e.now()
		e.finish(ctx, log, r)
		return r, ErrAllSourcesFailed
	}

	now := e.now()
	r.Stats.Considered = len(markets)
	eligible, rejected := e.evaluate(markets, now, true)
	r.Stats.Eligible = len(eligible)
	r.Stats.Rejected = rejected
	for i := range eligible {
		eligible[i].Category = selection.Classify(eligible[i].Title)
	}
	r.Categories = selection.CountByCategory(eligible)

	selected := selection.Select(eligible, e.cfg.Diversity)
	r.Stats.Selected = len(selected)

	for _, m := range selected {
		allowed, err := e.state.Gate.Allow(ctx, &m)
		if err != nil {
			log.WarnContext(ctx, "suppression check failed, dispatching anyway", slog.String("error", err.Error()))
			allowed = true
		}
		if !allowed {
			r.Stats.Suppressed++
			continue
		}
		r.Markets = append(r.Markets, m)
		e.dispatch(ctx, log, r, m)
	}

	r.FinishedAt = e.now()
	e.finish(ctx, log, r)
	return r, nil
}

type collected struct {
	markets []domain.Market
	results []intake.SourceResult
}

// collect runs the intake stage once for every concurrent caller, so a search
// issued during a scan shares the scan's fetch. Only the caller's context
// cancellation is returned as an error.
func (e *Engine) collect(ctx context.Context) ([]domain.Market, []intake.SourceResult, error) {
	ch := e.flight.DoChan("collect", func() (any, error) {
		markets, results := e.intake.Collect(context.WithoutCancel(ctx))
		return collected{markets: markets, results: results}, nil
	})
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		c, _ := res.Val.(collected)
		return slices.Clone(c.markets), c.results, nil
	}
}

// evaluate refreshes, enriches, scores, and filters markets. record controls
// whether intelligence history is updated.
func (e *Engine) evaluate(markets []domain.Market, now time.Time, record bool) ([]domain.Market, map[selection.Reason]int) {
	eligible := make([]domain.Market, 0, len(markets))
	rejected := make(map[selection.Reason]int)
	for _, m := range markets {
		m.Refresh(now)
		var ins domain.Insights
		if record {
			ins = e.state.Intel.Observe(m, now)
		} else {
			ins = e.state.Intel.Peek(m, now)
		}
		m.Insights = &ins
		m.Urgency = ins.Urgency
		e.scorer.Apply(&m)
		m.Bucket = selection.Bucket(m.TimeToResolve)

		if ok, reason := selection.Check(&m, e.cfg.Thresholds, now); !ok {
			rejected[reason]++
			continue
		}
		eligible = append(eligible, m)
	}
	return eligible, rejected
}

func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, r *Report, m domain.Market) {
	if e.notifier == nil {
		log.InfoContext(ctx, "market selected",
			slog.String("market", m.Key()),
			slog.String("title", m.Title),
			slog.Int("confidence", m.Confidence),
		)
		return
	}
	err := e.notifier.NotifyMarket(ctx, m)
	if e.observer != nil {
		e.observer.ObserveAlert(m.Source, err)
	}
	if err != nil {
		r.Stats.DispatchFailed++
		log.ErrorContext(ctx, "market alert failed", slog.String("market", m.Key()), slog.String("error", err.Error()))
		e.state.Ops.RegisterError("alert-dispatch", fmt.Errorf("market alert delivery failed: %w", err))
		return
	}
	r.Stats.Alerted++
	if _, err := e.state.Gate.Record(ctx, &m); err != nil {
		log.WarnContext(ctx, "suppression record failed", slog.String("error", err.Error()))
	}
	if e.alerts != nil {
		if err := e.alerts.Record(ctx, domain.NewAlertRecord(r.ID, m, e.now())); err != nil {
			log.WarnContext(ctx, "alert history write failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) flushOps(ctx context.Context, log *slog.Logger) {
	for _, a := range e.state.Ops.Drain() {
		if e.notifier == nil {
			log.WarnContext(ctx, "operational alert", slog.String("source", a.Source), slog.String("message", a.Message))
			continue
		}
		if err := e.notifier.NotifyOperational(ctx, a); err != nil {
			log.WarnContext(ctx, "operational alert failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) finish(ctx context.Context, log *slog.Logger, r *Report) {
	for _, s := range e.sinks {
		if err := s.PublishReport(ctx, r); err != nil {
			log.WarnContext(ctx, "report sink failed", slog.String("error", err.Error()))
		}
	}
	if e.observer != nil {
		e.observer.ObserveScan(r)
	}
	log.InfoContext(ctx, "scan completed",
		slog.String("status", r.Status.String()),
		slog.Int("considered", r.Stats.Considered),
		slog.Int("eligible", r.Stats.Eligible),
		slog.Int("selected", r.Stats.Selected),
		slog.Int("alerted", r.Stats.Alerted),
		slog.Int("suppressed", r.Stats.Suppressed),
		slog.Duration("duration", r.Duration()),
	)
}

// SearchResult is the outcome of a category search.
type SearchResult struct {
	Category domain.Category `json:"category"`
	Found    int             `json:"found"`
	Eligible int             `json:"eligible"`
	Markets  []domain.Market `json:"markets"`
}

// Search returns the best eligible markets in one category. It reads market
// history without extending it and dispatches nothing.
func (e *Engine) Search(ctx context.Context, category domain.Category, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = e.cfg.SearchLimit
	}
	markets, results, err := e.collect(ctx)
	if err != nil {
		return nil, err
	}
	if intake.AllFailed(results) {
		return nil, ErrAllSourcesFailed
	}

	now := e.now()
	res := &SearchResult{Category: category}
	var inCategory []domain.Market
	for _, m := range markets {
		if selection.Classify(m.Title) == category {
			m.Category = category
			inCategory = append(inCategory, m)
		}
	}
	res.Found = len(inCategory)

	eligible, _ := e.evaluate(inCategory, now, false)
	res.Eligible = len(eligible)
	slices.SortStableFunc(eligible, func(a, b domain.Market) int {
		return b.SelectionScore() - a.SelectionScore()
	})
	res.Markets = eligible[:min(limit, len(eligible))]
	return res, nil
}

func scanStatus(results []intake.SourceResult) resilience.Status {
	if intake.AllFailed(results) {
		return resilience.StatusFailed
	}
	for _, r := range results {
		if r.Result.Status != resilience.StatusOK {
			return resilience.StatusDegraded
		}
	}
	return resilience.StatusOK
}
