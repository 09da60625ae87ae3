package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/cache/memory"
	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/intake"
	"github.com/alanyoungcy/marketscout/internal/intel"
	"github.com/alanyoungcy/marketscout/internal/normalize"
	"github.com/alanyoungcy/marketscout/internal/resilience"
	"github.com/alanyoungcy/marketscout/internal/scoring"
	"github.com/alanyoungcy/marketscout/internal/selection"
	"github.com/alanyoungcy/marketscout/internal/suppress"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeCollector struct {
	calls   atomic.Int32
	block   chan struct{}
	markets []domain.Market
	results []intake.SourceResult
}

func (f *fakeCollector) Collect(context.Context) ([]domain.Market, []intake.SourceResult) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return append([]domain.Market(nil), f.markets...), f.results
}

func (f *fakeCollector) Status() []intake.SourceStatus { return nil }

type fakeNotifier struct {
	mu      sync.Mutex
	markets []domain.Market
	ops     []OpsAlert
	err     error
}

func (f *fakeNotifier) NotifyMarket(_ context.Context, m domain.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.markets = append(f.markets, m)
	return nil
}

func (f *fakeNotifier) NotifyOperational(_ context.Context, a OpsAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, a)
	return nil
}

type recordingSink struct{ reports []*Report }

func (s *recordingSink) PublishReport(_ context.Context, r *Report) error {
	s.reports = append(s.reports, r)
	return nil
}

type memAlerts struct{ recs []domain.AlertRecord }

func (m *memAlerts) Record(_ context.Context, rec domain.AlertRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memAlerts) ListRecent(context.Context, domain.ListOpts) ([]domain.AlertRecord, error) {
	return m.recs, nil
}

func okResult(src domain.Source, ms []domain.Market) intake.SourceResult {
	return intake.SourceResult{Source: src, Result: resilience.Ok(ms)}
}

// liquid builds a market that clears every default gate.
func liquid(id, title string) domain.Market {
	return domain.Market{
		Source:     domain.SourcePolymarket,
		ID:         id,
		Title:      title,
		ResolvesAt: t0.Add(2 * time.Hour),
		LastPrice:  0.55,
		Volume24h:  20000,
		Liquidity:  10000,
		Spread:     0.02,
	}
}

type harness struct {
	engine    *Engine
	collector *fakeCollector
	notifier  *fakeNotifier
	sink      *recordingSink
	alerts    *memAlerts
	state     *State
	now       time.Time
}

func newHarness(markets []domain.Market, results []intake.SourceResult) *harness {
	h := &harness{now: t0}
	clock := func() time.Time { return h.now }
	if results == nil {
		results = []intake.SourceResult{okResult(domain.SourcePolymarket, markets)}
	}
	h.collector = &fakeCollector{markets: markets, results: results}
	h.notifier = &fakeNotifier{}
	h.sink = &recordingSink{}
	h.alerts = &memAlerts{}
	h.state = NewState(
		memory.NewMarketCache(5*time.Minute, clock),
		resilience.NewCooldowns(clock),
		intel.NewTracker(),
		suppress.NewGate(memory.NewSuppressionStore(clock), time.Hour, clock),
		NewOpsAlerts(0, clock),
		clock,
	)
	h.engine = New(h.collector, scoring.NewScorer(nil), h.state, Config{
		Thresholds: selection.DefaultThresholds(),
		Diversity:  selection.DefaultDiversity(),
	}, discard(),
		WithNotifier(h.notifier),
		WithAlertStore(h.alerts),
		WithReportSink(h.sink),
		WithClock(clock),
	)
	return h
}

func TestRunCycleDispatchesEligibleMarkets(t *testing.T) {
	thin := liquid("thin", "Will it rain in Paris")
	thin.Liquidity = 10
	far := liquid("far", "Will the Lakers win the finals")
	far.ResolvesAt = t0.Add(10 * 24 * time.Hour)

	h := newHarness([]domain.Market{
		liquid("btc", "Will Bitcoin close above 100k"),
		liquid("vote", "Who wins the Senate election"),
		thin,
		far,
	}, nil)

	r, err := h.engine.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, resilience.StatusOK, r.Status)
	assert.Equal(t, 4, r.Stats.Considered)
	assert.Equal(t, 2, r.Stats.Eligible)
	assert.Equal(t, 2, r.Stats.Alerted)
	assert.Equal(t, 1, r.Stats.Rejected[selection.ReasonLowLiquidity])
	assert.Equal(t, 1, r.Stats.Rejected[selection.ReasonTooFar])
	assert.Equal(t, 1, r.Categories[domain.CategoryCrypto])
	assert.Equal(t, 1, r.Categories[domain.CategoryPolitics])

	require.Len(t, h.notifier.markets, 2)
	for _, m := range h.notifier.markets {
		assert.GreaterOrEqual(t, m.Confidence, 30)
		assert.Equal(t, domain.Bucket24H, m.Bucket)
		assert.NotNil(t, m.Insights)
	}
	require.Len(t, h.alerts.recs, 2)
	assert.Equal(t, r.ID, h.alerts.recs[0].ScanID)
	require.Len(t, h.sink.reports, 1)
	assert.Same(t, r, h.sink.reports[0])
}

func TestRunCycleSuppressesRepeats(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)

	_, err := h.engine.RunCycle(context.Background(), "first")
	require.NoError(t, err)

	h.now = h.now.Add(10 * time.Minute)
	r, err := h.engine.RunCycle(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.Suppressed)
	assert.Equal(t, 0, r.Stats.Alerted)
	assert.Empty(t, r.Markets)
	assert.Len(t, h.notifier.markets, 1)

	h.now = h.now.Add(time.Hour)
	r, err = h.engine.RunCycle(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.Alerted)
}

func TestRunCycleFailedDispatchIsNotSuppressed(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	h.notifier.err = errors.New("webhook down")

	r, err := h.engine.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.DispatchFailed)
	assert.Empty(t, h.alerts.recs)

	h.notifier.err = nil
	r, err = h.engine.RunCycle(context.Background(), "retry")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.Alerted)
	require.Len(t, h.notifier.ops, 1)
	assert.Equal(t, "alert-dispatch", h.notifier.ops[0].Source)
}

func TestRunCycleAllSourcesFailed(t *testing.T) {
	boom := &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchNetwork, Err: errors.New("down")}
	h := newHarness(nil, []intake.SourceResult{
		{Source: domain.SourcePolymarket, Result: resilience.Failed[[]domain.Market](boom)},
		{Source: domain.SourceKalshi, Result: resilience.Failed[[]domain.Market](boom)},
	})

	r, err := h.engine.RunCycle(context.Background(), "test")
	require.ErrorIs(t, err, ErrAllSourcesFailed)
	require.NotNil(t, r)
	assert.Equal(t, resilience.StatusFailed, r.Status)
	require.Len(t, r.Sources, 2)
	assert.NotEmpty(t, r.Sources[0].Error)
	assert.Len(t, h.sink.reports, 1)

	// Queued during the failed scan, sent at the start of the next.
	h.collector.results = []intake.SourceResult{okResult(domain.SourcePolymarket, nil)}
	_, err = h.engine.RunCycle(context.Background(), "next")
	require.NoError(t, err)
	assert.Len(t, h.notifier.ops, 2)
}

func TestRunCycleDegradedWhenOneSourceRateLimited(t *testing.T) {
	limited := &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchTransient, Status: 429, Err: domain.ErrRateLimited}
	ms := []domain.Market{liquid("btc", "Bitcoin above 100k")}
	h := newHarness(ms, []intake.SourceResult{
		okResult(domain.SourcePolymarket, ms),
		{Source: domain.SourceKalshi, Result: resilience.Degraded[[]domain.Market](nil, limited)},
	})

	r, err := h.engine.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, resilience.StatusDegraded, r.Status)
	assert.True(t, r.Sources[1].RateLimited)
	assert.Equal(t, 1, r.Stats.Alerted)

	_, err = h.engine.RunCycle(context.Background(), "next")
	require.NoError(t, err)
	assert.Empty(t, h.notifier.ops)
}

func TestRunCycleConcurrentTriggersShareScan(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	h.collector.block = make(chan struct{})

	var wg sync.WaitGroup
	reports := make([]*Report, 3)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.engine.RunCycle(context.Background(), "concurrent")
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}
	require.Eventually(t, func() bool { return h.collector.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(h.collector.block)
	wg.Wait()

	assert.Equal(t, int32(1), h.collector.calls.Load())
	assert.Len(t, h.notifier.markets, 1)
	for _, r := range reports {
		assert.Same(t, reports[0], r)
	}
}

func TestSearchDoesNotDispatchOrRecord(t *testing.T) {
	h := newHarness([]domain.Market{
		liquid("btc", "Bitcoin above 100k"),
		liquid("eth", "Ethereum above 5k"),
		liquid("vote", "Senate election winner"),
	}, nil)

	res, err := h.engine.Search(context.Background(), domain.CategoryCrypto, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Eligible)
	require.Len(t, res.Markets, 1)
	assert.Equal(t, domain.CategoryCrypto, res.Markets[0].Category)

	assert.Empty(t, h.notifier.markets)
	assert.Zero(t, h.state.Intel.Len())
}

func TestSearchDuringScanSharesFetch(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	h.collector.block = make(chan struct{})

	scanDone := make(chan error, 1)
	go func() {
		_, err := h.engine.RunCycle(context.Background(), "interval")
		scanDone <- err
	}()
	require.Eventually(t, func() bool { return h.collector.calls.Load() == 1 }, time.Second, time.Millisecond)

	searchDone := make(chan *SearchResult, 1)
	go func() {
		res, err := h.engine.Search(context.Background(), domain.CategoryCrypto, 0)
		assert.NoError(t, err)
		searchDone <- res
	}()
	time.Sleep(50 * time.Millisecond)
	close(h.collector.block)

	require.NoError(t, <-scanDone)
	res := <-searchDone
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, int32(1), h.collector.calls.Load())
}

func TestSearchHonoursCallerCancel(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	h.collector.block = make(chan struct{})
	defer close(h.collector.block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.Search(ctx, domain.CategoryCrypto, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchAllSourcesFailed(t *testing.T) {
	h := newHarness(nil, []intake.SourceResult{
		{Source: domain.SourcePolymarket, Result: resilience.Failed[[]domain.Market](errors.New("down"))},
	})
	_, err := h.engine.Search(context.Background(), domain.CategoryCrypto, 0)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestOpsAlertsThrottleAndNoise(t *testing.T) {
	now := t0
	o := NewOpsAlerts(30*time.Minute, func() time.Time { return now })

	assert.True(t, o.Register("kalshi-api", "connection refused"))
	assert.False(t, o.Register("kalshi-api", "connection refused"))
	assert.True(t, o.Register("polymarket-api", "connection refused"))
	assert.False(t, o.Register("kalshi-api", "HTTP 429 from upstream"))
	assert.False(t, o.Register("kalshi-api", "Too Many Requests"))

	assert.Len(t, o.Drain(), 2)
	assert.Empty(t, o.Drain())

	now = now.Add(31 * time.Minute)
	assert.True(t, o.Register("kalshi-api", "connection refused"))
}

func TestOpsAlertsIgnoreTransientErrors(t *testing.T) {
	o := NewOpsAlerts(0, nil)
	transient := &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchTransient, Err: errors.New("busy")}
	assert.False(t, o.RegisterError("kalshi-api", transient))
	assert.False(t, o.RegisterError("kalshi-api", nil))
	assert.True(t, o.RegisterError("kalshi-api", errors.New("bad gateway config")))
}

func TestStateSweep(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	_, err := h.engine.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.NoError(t, h.state.Cache.Set(context.Background(), intake.CacheKey(domain.SourcePolymarket), h.collector.markets))

	h.now = h.now.Add(8 * 24 * time.Hour)
	st := h.state.Sweep(context.Background(), discard())
	assert.Equal(t, 1, st.CacheEntries)
	assert.Equal(t, 1, st.Suppressions)
	assert.Equal(t, 1, st.HistoryPoints)
	assert.Zero(t, h.state.Intel.Len())
}

type heldLock struct{ calls int }

func (l *heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.calls++
	return nil, domain.ErrLockHeld
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	h := newHarness([]domain.Market{liquid("btc", "Bitcoin above 100k")}, nil)
	lock := &heldLock{}
	WithScanLock(lock, time.Minute)(h.engine)

	r, err := h.engine.RunCycle(context.Background(), "test")
	assert.ErrorIs(t, err, ErrScanLocked)
	assert.Nil(t, r)
	assert.Equal(t, 1, lock.calls)
	assert.Zero(t, h.collector.calls.Load())
}

const rawPolymarket = `[
	{"id":"512","question":"Will BTC close above 100k?","slug":"btc-100k","endDate":"2026-03-01T18:00:00Z",
	 "bestBid":0.41,"bestAsk":0.45,"volume24hr":"18000.5","liquidity":7200,"oneHourPriceChange":-0.03,
	 "createdAt":"2026-02-28T00:00:00Z","acceptingOrders":true},
	{"id":"513","question":"Senate election winner","endDate":"2026-03-02T00:00:00Z","outcomePrices":"[\"0.62\", \"0.38\"]",
	 "volume24hr":900,"liquidity":150}
]`

const rawKalshi = `[
	{"ticker":"KXFED-26MAR","title":"Fed cuts rates in March?","status":"active","close_time":"2026-03-04T12:00:00Z",
	 "yes_bid":40,"yes_ask":46,"last_price":44,"previous_price":40,"volume_24h":3200,"open_interest":12000,"price_change_1h":5}
]`

func rawRecords(t *testing.T, s string) []normalize.Record {
	t.Helper()
	var out []normalize.Record
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestEvaluateChainIsDeterministic(t *testing.T) {
	poly := rawRecords(t, rawPolymarket)
	kalshi := rawRecords(t, rawKalshi)

	run := func() ([][]domain.Market, []map[selection.Reason]int) {
		h := newHarness(nil, nil)
		var eligible [][]domain.Market
		var rejected []map[selection.Reason]int
		for round := 0; round < 3; round++ {
			now := t0.Add(time.Duration(round) * 5 * time.Minute)
			pm, skipped := normalize.Batch(poly, normalize.Polymarket, now)
			require.Zero(t, skipped)
			km, skipped := normalize.Batch(kalshi, normalize.Kalshi, now)
			require.Zero(t, skipped)

			e, r := h.engine.evaluate(append(pm, km...), now, true)
			eligible = append(eligible, e)
			rejected = append(rejected, r)
		}
		return eligible, rejected
	}

	eligibleA, rejectedA := run()
	eligibleB, rejectedB := run()

	require.NotEmpty(t, eligibleA[0])
	assert.NotEmpty(t, rejectedA[0])
	assert.Equal(t, eligibleA, eligibleB)
	assert.Equal(t, rejectedA, rejectedB)
}
