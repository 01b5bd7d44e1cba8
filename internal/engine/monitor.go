package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/config"
	"bist-sentinel/internal/errors"
	"bist-sentinel/internal/logging"
	"bist-sentinel/internal/market"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/notify"
	"bist-sentinel/internal/store"
	"bist-sentinel/internal/stream"
	"bist-sentinel/internal/trading"
	"bist-sentinel/pkg/utils"
)

// DataProvider is the market data surface the monitor consumes. The
// production implementation is marketdata.Client.
type DataProvider interface {
	TimeSeries(ctx context.Context, symbol string) ([]models.PriceBar, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Fundamentals(ctx context.Context, symbol string) (*models.FundamentalsSnapshot, error)
	Headlines(ctx context.Context, symbol string) ([]models.Headline, error)
	Sector(ctx context.Context, symbol string) (string, error)
}

// Deps bundles the monitor's collaborators.
type Deps struct {
	Data     DataProvider
	Store    store.DataStore
	Notifier notify.Notifier
	Hub      *stream.Hub
	Alarms   *stream.AlarmBook
	Calendar *market.Calendar
	Logger   zerolog.Logger
}

// Backoff applied between sweeps while whole cycles fail outright.
const (
	backoffInitial = 30 * time.Second
	backoffMax     = 15 * time.Minute
	backoffFactor  = 2.0
)

// sectorLookupTimeout bounds the one-off profile call per symbol.
const sectorLookupTimeout = 10 * time.Second

// Monitor drives the sequential watchlist sweep: fetch, score, decide,
// commit, fan out. One sweep runs at a time; fetches happen outside
// the engine lock and results are committed under it.
type Monitor struct {
	cfg   *config.Config
	state *EngineState

	data     DataProvider
	store    store.DataStore
	notifier notify.Notifier
	hub      *stream.Hub
	alarms   *stream.AlarmBook
	calendar *market.Calendar
	logger   zerolog.Logger

	technical    *scoring.TechnicalScorer
	fundamentals *scoring.FundamentalScorer
	news         *scoring.NewsScorer
	regime       *scoring.CachedRegime

	params trading.DecisionParams

	refresh    chan struct{}
	failStreak int
}

// NewMonitor wires the engine from configuration. The sector lookup
// memoizes inside the risk controller, so the profile endpoint is hit
// at most once per symbol.
func NewMonitor(cfg *config.Config, deps Deps) *Monitor {
	logger := logging.WithComponent(deps.Logger, "monitor")
	if deps.Alarms == nil {
		deps.Alarms = stream.NewAlarmBook(nil)
	}
	if deps.Store == nil {
		deps.Store = store.NewNullStore()
	}

	lookup := func(symbol string) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), sectorLookupTimeout)
		defer cancel()
		return deps.Data.Sector(ctx, symbol)
	}
	riskCtl := trading.NewRiskController(
		cfg.DailyRiskBudget(),
		cfg.Risk.MaxActivePositions,
		cfg.Risk.MaxPositionsPerSector,
		lookup,
	)
	lifecycle := trading.NewLifecycle(trading.LifecycleConfig{
		PartialTP1Ratio: cfg.Risk.PartialTP1Ratio,
		TrailingStopPct: cfg.Risk.TrailingStopPercent,
	})

	regimeSymbol := cfg.Engine.RegimeSymbol
	fetchIndex := func(ctx context.Context) ([]models.PriceBar, error) {
		return deps.Data.TimeSeries(ctx, regimeSymbol)
	}

	return &Monitor{
		cfg:          cfg,
		state:        NewEngineState(cfg.ActivePreset(), cfg.Engine.Watchlist, riskCtl, lifecycle, time.Now()),
		data:         deps.Data,
		store:        deps.Store,
		notifier:     deps.Notifier,
		hub:          deps.Hub,
		alarms:       deps.Alarms,
		calendar:     deps.Calendar,
		logger:       logger,
		technical:    scoring.NewTechnicalScorer(),
		fundamentals: scoring.NewFundamentalScorer(),
		news:         scoring.NewNewsScorer(time.Duration(cfg.Engine.NewsLookbackHours) * time.Hour),
		regime:       scoring.NewCachedRegime(fetchIndex, cfg.RefreshInterval(true)),
		params: trading.DecisionParams{
			RiskPerTrade: cfg.RiskPerTrade(),
			MinStopFrac:  cfg.Risk.MinStopDistance,
			MaxStopFrac:  cfg.Risk.MaxStopDistance,
		},
		refresh: make(chan struct{}, 1),
	}
}

// Snapshot assembles the panel payload: the locked state copy plus the
// market status and the alarm book.
func (m *Monitor) Snapshot() Snapshot {
	snap := m.state.Snapshot()
	snap.Market = m.calendar.Status(time.Now())
	if m.alarms != nil {
		snap.Alarms = m.alarms.Snapshot()
	}
	return snap
}

// RequestRefresh asks the run loop for an immediate sweep. It never
// blocks; one pending request is enough.
func (m *Monitor) RequestRefresh() {
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// Run executes sweeps until the context is cancelled. The first sweep
// starts immediately; afterwards the pace follows the market session,
// stretched by a bounded backoff while cycles fail outright.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Strs("watchlist", m.state.Watchlist()).
		Str("preset", m.state.Preset().Name).
		Msg("monitor starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return ctx.Err()
		case <-timer.C:
		case <-m.refresh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		m.RunCycle(ctx)
		timer.Reset(m.nextInterval(time.Now()))
	}
}

// RunCycle sweeps the watchlist once. A panic inside the sweep is
// caught, logged with its stack and treated as a failed cycle so the
// loop degrades to backoff instead of dying.
func (m *Monitor) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			m.failStreak++
			m.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("cycle panicked")
		}
	}()
	return m.sweep(ctx)
}

func (m *Monitor) sweep(ctx context.Context) error {
	started := time.Now()
	symbols := m.state.Watchlist()

	// The regime read is market wide; its cache means one index fetch
	// per refresh interval no matter how long the watchlist is.
	regime := m.regime.Score(ctx)

	failures := 0
	var lastErr error
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.processSymbol(ctx, symbol, regime); err != nil {
			failures++
			lastErr = err
			log := logging.WithSymbol(m.logger, symbol)
			if errors.IsTransient(err) {
				log.Warn().Err(err).Msg("symbol skipped this cycle")
			} else {
				log.Error().Err(err).Msg("symbol evaluation failed")
			}
		}
	}

	took := time.Since(started)
	m.state.MarkCycle(started, took, failures)
	logging.LogCycle(m.logger, len(symbols), failures, took)

	if failures == len(symbols) && len(symbols) > 0 {
		m.failStreak++
		if m.failStreak == 1 {
			m.notifier.SendError(ctx, lastErr, "monitor cycle")
		}
		return lastErr
	}
	m.failStreak = 0
	return nil
}

// processSymbol runs the per-symbol pipeline: fetch outside the lock,
// score, decide, commit under the lock, then fan the results out.
func (m *Monitor) processSymbol(ctx context.Context, symbol string, regime models.FactorScore) error {
	log := logging.WithSymbol(m.logger, symbol)

	bars, err := m.data.TimeSeries(ctx, symbol)
	if err != nil {
		return fmt.Errorf("daily history: %w", err)
	}

	now := time.Now()
	price, err := m.data.LastPrice(ctx, symbol)
	if err != nil || price <= 0 {
		if len(bars) == 0 {
			return fmt.Errorf("no usable price: %w", err)
		}
		price = bars[len(bars)-1].Close
		log.Debug().Float64("close", price).Msg("live quote unavailable, using last close")
	}

	for _, alarm := range m.alarms.Evaluate(symbol, price, now) {
		m.emitAlarm(ctx, alarm, price, now)
	}

	tech, err := m.technical.Score(ctx, symbol, bars)
	if err != nil {
		// Cannot decide without a technical read; the previous
		// decision stands. The lifecycle still sees the price so an
		// open position stays managed.
		res := m.state.Commit(symbol, nil, price, now)
		m.fanOut(ctx, res)
		return fmt.Errorf("technical score: %w", err)
	}

	snap, err := m.data.Fundamentals(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Msg("fundamentals unavailable, scoring neutral")
		snap = nil
	}
	fund := m.fundamentals.Score(snap)

	heads, err := m.data.Headlines(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Msg("headlines unavailable, scoring neutral")
		heads = nil
	}
	news := m.news.Score(heads, now)

	dec := trading.BuildDecision(symbol, price, tech, fund, news, regime, m.state.Preset(), m.params)
	res := m.state.Commit(symbol, dec, price, now)
	m.fanOut(ctx, res)
	return nil
}

// fanOut publishes and persists everything a commit produced. Store
// and notification failures are logged and dropped; they never stop
// the sweep.
func (m *Monitor) fanOut(ctx context.Context, res CommitResult) {
	for _, ev := range res.Events {
		logging.LogPositionEvent(m.logger, ev)
		m.hub.Publish(stream.NewPositionEvent(ev))
		if err := m.notifier.SendPositionEvent(ctx, ev); err != nil {
			m.logger.Debug().Err(err).Msg("position notification failed")
		}
		if err := m.store.SaveEvent(ctx, &ev); err != nil {
			m.logger.Warn().Err(err).Str("symbol", ev.Symbol).Msg("failed to save event")
		}
	}
	for _, tr := range res.Trades {
		if err := m.store.SaveTrade(ctx, &tr); err != nil {
			m.logger.Warn().Err(err).Str("symbol", tr.Symbol).Msg("failed to save trade")
		}
	}

	if res.Decision == nil || !res.Alert {
		return
	}
	logging.LogDecision(m.logger, res.Decision)
	m.hub.Publish(stream.NewDecisionEvent(res.Decision))
	if err := m.notifier.SendDecision(ctx, res.Decision); err != nil {
		m.logger.Debug().Err(err).Msg("decision notification failed")
	}
	if err := m.store.SaveDecision(ctx, res.Decision); err != nil {
		m.logger.Warn().Err(err).Str("symbol", res.Decision.Symbol).Msg("failed to save decision")
	}
}

// emitAlarm turns a fired threshold alarm into an event record, a hub
// message and a notification.
func (m *Monitor) emitAlarm(ctx context.Context, alarm models.ThresholdAlarm, price float64, now time.Time) {
	logging.LogAlarm(m.logger, alarm.Symbol, string(alarm.Direction), alarm.Level, price)

	ev := models.PositionEvent{
		ID:     uuid.New().String(),
		Time:   now,
		Symbol: alarm.Symbol,
		Type:   models.EventAlarm,
		Price:  price,
		Note:   alarmNote(alarm, price),
	}
	m.state.RecordEvent(ev)
	m.hub.Publish(stream.NewAlarmEvent(alarm, price, now))
	if err := m.notifier.SendAlarm(ctx, alarm, price); err != nil {
		m.logger.Debug().Err(err).Msg("alarm notification failed")
	}
	if err := m.store.SaveEvent(ctx, &ev); err != nil {
		m.logger.Warn().Err(err).Str("symbol", ev.Symbol).Msg("failed to save event")
	}
}

// alarmNote formats the alarm in the terse ALT/UST style the alerts
// have always used.
func alarmNote(alarm models.ThresholdAlarm, price float64) string {
	if alarm.Direction == models.AlarmBelow {
		return fmt.Sprintf("%s %.2f <= ALT %.2f", alarm.Symbol, price, alarm.Level)
	}
	return fmt.Sprintf("%s %.2f >= UST %.2f", alarm.Symbol, price, alarm.Level)
}

// nextInterval picks the sleep before the next sweep: the session
// interval normally, a growing bounded backoff while cycles fail.
func (m *Monitor) nextInterval(now time.Time) time.Duration {
	if m.failStreak > 0 {
		return utils.CalculateBackoff(m.failStreak-1, backoffInitial, backoffMax, backoffFactor)
	}
	return m.cfg.RefreshInterval(m.calendar.IsOpen(now))
}
