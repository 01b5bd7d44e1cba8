package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bist-sentinel/internal/engine"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/notify"
	"bist-sentinel/internal/trading"
)

// StateSource provides the engine snapshot the summary reports on.
type StateSource interface {
	Snapshot() engine.Snapshot
}

// HistorySource provides daily bars for calibration.
type HistorySource interface {
	TimeSeries(ctx context.Context, symbol string) ([]models.PriceBar, error)
}

const (
	summaryTimeout     = time.Minute
	calibrationTimeout = 15 * time.Minute
)

// DailySummaryJob sends the day's decision and trade tally after the
// session close.
type DailySummaryJob struct {
	state    StateSource
	notifier notify.Notifier
	budget   float64
}

// NewDailySummaryJob wires the summary job. budget is the daily risk
// budget in currency, reported alongside the used amount.
func NewDailySummaryJob(state StateSource, notifier notify.Notifier, budget float64) *DailySummaryJob {
	return &DailySummaryJob{state: state, notifier: notifier, budget: budget}
}

// Name implements Job.
func (j *DailySummaryJob) Name() string { return "daily-summary" }

// Run implements Job.
func (j *DailySummaryJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	snap := j.state.Snapshot()
	summary := &notify.DailySummary{
		Date:          snap.Performance.Date,
		Decisions:     snap.Performance.DecisionCounts,
		ClosedTrades:  snap.Performance.ClosedTrades,
		PartialExits:  snap.Performance.PartialExits,
		Wins:          snap.Performance.Wins,
		Losses:        snap.Performance.Losses,
		RealizedPnL:   snap.Performance.DailyRealizedPnL,
		OpenPositions: len(snap.Risk.OpenPositions),
		UsedRisk:      snap.Risk.DailyUsedRisk,
		RiskBudget:    j.budget,
	}
	return j.notifier.SendDailySummary(ctx, summary)
}

// WeeklyCalibrationJob walk-forwards every watchlist symbol over the
// available daily history and notifies the recommended preset per
// symbol. Window sizes are chosen by the caller to fit the provider's
// history depth.
type WeeklyCalibrationJob struct {
	data       HistorySource
	notifier   notify.Notifier
	backtester *trading.Backtester
	watchlist  []string
	presets    []models.StrategyPreset
	trainDays  int
	testDays   int
	log        zerolog.Logger
}

// NewWeeklyCalibrationJob wires the calibration job.
func NewWeeklyCalibrationJob(
	data HistorySource,
	notifier notify.Notifier,
	backtester *trading.Backtester,
	watchlist []string,
	presets []models.StrategyPreset,
	trainDays, testDays int,
	log zerolog.Logger,
) *WeeklyCalibrationJob {
	return &WeeklyCalibrationJob{
		data:       data,
		notifier:   notifier,
		backtester: backtester,
		watchlist:  watchlist,
		presets:    presets,
		trainDays:  trainDays,
		testDays:   testDays,
		log:        log,
	}
}

// Name implements Job.
func (j *WeeklyCalibrationJob) Name() string { return "weekly-calibration" }

// Run implements Job. Symbols that cannot be calibrated are skipped;
// the job fails only when no symbol produced a recommendation.
func (j *WeeklyCalibrationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), calibrationTimeout)
	defer cancel()

	var lines []string
	var lastErr error
	for _, symbol := range j.watchlist {
		bars, err := j.data.TimeSeries(ctx, symbol)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("calibration fetch failed")
			lastErr = err
			continue
		}
		res, err := j.backtester.WalkForward(ctx, symbol, bars, j.presets, j.trainDays, j.testDays)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("calibration skipped")
			lastErr = err
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (avg test %+.1f%%, %d folds)",
			symbol, res.RecommendedPreset, res.AvgTestReturnPct, len(res.Folds)))
	}

	if len(lines) == 0 {
		if lastErr != nil {
			return fmt.Errorf("calibration produced no recommendations: %w", lastErr)
		}
		return nil
	}

	return j.notifier.Send(ctx, notify.Notification{
		Type:      notify.NotificationInfo,
		Title:     "Weekly preset calibration",
		Message:   strings.Join(lines, "\n"),
		Timestamp: time.Now(),
	})
}
