package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/engine"
	"bist-sentinel/internal/market"
	"bist-sentinel/internal/scheduler"
	"bist-sentinel/internal/server"
	"bist-sentinel/internal/store"
	"bist-sentinel/internal/stream"
)

// Walk-forward windows for the weekly calibration job, sized to fit
// the provider's 260-bar history depth after indicator warm-up.
const (
	calibrationTrainDays = 40
	calibrationTestDays  = 15
)

const shutdownTimeout = 10 * time.Second

// eventRingCapacity sizes the live tail the panel serves.
const eventRingCapacity = 128

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor loop, panel server and schedulers",
		Long: `Start the live engine: the sequential watchlist sweep, the HTTP
state panel, the threshold-alarm worker and the cron jobs (daily
summary, weekly preset calibration). Runs until interrupted.`,
		Example: `  bist-sentinel run
  bist-sentinel run --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			return runEngine(cmd, app)
		},
	}
	return cmd
}

func runEngine(cmd *cobra.Command, app *App) error {
	cfg := app.Config
	log := app.Logger
	output := NewOutput(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data := app.dataClient()
	notifier := app.notifier()

	// Store failures are never fatal: the engine runs without
	// persistence and logs the gap.
	var dataStore store.DataStore = store.NewNullStore()
	sqlStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Storage.Path).Msg("store unavailable, running without persistence")
	} else {
		dataStore = sqlStore
		defer sqlStore.Close()
	}

	hub := stream.NewHub()
	hub.Start(ctx)
	defer hub.Stop()

	// The ring feeds the panel's live event tail off the hub.
	ring := stream.NewRing(eventRingCapacity)
	hub.RegisterConsumer(ring)

	alarms := stream.NewAlarmBook(cfg.Alarms)
	calendar := market.NewCalendar()

	monitor := engine.NewMonitor(cfg, engine.Deps{
		Data:     data,
		Store:    dataStore,
		Notifier: notifier,
		Hub:      hub,
		Alarms:   alarms,
		Calendar: calendar,
		Logger:   log,
	})

	var panel *server.Server
	if cfg.Server.Enabled {
		panel = server.New(server.Config{
			Listen:     cfg.Server.Listen,
			RefreshKey: cfg.Server.RefreshKey,
			Version:    Version,
			Log:        log,
			State:      monitor,
			Refresher:  monitor,
			Store:      dataStore,
			Events:     ring,
		})
		go func() {
			if err := panel.Start(); err != nil {
				log.Error().Err(err).Msg("panel server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := panel.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("panel shutdown")
			}
		}()
	}

	sched := scheduler.New(log)
	summaryJob := scheduler.NewDailySummaryJob(monitor, notifier, cfg.DailyRiskBudget())
	if err := sched.AddJob(scheduler.DailySummarySchedule, summaryJob); err != nil {
		return err
	}
	calibrationJob := scheduler.NewWeeklyCalibrationJob(
		data,
		notifier,
		app.backtester(cfg.Account.Size),
		cfg.Engine.Watchlist,
		presetsForCalibration(),
		calibrationTrainDays,
		calibrationTestDays,
		log,
	)
	if err := sched.AddJob(scheduler.WeeklyCalibrationSchedule, calibrationJob); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	output.Info("bist-sentinel %s watching %d symbols (%s preset)", Version, len(cfg.Engine.Watchlist), cfg.Engine.Preset)
	if cfg.Server.Enabled {
		output.Dim("panel: http://%s/api/state", cfg.Server.Listen)
	}

	err = monitor.Run(ctx)
	if err == context.Canceled {
		output.Println()
		output.Info("shutting down")
		return nil
	}
	return err
}
