// Package cli provides the command-line interface for the alert engine.
package cli

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bist-sentinel/internal/config"
	"bist-sentinel/internal/logging"
	"bist-sentinel/internal/marketdata"
	"bist-sentinel/internal/notify"
)

// Version information
const (
	Version = "0.2.0"
)

// App holds the dependencies shared by the subcommands. Config and the
// data client are loaded lazily so commands that need neither (presets,
// config init) work before a config file exists.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// loadConfig loads and validates the config file, honoring --config
// and --debug. Safe to call more than once.
func (app *App) loadConfig(cmd *cobra.Command) error {
	if app.Config != nil {
		return nil
	}

	dir, _ := cmd.Flags().GetString("config")
	app.ConfigDir = dir

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	app.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = cfg.Logging.Path
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	app.Logger = logging.NewLoggerWithConfig(logCfg)
	return nil
}

// dataClient builds the market data client from the loaded config.
func (app *App) dataClient() *marketdata.Client {
	md := app.Config.MarketData
	return marketdata.NewClient(marketdata.Config{
		BaseURL:        md.BaseURL,
		APIKey:         md.APIKey,
		RequestsPerMin: int(md.RatePerMinute),
		Timeout:        time.Duration(md.TimeoutSec) * time.Second,
	})
}

// notifier builds the notification fan-out from the loaded config.
// When no channel is configured the terminal channel is enabled so
// development runs still show alerts.
func (app *App) notifier() *notify.MultiNotifier {
	cfg := &app.Config.Notifications
	mn := notify.NewMultiNotifier(cfg)
	if !cfg.Telegram.Enabled && !cfg.Webhook.Enabled {
		mn.AddChannel(notify.NewTerminalNotifier(true))
	}
	return mn
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "bist-sentinel",
		Short: "BIST trading alert engine",
		Long: `bist-sentinel watches a BIST watchlist, scores each symbol on
technical, fundamental, news and market-regime factors, emits
BUY/SELL/HOLD decisions under a daily risk budget, and tracks open
positions through partial take-profit and trailing-stop exits.

The same decision rules can be replayed over history (backtest) and
calibrated per symbol with walk-forward preset selection (calibrate).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default ~/.config/bist-sentinel)")
	rootCmd.PersistentFlags().Bool("json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newCalibrateCmd(app))
	rootCmd.AddCommand(newPresetsCmd(app))
	rootCmd.AddCommand(newStateCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

// normalizeSymbol uppercases a positional symbol argument.
func normalizeSymbol(arg string) string {
	return strings.ToUpper(strings.TrimSpace(arg))
}
