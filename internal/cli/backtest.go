package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/security"
	"bist-sentinel/internal/store"
	"bist-sentinel/internal/trading"
	"bist-sentinel/pkg/utils"
)

const backtestTimeout = 5 * time.Minute

// backtester builds a simulator sized from the account config.
func (app *App) backtester(capital float64) *trading.Backtester {
	cfg := app.Config
	return trading.NewBacktester(trading.BacktestConfig{
		InitialCapital: capital,
		RiskPercent:    cfg.Account.RiskPercent,
		MinStopFrac:    cfg.Risk.MinStopDistance,
		MaxStopFrac:    cfg.Risk.MaxStopDistance,
	})
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <symbol>",
		Short: "Replay the decision rules over historical daily bars",
		Long: `Simulate the live BUY/SELL/HOLD rules over history for one symbol:
technical and regime factors only, fundamentals and news pinned to
neutral, one position at a time, the same stop/target formulas as the
live engine. Results are persisted when the store is available.`,
		Example: `  bist-sentinel backtest TUPRS
  bist-sentinel backtest ASELS --days 90 --preset Conservative
  bist-sentinel backtest EREGL --trades --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			output := NewOutput(cmd)

			symbol := normalizeSymbol(args[0])
			if err := security.ValidateSymbol(symbol); err != nil {
				return err
			}

			days, _ := cmd.Flags().GetInt("days")
			capital, _ := cmd.Flags().GetFloat64("capital")
			showTrades, _ := cmd.Flags().GetBool("trades")
			if capital <= 0 {
				capital = app.Config.Account.Size
			}

			preset := app.Config.ActivePreset()
			if name, _ := cmd.Flags().GetString("preset"); name != "" {
				p, ok := presetByNameArg(name)
				if !ok {
					output.Error("unknown preset %q (Aggressive, Balanced, Conservative)", name)
					return errUnknownPreset
				}
				preset = p
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), backtestTimeout)
			defer cancel()

			bars, err := app.dataClient().TimeSeries(ctx, symbol)
			if err != nil {
				return err
			}
			bars = trimToWindow(bars, days)

			result, err := app.backtester(capital).Run(ctx, symbol, bars, preset)
			if err != nil {
				return err
			}

			saveBacktest(ctx, app, result)

			if output.IsJSON() {
				if !showTrades {
					result.Trades = nil
				}
				return output.JSON(result)
			}
			renderBacktest(output, result, showTrades)
			return nil
		},
	}
	cmd.Flags().Int("days", 120, "decision window in daily bars (history before it feeds the indicators)")
	cmd.Flags().Float64("capital", 0, "starting capital (default account size)")
	cmd.Flags().String("preset", "", "override the configured strategy preset")
	cmd.Flags().Bool("trades", false, "list individual trades")
	return cmd
}

// trimToWindow keeps the indicator warm-up plus the last `days`
// decision bars. Shorter histories pass through untouched and the
// simulator reports insufficient data itself.
func trimToWindow(bars []models.PriceBar, days int) []models.PriceBar {
	if days <= 0 {
		return bars
	}
	keep := scoring.MinTechnicalBars + days
	if len(bars) <= keep {
		return bars
	}
	return bars[len(bars)-keep:]
}

// saveBacktest persists the run when a store can be opened. Failures
// only cost the history row, never the command.
func saveBacktest(ctx context.Context, app *App, result *models.BacktestResult) {
	sqlStore, err := store.NewSQLiteStore(app.Config.Storage.Path)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("store unavailable, backtest not persisted")
		return
	}
	defer sqlStore.Close()
	if err := sqlStore.SaveBacktest(ctx, result); err != nil {
		app.Logger.Warn().Err(err).Msg("persisting backtest failed")
	}
}

func renderBacktest(output *Output, r *models.BacktestResult, showTrades bool) {
	output.Header("%s backtest  %s preset  %s – %s  (%d bars)",
		r.Symbol, r.Preset, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Bars)
	output.Println()

	output.Printf("  capital       %s → %s\n", utils.FormatTRY(r.InitialCapital), utils.FormatTRY(r.FinalCapital))
	output.Printf("  return        %s\n", output.Signed("%+.2f%%", r.TotalReturnPct))
	output.Printf("  max drawdown  %.2f%%\n", r.MaxDrawdownPct)
	output.Printf("  trades        %d  (%d wins / %d losses, %.0f%% win rate)\n", r.TotalTrades, r.Wins, r.Losses, r.WinRate)
	output.Printf("  profit factor %.2f\n", r.ProfitFactor)
	output.Printf("  avg P&L       %s  (win %s / loss %s)\n",
		output.Signed("%+.2f", r.AvgPnL), utils.FormatTRY(r.AvgWin), utils.FormatTRY(r.AvgLoss))

	if showTrades && len(r.Trades) > 0 {
		output.Println()
		output.Header("  %-12s %-12s %10s %10s %6s %12s  %s", "entry", "exit", "in", "out", "lot", "pnl", "reason")
		for _, t := range r.Trades {
			output.Printf("  %-12s %-12s %10.2f %10.2f %6d %12s  %s\n",
				t.EntryTime.Format("2006-01-02"), t.ExitTime.Format("2006-01-02"),
				t.EntryPrice, t.ExitPrice, t.Lot, output.Signed("%+.2f", t.PnL), t.Reason)
		}
	}
}
