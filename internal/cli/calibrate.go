package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/models"
	"bist-sentinel/internal/security"
)

const calibrateTimeout = 10 * time.Minute

func newCalibrateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate <symbol>",
		Short: "Walk-forward preset selection over historical bars",
		Long: `Slide non-overlapping (train, test) windows across the symbol's
history. Each fold simulates all three presets on the train window,
picks the best-scoring one and evaluates it out-of-sample on the test
window. The preset selected most often becomes the recommendation.`,
		Example: `  bist-sentinel calibrate FROTO
  bist-sentinel calibrate MGROS --train 40 --test 15`,
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

			trainDays, _ := cmd.Flags().GetInt("train")
			testDays, _ := cmd.Flags().GetInt("test")
			capital, _ := cmd.Flags().GetFloat64("capital")
			if capital <= 0 {
				capital = app.Config.Account.Size
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), calibrateTimeout)
			defer cancel()

			bars, err := app.dataClient().TimeSeries(ctx, symbol)
			if err != nil {
				return err
			}

			result, err := app.backtester(capital).WalkForward(ctx, symbol, bars, presetsForCalibration(), trainDays, testDays)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			renderWalkForward(output, result)
			return nil
		},
	}
	cmd.Flags().Int("train", calibrationTrainDays, "train window in daily bars")
	cmd.Flags().Int("test", calibrationTestDays, "test window in daily bars")
	cmd.Flags().Float64("capital", 0, "starting capital (default account size)")
	return cmd
}

func renderWalkForward(output *Output, r *models.WalkForwardResult) {
	output.Header("%s walk-forward calibration  (%d folds)", r.Symbol, len(r.Folds))
	output.Println()

	output.Header("  %-5s %-23s %-23s %-14s %9s %8s", "fold", "train", "test", "selected", "return", "maxDD")
	for _, fold := range r.Folds {
		ret, dd := 0.0, 0.0
		if fold.TestMetrics != nil {
			ret = fold.TestMetrics.TotalReturnPct
			dd = fold.TestMetrics.MaxDrawdownPct
		}
		output.Printf("  %-5d %s – %s %s – %s %-14s %9s %7.2f%%\n",
			fold.Index,
			fold.TrainStart.Format("2006-01-02"), fold.TrainEnd.Format("2006-01-02"),
			fold.TestStart.Format("2006-01-02"), fold.TestEnd.Format("2006-01-02"),
			fold.SelectedPreset,
			output.Signed("%+.2f%%", ret), dd)
	}

	output.Println()
	output.Printf("  avg test return  %s\n", output.Signed("%+.2f%%", r.AvgTestReturnPct))
	output.Printf("  avg test maxDD   %.2f%%\n", r.AvgTestDrawdown)
	for name, count := range r.SelectionCounts {
		output.Dim("  %s selected %dx", name, count)
	}
	output.Println()
	output.Success("recommended preset: %s", r.RecommendedPreset)
}
