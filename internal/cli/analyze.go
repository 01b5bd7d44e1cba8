package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/security"
	"bist-sentinel/internal/trading"
	"bist-sentinel/pkg/utils"
)

const analyzeTimeout = 2 * time.Minute

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "One-off factor analysis and decision preview for a symbol",
		Long: `Fetch daily history, fundamentals, recent headlines and the market
regime reference, score all four factors and print the decision the
live engine would make right now. Risk gating is not applied: the
preview shows the raw decision before position and budget caps.`,
		Example: `  bist-sentinel analyze FROTO
  bist-sentinel analyze THYAO --preset Aggressive --json`,
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

			preset := app.Config.ActivePreset()
			if name, _ := cmd.Flags().GetString("preset"); name != "" {
				p, ok := presetByNameArg(name)
				if !ok {
					output.Error("unknown preset %q (Aggressive, Balanced, Conservative)", name)
					return errUnknownPreset
				}
				preset = p
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), analyzeTimeout)
			defer cancel()

			dec, err := analyzeSymbol(ctx, app, symbol, preset)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(dec)
			}
			renderDecision(output, dec)
			return nil
		},
	}
	cmd.Flags().String("preset", "", "override the configured strategy preset")
	return cmd
}

// analyzeSymbol runs the same scoring pipeline as one monitor sweep
// for one symbol, without touching any live state.
func analyzeSymbol(ctx context.Context, app *App, symbol string, preset models.StrategyPreset) (*models.Decision, error) {
	cfg := app.Config
	data := app.dataClient()

	bars, err := data.TimeSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}
	price, err := data.LastPrice(ctx, symbol)
	if err != nil {
		// Fall back to the latest close the way the monitor does.
		if len(bars) == 0 {
			return nil, err
		}
		price = bars[len(bars)-1].Close
	}

	tech, err := scoring.NewTechnicalScorer().Score(ctx, symbol, bars)
	if err != nil {
		return nil, err
	}

	// Fundamentals and news degrade to neutral when unavailable.
	snap, err := data.Fundamentals(ctx, symbol)
	if err != nil {
		snap = nil
	}
	fund := scoring.NewFundamentalScorer().Score(snap)

	headlines, err := data.Headlines(ctx, symbol)
	if err != nil {
		headlines = nil
	}
	lookback := time.Duration(cfg.Engine.NewsLookbackHours) * time.Hour
	news := scoring.NewNewsScorer(lookback).Score(headlines, time.Now())

	regimeBars, err := data.TimeSeries(ctx, cfg.Engine.RegimeSymbol)
	regime := models.FactorScore{Value: 50, Reasons: []string{"regime reference unavailable"}}
	if err == nil {
		regime = scoring.ClassifyRegime(regimeBars)
	}

	params := trading.DecisionParams{
		RiskPerTrade: cfg.RiskPerTrade(),
		MinStopFrac:  cfg.Risk.MinStopDistance,
		MaxStopFrac:  cfg.Risk.MaxStopDistance,
	}
	return trading.BuildDecision(symbol, price, tech, fund, news, regime, preset, params), nil
}

func renderDecision(output *Output, dec *models.Decision) {
	output.Header("%s  %s  score %d/100  (%s preset)", dec.Symbol, output.Action(string(dec.Action)), dec.Score, dec.Preset)
	output.Printf("price: %s\n\n", utils.FormatTRY(dec.Price))

	for _, f := range []models.Factor{models.FactorTechnical, models.FactorFundamental, models.FactorNews, models.FactorRegime} {
		fs, ok := dec.Factors[f]
		if !ok {
			continue
		}
		output.Printf("  %-12s %3d\n", f, fs.Value)
		for _, reason := range fs.Reasons {
			output.Dim("    - %s", reason)
		}
	}

	if dec.Levels != nil {
		lv := dec.Levels
		output.Println()
		output.Printf("  entry  %s – %s\n", utils.FormatTRY(lv.EntryLow), utils.FormatTRY(lv.EntryHigh))
		output.Printf("  stop   %s\n", utils.FormatTRY(lv.Stop))
		output.Printf("  target %s / %s  (R:R %.1f)\n", utils.FormatTRY(lv.Target1), utils.FormatTRY(lv.Target2), lv.RiskReward)
		output.Printf("  lot    %d  (risk %s)\n", lv.Lot, utils.FormatTRY(lv.RiskAmount))
	}

	if len(dec.Reasons) > 0 {
		output.Println()
		for _, reason := range dec.Reasons {
			output.Printf("  • %s\n", reason)
		}
	}
}
