package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/config"
	"bist-sentinel/internal/models"
)

var errUnknownPreset = errors.New("unknown preset")

// presetByNameArg resolves a preset name case-insensitively, the way
// users type it on the command line.
func presetByNameArg(name string) (models.StrategyPreset, bool) {
	for _, preset := range config.DefaultPresets() {
		if strings.EqualFold(preset.Name, name) {
			return preset, true
		}
	}
	return models.StrategyPreset{}, false
}

// presetsForCalibration returns the canonical presets the walk-forward
// simulator chooses between.
func presetsForCalibration() []models.StrategyPreset {
	return config.DefaultPresets()
}

func newPresetsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the canonical strategy presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			presets := config.DefaultPresets()

			if output.IsJSON() {
				return output.JSON(presets)
			}

			output.Header("%-14s %5s %5s %6s %6s %6s %6s %10s", "preset", "buy", "sell", "tech", "fund", "news", "regime", "cooldown")
			for _, p := range presets {
				output.Printf("%-14s %5.0f %5.0f %6.2f %6.2f %6.2f %6.2f %10s\n",
					p.Name, p.BuyThreshold, p.SellThreshold,
					p.Weights.Technical, p.Weights.Fundamental, p.Weights.News, p.Weights.Regime,
					p.AlertCooldown)
			}
			output.Println()
			output.Dim("weights are normalized to sum to 1 before scoring")
			return nil
		},
	}
}
