package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/engine"
	"bist-sentinel/internal/security"
	"bist-sentinel/pkg/utils"
)

const stateTimeout = 10 * time.Second

func newStateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the running engine's state via the panel API",
		Long: `Query the panel server of a running 'bist-sentinel run' process and
print its consistent state snapshot: market status, latest decisions,
open positions, risk usage and recent events.`,
		Example: `  bist-sentinel state
  bist-sentinel state --refresh
  bist-sentinel state --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			output := NewOutput(cmd)

			base := "http://" + app.Config.Server.Listen
			client := &http.Client{Timeout: stateTimeout}

			if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
				if err := requestRefresh(client, base, app.Config.Server.RefreshKey); err != nil {
					return err
				}
				output.Info("refresh queued")
			}

			resp, err := client.Get(base + "/api/state")
			if err != nil {
				return fmt.Errorf("panel unreachable (is 'bist-sentinel run' running?): %w", security.RedactError(err))
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("panel returned %s", resp.Status)
			}

			if output.IsJSON() {
				var raw json.RawMessage
				if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
					return err
				}
				return output.JSON(raw)
			}

			var snap engine.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return err
			}
			renderSnapshot(output, &snap)
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "queue an immediate sweep before reading state")
	return cmd
}

func requestRefresh(client *http.Client, base, key string) error {
	target := base + "/api/refresh"
	if key != "" {
		target += "?key=" + url.QueryEscape(key)
	}
	resp, err := client.Post(target, "application/json", nil)
	if err != nil {
		return security.RedactError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("refresh rejected: bad or missing key")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("refresh failed: %s", resp.Status)
	}
	return nil
}

func renderSnapshot(output *Output, snap *engine.Snapshot) {
	output.Header("bist-sentinel  market %s  preset %s  cycle #%d (%d failures)",
		snap.Market, snap.Preset.Name, snap.Cycle.Count, snap.Cycle.LastFailures)
	output.Println()

	symbols := append([]string(nil), snap.Watchlist...)
	sort.Strings(symbols)
	output.Header("  %-8s %10s %6s %6s", "symbol", "price", "action", "score")
	for _, symbol := range symbols {
		price := snap.Prices[symbol]
		action, score := "-", 0
		if dec := snap.Decisions[symbol]; dec != nil {
			action = string(dec.Action)
			score = dec.Score
		}
		output.Printf("  %-8s %10.2f %6s %6d\n", symbol, price, output.Action(action), score)
	}

	output.Println()
	output.Printf("  risk used  %s  (%d open positions)\n", utils.FormatTRY(snap.Risk.DailyUsedRisk), len(snap.Risk.OpenPositions))
	for symbol, pos := range snap.Risk.OpenPositions {
		output.Printf("    %-8s entry %.2f  stop %.2f  lot %d/%d  pnl %s\n",
			symbol, pos.EntryPrice, pos.TrailingStop, pos.LotOpen, pos.LotTotal,
			output.Signed("%+.2f", pos.RealizedPnL))
	}

	perf := snap.Performance
	output.Printf("  today      %d closed, %d partial exits, %d wins / %d losses, realized %s\n",
		perf.ClosedTrades, perf.PartialExits, perf.Wins, perf.Losses,
		output.Signed("%+.2f", perf.DailyRealizedPnL))
}
