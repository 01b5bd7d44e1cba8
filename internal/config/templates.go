package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# BIST Sentinel Configuration

[account]
# Simulated account size in TRY
size = 100000.0
# Capital at risk per new position, percent of account
risk_percent = 1.0
# Capital at risk allowed per calendar day, percent of account
daily_risk_cap_percent = 3.0

[risk]
# Allowed stop distance band, as a fraction of entry price
min_stop_distance = 0.01
max_stop_distance = 0.08
# Position caps
max_active_positions = 5
max_positions_per_sector = 2
# Fraction of the lot closed at target1
partial_tp1_ratio = 0.5
# Trailing stop distance once TP1 is done
trailing_stop_percent = 0.03

[engine]
# Strategy preset: Aggressive, Balanced or Conservative
preset = "Balanced"
# Symbols swept every cycle
watchlist = ["FROTO", "TUPRS", "ASELS", "MGROS", "THYAO", "EREGL"]
# Cycle interval in seconds while BIST is open / closed
refresh_open_sec = 180
refresh_closed_sec = 900
# Headlines older than this never influence the news score
news_lookback_hours = 72
# Index used for the market regime factor
regime_symbol = "XU100"

[marketdata]
# TwelveData API key; the TWELVEDATA_API_KEY env var overrides this
api_key = ""
base_url = "https://api.twelvedata.com"
# Free tier is credit-limited
rate_per_minute = 8.0
timeout_sec = 15

[server]
# Local panel API
enabled = true
listen = "127.0.0.1:8787"
# Key required by /api/refresh; the WEBHOOK_SECRET env var overrides this
refresh_key = ""

[storage]
# sqlite database; empty disables persistence
path = ""

[notifications]
enabled = true
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.telegram]
enabled = false
# The TELEGRAM_TOKEN / TELEGRAM_CHAT_ID env vars override these
bot_token = ""
chat_id = ""

[notifications.webhook]
enabled = false
url = ""

[logging]
level = "info"
console = true
file = true
# Empty uses ~/.config/bist-sentinel/logs/sentinel.log
path = ""

# Static price alarms with re-arm semantics, one table per symbol.
# [alarms.FROTO]
# below = 95.0
# above = 120.0
`

// WriteTemplate writes a commented config template into configDir.
func WriteTemplate(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
