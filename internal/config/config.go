// Package config provides configuration management for the alert engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"bist-sentinel/internal/models"
	"bist-sentinel/internal/security"
)

// Config holds all application configuration.
type Config struct {
	Account       AccountConfig               `mapstructure:"account"`
	Risk          RiskConfig                  `mapstructure:"risk"`
	Engine        EngineConfig                `mapstructure:"engine"`
	MarketData    MarketDataConfig            `mapstructure:"marketdata"`
	Server        ServerConfig                `mapstructure:"server"`
	Storage       StorageConfig               `mapstructure:"storage"`
	Notifications NotificationConfig          `mapstructure:"notifications"`
	Logging       LoggingConfig               `mapstructure:"logging"`
	Alarms        map[string]models.AlarmBand `mapstructure:"alarms"`
}

// AccountConfig sizes the simulated account the risk rules run against.
type AccountConfig struct {
	Size                float64 `mapstructure:"size"`
	RiskPercent         float64 `mapstructure:"risk_percent"`
	DailyRiskCapPercent float64 `mapstructure:"daily_risk_cap_percent"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	MinStopDistance       float64 `mapstructure:"min_stop_distance"`
	MaxStopDistance       float64 `mapstructure:"max_stop_distance"`
	MaxActivePositions    int     `mapstructure:"max_active_positions"`
	MaxPositionsPerSector int     `mapstructure:"max_positions_per_sector"`
	PartialTP1Ratio       float64 `mapstructure:"partial_tp1_ratio"`
	TrailingStopPercent   float64 `mapstructure:"trailing_stop_percent"`
}

// EngineConfig paces the monitor loop and selects the strategy preset.
type EngineConfig struct {
	Preset            string   `mapstructure:"preset"`
	Watchlist         []string `mapstructure:"watchlist"`
	RefreshOpenSec    int      `mapstructure:"refresh_open_sec"`
	RefreshClosedSec  int      `mapstructure:"refresh_closed_sec"`
	NewsLookbackHours int      `mapstructure:"news_lookback_hours"`
	RegimeSymbol      string   `mapstructure:"regime_symbol"`
}

// MarketDataConfig holds the data provider settings.
type MarketDataConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	TimeoutSec    int     `mapstructure:"timeout_sec"`
}

// ServerConfig holds the panel server settings.
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Listen     string `mapstructure:"listen"`
	RefreshKey string `mapstructure:"refresh_key"`
}

// StorageConfig locates the sqlite database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/bist-sentinel"
	}
	return filepath.Join(home, ".config", "bist-sentinel")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if werr := WriteTemplate(configDir); werr != nil {
				return werr
			}
			return fmt.Errorf("config file not found, created template at %s",
				filepath.Join(configDir, "config.toml"))
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("account.size", 100000.0)
	v.SetDefault("account.risk_percent", 1.0)
	v.SetDefault("account.daily_risk_cap_percent", 3.0)

	v.SetDefault("risk.min_stop_distance", 0.01)
	v.SetDefault("risk.max_stop_distance", 0.08)
	v.SetDefault("risk.max_active_positions", 5)
	v.SetDefault("risk.max_positions_per_sector", 2)
	v.SetDefault("risk.partial_tp1_ratio", 0.5)
	v.SetDefault("risk.trailing_stop_percent", 0.03)

	v.SetDefault("engine.preset", "Balanced")
	v.SetDefault("engine.watchlist", []string{"FROTO", "TUPRS", "ASELS", "MGROS", "THYAO", "EREGL"})
	v.SetDefault("engine.refresh_open_sec", 180)
	v.SetDefault("engine.refresh_closed_sec", 900)
	v.SetDefault("engine.news_lookback_hours", 72)
	v.SetDefault("engine.regime_symbol", "XU100")

	v.SetDefault("marketdata.base_url", "https://api.twelvedata.com")
	v.SetDefault("marketdata.rate_per_minute", 8.0)
	v.SetDefault("marketdata.timeout_sec", 15)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8787")

	v.SetDefault("storage.path", filepath.Join(configDir, "sentinel.db"))

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "sentinel.log"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		cfg.MarketData.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.RefreshKey = v
	}
	if v := os.Getenv("CHECK_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Engine.RefreshOpenSec = sec
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Account.Size <= 0 {
		return fmt.Errorf("account size must be positive")
	}
	if c.Account.RiskPercent <= 0 || c.Account.RiskPercent > 10 {
		return fmt.Errorf("risk_percent must be in (0, 10]")
	}
	if c.Account.DailyRiskCapPercent < c.Account.RiskPercent {
		return fmt.Errorf("daily_risk_cap_percent must be at least risk_percent")
	}
	if c.Risk.MinStopDistance <= 0 || c.Risk.MaxStopDistance <= c.Risk.MinStopDistance {
		return fmt.Errorf("stop distance band must satisfy 0 < min < max")
	}
	if c.Risk.MaxStopDistance > 0.2 {
		return fmt.Errorf("max_stop_distance above 20%% is not usable")
	}
	if c.Risk.MaxActivePositions < 1 || c.Risk.MaxPositionsPerSector < 1 {
		return fmt.Errorf("position caps must be at least 1")
	}
	if c.Risk.PartialTP1Ratio <= 0 || c.Risk.PartialTP1Ratio > 1 {
		return fmt.Errorf("partial_tp1_ratio must be in (0, 1]")
	}
	if c.Risk.TrailingStopPercent <= 0 || c.Risk.TrailingStopPercent > 0.2 {
		return fmt.Errorf("trailing_stop_percent must be in (0, 0.2]")
	}
	if err := security.ValidateWatchlist(c.Engine.Watchlist); err != nil {
		return err
	}
	if c.Engine.RegimeSymbol != "" {
		if err := security.ValidateSymbol(c.Engine.RegimeSymbol); err != nil {
			return err
		}
	}
	if _, ok := PresetByName(c.Engine.Preset); !ok {
		return fmt.Errorf("unknown preset: %s", c.Engine.Preset)
	}
	if c.Engine.RefreshOpenSec < 10 || c.Engine.RefreshClosedSec < 10 {
		return fmt.Errorf("refresh intervals must be at least 10 seconds")
	}
	for symbol, band := range c.Alarms {
		if band.Below < 0 || band.Above < 0 {
			return fmt.Errorf("alarm levels for %s must be non-negative", symbol)
		}
		if band.Below > 0 && band.Above > 0 && band.Below >= band.Above {
			return fmt.Errorf("alarm band for %s must satisfy below < above", symbol)
		}
	}
	return nil
}

// RiskPerTrade returns the capital at risk allowed per new position.
func (c *Config) RiskPerTrade() float64 {
	return c.Account.Size * c.Account.RiskPercent / 100
}

// DailyRiskBudget returns the capital at risk allowed per calendar day.
func (c *Config) DailyRiskBudget() float64 {
	return c.Account.Size * c.Account.DailyRiskCapPercent / 100
}

// RefreshInterval returns the monitor cycle interval for the given
// market state.
func (c *Config) RefreshInterval(marketOpen bool) time.Duration {
	if marketOpen {
		return time.Duration(c.Engine.RefreshOpenSec) * time.Second
	}
	return time.Duration(c.Engine.RefreshClosedSec) * time.Second
}

// ActivePreset resolves the configured preset, falling back to
// Balanced for unknown names.
func (c *Config) ActivePreset() models.StrategyPreset {
	if preset, ok := PresetByName(c.Engine.Preset); ok {
		return preset
	}
	preset, _ := PresetByName("Balanced")
	return preset
}

// DefaultPresets returns the three canonical strategy presets in
// declaration order: Aggressive, Balanced, Conservative.
func DefaultPresets() []models.StrategyPreset {
	return []models.StrategyPreset{
		{
			Name:          "Aggressive",
			BuyThreshold:  65,
			SellThreshold: 35,
			Weights:       models.FactorWeights{Technical: 0.50, Fundamental: 0.15, News: 0.20, Regime: 0.15},
			AlertCooldown: 30 * time.Minute,
		},
		{
			Name:          "Balanced",
			BuyThreshold:  72,
			SellThreshold: 30,
			Weights:       models.FactorWeights{Technical: 0.45, Fundamental: 0.25, News: 0.20, Regime: 0.10},
			AlertCooldown: 45 * time.Minute,
		},
		{
			Name:          "Conservative",
			BuyThreshold:  78,
			SellThreshold: 25,
			Weights:       models.FactorWeights{Technical: 0.40, Fundamental: 0.30, News: 0.15, Regime: 0.15},
			AlertCooldown: 60 * time.Minute,
		},
	}
}

// PresetByName looks up a canonical preset.
func PresetByName(name string) (models.StrategyPreset, bool) {
	for _, preset := range DefaultPresets() {
		if preset.Name == name {
			return preset, true
		}
	}
	return models.StrategyPreset{}, false
}
