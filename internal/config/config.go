package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level static configuration for the ingestion engine,
// loaded once at process start. The per-process mutable documents
// (intervals.json, tickers.json, storage_config.json, migration_plan.json)
// are owned by Service, not this struct.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Posttrade PosttradeConfig `yaml:"posttrade"`
	OHLCV     OHLCVConfig     `yaml:"ohlcv"`
	Logging   Logging         `yaml:"logging"`
	OpsAPI    OpsAPIConfig    `yaml:"ops_api"`
}

// Storage holds the workspace root all data, lock, and JSON documents live
// under.
type Storage struct {
	DataDir string `yaml:"data_dir"`
}

// PosttradeConfig configures the exchange posttrade-drop fetcher (C5/C6).
type PosttradeConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Venue             string  `yaml:"venue"`
	Market            string  `yaml:"market"`
	Source            string  `yaml:"source"`
	InterRequestDelay float64 `yaml:"inter_request_delay_seconds"`
	BurstSize         int     `yaml:"burst_size"`
	BurstCooldown     float64 `yaml:"burst_cooldown_seconds"`
	ActiveHours       string  `yaml:"active_hours"`
	MarketTimezone    string  `yaml:"market_timezone"`
}

// OHLCVConfig configures the ticker-centric OHLCV fetch path (C7/C8/C9).
type OHLCVConfig struct {
	Market            string   `yaml:"market"`
	Source            string   `yaml:"source"`
	Dataset           string   `yaml:"dataset"`
	Intervals         []string `yaml:"intervals"`
	StartDate         string   `yaml:"start_date"`
	ActiveHours       string   `yaml:"active_hours"`
	MarketTimezone    string   `yaml:"market_timezone"`
	ProviderURL       string   `yaml:"provider_url"`
	TickerListPath    string   `yaml:"ticker_list_path"`
	TickerMaintenance string   `yaml:"ticker_maintenance"`
	AlpacaAPIKey      string   `yaml:"alpaca_api_key"`
	AlpacaAPISecret   string   `yaml:"alpaca_api_secret"`
	AlpacaDataURL     string   `yaml:"alpaca_data_url"`
	AlpacaBaseURL     string   `yaml:"alpaca_base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpsAPIConfig configures the read-only operator status HTTP surface.
type OpsAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETVAULT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MARKETVAULT_POSTTRADE_BASE_URL"); v != "" {
		cfg.Posttrade.BaseURL = v
	}
	if v := os.Getenv("MARKETVAULT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MARKETVAULT_OPS_API_ADDR"); v != "" {
		cfg.OpsAPI.Addr = v
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.OHLCV.AlpacaAPIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.OHLCV.AlpacaAPISecret = v
	}
}
