package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/marketvault/data"
posttrade:
  base_url: "https://www.xetra.com"
  venue: "xetr"
  market: "de"
  source: "xetra"
  inter_request_delay_seconds: 0.5
  burst_size: 10
  burst_cooldown_seconds: 5
  active_hours: "08:00-17:30"
  market_timezone: "Europe/Berlin"
ohlcv:
  market: "us"
  source: "yahoo"
  dataset: "equities"
  intervals: ["1d", "1h"]
  start_date: "2020-01-01"
  active_hours: "09:30-16:00"
  market_timezone: "America/New_York"
  provider_url: "https://query1.finance.yahoo.com"
  ticker_list_path: "/tmp/marketvault/tickers.txt"
logging:
  level: "info"
  format: "json"
ops_api:
  enabled: true
  addr: ":9091"
`)

	tmpFile, err := os.CreateTemp("", "marketvault-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	os.Unsetenv("MARKETVAULT_DATA_DIR")
	os.Unsetenv("MARKETVAULT_POSTTRADE_BASE_URL")
	os.Unsetenv("MARKETVAULT_LOG_LEVEL")
	os.Unsetenv("MARKETVAULT_OPS_API_ADDR")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/marketvault/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/marketvault/data")
	}

	if cfg.Posttrade.BaseURL != "https://www.xetra.com" {
		t.Errorf("Posttrade.BaseURL = %q, want %q", cfg.Posttrade.BaseURL, "https://www.xetra.com")
	}
	if cfg.Posttrade.Venue != "xetr" {
		t.Errorf("Posttrade.Venue = %q, want %q", cfg.Posttrade.Venue, "xetr")
	}
	if cfg.Posttrade.BurstSize != 10 {
		t.Errorf("Posttrade.BurstSize = %d, want %d", cfg.Posttrade.BurstSize, 10)
	}
	if cfg.Posttrade.MarketTimezone != "Europe/Berlin" {
		t.Errorf("Posttrade.MarketTimezone = %q, want %q", cfg.Posttrade.MarketTimezone, "Europe/Berlin")
	}

	if cfg.OHLCV.Market != "us" {
		t.Errorf("OHLCV.Market = %q, want %q", cfg.OHLCV.Market, "us")
	}
	if cfg.OHLCV.Source != "yahoo" {
		t.Errorf("OHLCV.Source = %q, want %q", cfg.OHLCV.Source, "yahoo")
	}
	if len(cfg.OHLCV.Intervals) != 2 || cfg.OHLCV.Intervals[0] != "1d" || cfg.OHLCV.Intervals[1] != "1h" {
		t.Errorf("OHLCV.Intervals = %v, want [1d 1h]", cfg.OHLCV.Intervals)
	}
	if cfg.OHLCV.ProviderURL != "https://query1.finance.yahoo.com" {
		t.Errorf("OHLCV.ProviderURL = %q, want %q", cfg.OHLCV.ProviderURL, "https://query1.finance.yahoo.com")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	if !cfg.OpsAPI.Enabled {
		t.Error("OpsAPI.Enabled = false, want true")
	}
	if cfg.OpsAPI.Addr != ":9091" {
		t.Errorf("OpsAPI.Addr = %q, want %q", cfg.OpsAPI.Addr, ":9091")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/marketvault/data"
ohlcv:
  market: "us"
  source: "alpaca"
logging:
  level: "info"
ops_api:
  addr: ":9091"
`)

	tmpFile, err := os.CreateTemp("", "marketvault-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	os.Setenv("MARKETVAULT_DATA_DIR", "/var/marketvault")
	os.Setenv("MARKETVAULT_LOG_LEVEL", "debug")
	os.Setenv("MARKETVAULT_OPS_API_ADDR", ":9999")
	os.Setenv("APCA_API_KEY_ID", "key123")
	os.Setenv("APCA_API_SECRET_KEY", "secret456")
	defer func() {
		os.Unsetenv("MARKETVAULT_DATA_DIR")
		os.Unsetenv("MARKETVAULT_LOG_LEVEL")
		os.Unsetenv("MARKETVAULT_OPS_API_ADDR")
		os.Unsetenv("APCA_API_KEY_ID")
		os.Unsetenv("APCA_API_SECRET_KEY")
	}()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/var/marketvault" {
		t.Errorf("Storage.DataDir = %q, want env override %q", cfg.Storage.DataDir, "/var/marketvault")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want env override %q", cfg.Logging.Level, "debug")
	}
	if cfg.OpsAPI.Addr != ":9999" {
		t.Errorf("OpsAPI.Addr = %q, want env override %q", cfg.OpsAPI.Addr, ":9999")
	}
	if cfg.OHLCV.AlpacaAPIKey != "key123" {
		t.Errorf("OHLCV.AlpacaAPIKey = %q, want env override %q", cfg.OHLCV.AlpacaAPIKey, "key123")
	}
	if cfg.OHLCV.AlpacaAPISecret != "secret456" {
		t.Errorf("OHLCV.AlpacaAPISecret = %q, want env override %q", cfg.OHLCV.AlpacaAPISecret, "secret456")
	}
}
