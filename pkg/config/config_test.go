package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8089" {
		t.Errorf("Expected Port to be 8089, got %s", cfg.Port)
	}

	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.Market.SnapshotTTL != 30*time.Second {
		t.Errorf("Expected SnapshotTTL to be 30s, got %v", cfg.Market.SnapshotTTL)
	}

	if cfg.Market.HistoryTTL != time.Hour {
		t.Errorf("Expected HistoryTTL to be 1h, got %v", cfg.Market.HistoryTTL)
	}

	if cfg.Forecast.DefaultHorizon != 365 {
		t.Errorf("Expected DefaultHorizon to be 365, got %d", cfg.Forecast.DefaultHorizon)
	}

	if len(cfg.Market.Symbols) != len(DefaultSymbols) {
		t.Errorf("Expected %d default symbols, got %d", len(DefaultSymbols), len(cfg.Market.Symbols))
	}

	if cfg.Database.Enabled() {
		t.Error("Expected database to be disabled without DATABASE_URL")
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("SNAPSHOT_TTL", "45s")
	t.Setenv("SYMBOLS", "aapl, MSFT ,,NVDA")
	t.Setenv("FORECAST_HORIZON", "90")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected Port to be 9000, got %s", cfg.Port)
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be production, got %s", cfg.Env)
	}

	if cfg.Market.SnapshotTTL != 45*time.Second {
		t.Errorf("Expected SnapshotTTL to be 45s, got %v", cfg.Market.SnapshotTTL)
	}

	if len(cfg.Market.Symbols) != 3 || cfg.Market.Symbols[1] != "MSFT" {
		t.Errorf("Expected 3 trimmed symbols, got %v", cfg.Market.Symbols)
	}

	if cfg.Forecast.DefaultHorizon != 90 {
		t.Errorf("Expected DefaultHorizon to be 90, got %d", cfg.Forecast.DefaultHorizon)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid env", "ENV", "qa"},
		{"horizon above max", "FORECAST_HORIZON", "400"},
		{"horizon below min", "FORECAST_HORIZON", "10"},
		{"unknown yield unit", "YIELD_UNIT", "bps"},
		{"interval width out of range", "FORECAST_INTERVAL_WIDTH", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoadSymbolsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.yaml")
	content := "symbols:\n  - aapl\n  - MSFT\n  - AAPL\n  - \"\"\n  - nvda\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadSymbolsFile(path)
	if err != nil {
		t.Fatalf("LoadSymbolsFile() failed: %v", err)
	}

	want := []string{"AAPL", "MSFT", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLoadSymbolsFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("symbols: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSymbolsFile(path); err == nil {
		t.Error("Expected error for empty universe, got nil")
	}
}

func TestSymbolsFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.yaml")
	if err := os.WriteFile(path, []byte("symbols: [ko, pep]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYMBOLS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(cfg.Market.Symbols) != 2 || cfg.Market.Symbols[0] != "KO" {
		t.Errorf("Expected [KO PEP], got %v", cfg.Market.Symbols)
	}
}
