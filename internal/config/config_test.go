package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.MonitorEnabled {
		t.Error("MonitorEnabled defaults to true")
	}
	if cfg.RenderDir != "./renders" || cfg.RecordDir != "./recordings" {
		t.Errorf("dirs = %q, %q", cfg.RenderDir, cfg.RecordDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DECKWAVE_PORT", "9090")
	t.Setenv("DECKWAVE_MONITOR", "true")
	t.Setenv("DECKWAVE_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if !cfg.MonitorEnabled {
		t.Error("MonitorEnabled not read from env")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DECKWAVE_PORT", "not-a-number")
	t.Setenv("DECKWAVE_MONITOR", "maybe")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("malformed port: got %d, want fallback 8080", cfg.Port)
	}
	if cfg.MonitorEnabled {
		t.Error("malformed bool: want fallback false")
	}
}
