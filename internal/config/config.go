package config

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration, loaded from environment
// variables.
type Config struct {
	// Server
	Port int

	// Monitor/cue output through the local audio device
	MonitorEnabled bool

	// Prerender output directory
	RenderDir string

	// Recording output directory
	RecordDir string

	// Log level: debug, info, warn, error
	LogLevel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:           envInt("DECKWAVE_PORT", 8080),
		MonitorEnabled: envBool("DECKWAVE_MONITOR", false),
		RenderDir:      envStr("DECKWAVE_RENDER_DIR", "./renders"),
		RecordDir:      envStr("DECKWAVE_RECORD_DIR", "./recordings"),
		LogLevel:       envStr("DECKWAVE_LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
