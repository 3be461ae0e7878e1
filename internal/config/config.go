package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	ListenAddr    string
	TickInterval  time.Duration
	SendRetries   int
	PluginVersion string

	// Optional backends, disabled when empty
	NatsURL   string
	RedisAddr string
	DBConnStr string

	HistoryEvery int
	WireLogDir   string
	LogFile      string
	AircraftTTL  time.Duration
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", "0.0.0.0:12345"),
		PluginVersion: getEnv("PLUGIN_VERSION", "3.2.0"),
		NatsURL:       os.Getenv("NATS_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		DBConnStr:     os.Getenv("DB_CONN_STR"),
		WireLogDir:    os.Getenv("WIRE_LOG_DIR"),
		LogFile:       os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.TickInterval, err = getDuration("TICK_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.AircraftTTL, err = getDuration("AIRCRAFT_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendRetries, err = getInt("SEND_RETRIES", 50); err != nil {
		return nil, err
	}
	if cfg.HistoryEvery, err = getInt("HISTORY_EVERY", 10); err != nil {
		return nil, err
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.SendRetries < 0 {
		return nil, fmt.Errorf("SEND_RETRIES must not be negative, got %d", cfg.SendRetries)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
