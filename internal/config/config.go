package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Reconnect controls the bounded reconnection loop of the bus client.
type Reconnect struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

type Config struct {
	BusURL      string
	APIBaseURL  string
	HistoryFile string
	MediaPath   string
	Token       string
	Reconnect   Reconnect
}

func Load(cliMode bool) (*Config, error) {
	initialDelay, err := time.ParseDuration(getEnv("RECONNECT_INITIAL_DELAY", "1s"))
	if err != nil {
		return nil, err
	}

	maxAttempts, err := strconv.Atoi(getEnv("RECONNECT_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, err
	}

	multiplier, err := strconv.ParseFloat(getEnv("RECONNECT_BACKOFF_MULTIPLIER", "2"), 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BusURL:      getEnv("WHATUBE_BUS_URL", "ws://localhost:3010/ws"),
		APIBaseURL:  getEnv("WHATUBE_API_URL", "http://localhost:3010/api"),
		HistoryFile: getEnv("WHATUBE_HISTORY_DB", "whatube.db"),
		MediaPath:   getEnv("WHATUBE_MEDIA_PATH", "media"),
		Token:       os.Getenv("WHATUBE_TOKEN"),
		Reconnect: Reconnect{
			MaxAttempts:       maxAttempts,
			InitialDelay:      initialDelay,
			BackoffMultiplier: multiplier,
		},
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.Token == "" && !cliMode {
		return fmt.Errorf("WHATUBE_TOKEN is required")
	}

	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative")
	}

	if c.Reconnect.BackoffMultiplier < 1 {
		return fmt.Errorf("RECONNECT_BACKOFF_MULTIPLIER must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
