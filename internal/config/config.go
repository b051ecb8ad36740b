// Package config reads the bot configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all bot configuration.
type Config struct {
	BotToken          string
	AdminID           int64
	DBPath            string
	HTTPAddr          string
	PuzzleMaxAttempts int
	ChatRatePerMinute int
	// RandSeed 0 means seed from the clock.
	RandSeed uint64
}

// Load reads configuration from environment variables, after merging any
// of the given env files. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	adminID, err := strconv.ParseInt(strings.TrimSpace(getEnv("ADMIN_ID", "")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_ID: %w", err)
	}

	seed, err := strconv.ParseUint(strings.TrimSpace(getEnv("RAND_SEED", "0")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RAND_SEED: %w", err)
	}

	cfg := &Config{
		BotToken:          getEnv("BOT_TOKEN", ""),
		AdminID:           adminID,
		DBPath:            getEnv("DB_PATH", "puzzle.db"),
		HTTPAddr:          getEnv("HTTP_ADDR", DefaultHTTPAddr),
		PuzzleMaxAttempts: getEnvInt("PUZZLE_MAX_ATTEMPTS", 5),
		ChatRatePerMinute: getEnvInt("CHAT_RATE_PER_MINUTE", 30),
		RandSeed:          seed,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	if c.AdminID <= 0 {
		return fmt.Errorf("ADMIN_ID must be a positive Telegram user id")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.PuzzleMaxAttempts <= 0 {
		return fmt.Errorf("PUZZLE_MAX_ATTEMPTS must be > 0")
	}
	if c.ChatRatePerMinute < 0 {
		return fmt.Errorf("CHAT_RATE_PER_MINUTE must be >= 0")
	}
	return nil
}

// DefaultHTTPAddr keeps the API on the loopback interface. The puzzle
// endpoint has no authentication.
const DefaultHTTPAddr = "127.0.0.1:8080"

// HTTPEnabled reports whether the health and metrics server should run.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && c.HTTPAddr != "off"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
