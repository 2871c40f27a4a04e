package config

import (
	"fmt"
	"os"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	PanelBaseURL   string
	PanelToken     string
	LogLevel       string
	PrometheusPort string
	MigrationsPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
	}

	// Required environment variables
	if cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN"); cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN environment variable is required")
	}

	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if cfg.PanelBaseURL = os.Getenv("PANEL_BASE_URL"); cfg.PanelBaseURL == "" {
		return nil, fmt.Errorf("PANEL_BASE_URL environment variable is required")
	}

	// The panel rejects unauthenticated calls, so an empty token is a
	// deployment mistake worth failing fast on.
	if cfg.PanelToken = os.Getenv("PANEL_TOKEN"); cfg.PanelToken == "" {
		return nil, fmt.Errorf("PANEL_TOKEN environment variable is required")
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
