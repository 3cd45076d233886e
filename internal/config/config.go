package config

import (
	"os"

	"github.com/joho/godotenv"

	"guildstats/internal/database"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken   string
	DatabaseDriver string
	DatabaseDSN    string
	HTTPAddr       string
	MetricsAddr    string
	LogLevel       string
	LogFormat      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	config := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", database.DriverSQLite),
		DatabaseDSN:    getEnv("DATABASE_DSN", "stats.sqlite"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDriver == database.DriverPostgres && config.DatabaseDSN == "stats.sqlite" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required for the postgres driver"}
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
