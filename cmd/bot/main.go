package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"guildstats/internal/api"
	"guildstats/internal/config"
	"guildstats/internal/database"
	"guildstats/internal/discord"
	"guildstats/internal/metrics"
	"guildstats/internal/stats"
	"guildstats/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logger := setupLogger(cfg)
	log.Logger = logger

	// Initialize database
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	logger.Info().
		Str("driver", cfg.DatabaseDriver).
		Msg("Database initialized")

	// Create repository, tracker and stats service
	repository := database.NewRepository(db)
	activityTracker := tracker.New(repository, logger)
	statsService := stats.NewService(repository, logger)

	// Initialize Discord bot
	bot, err := discord.New(cfg.DiscordToken, activityTracker, statsService, repository, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Discord bot")
	}

	if err := bot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start bot")
	}
	defer bot.Stop()

	// Start HTTP API
	apiServer := api.NewServer(cfg.HTTPAddr, statsService, repository, logger)
	if err := apiServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start API server")
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start metrics server")
	}

	logger.Info().Msg("guildstats is running")

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info().Msg("Shutting down")

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}
}

// setupLogger configures the root logger from config
func setupLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
