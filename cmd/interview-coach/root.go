package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/user/interview-coach/internal/config"
	"github.com/user/interview-coach/internal/heuristics"
	"github.com/user/interview-coach/internal/store"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "interview-coach",
	Short: "Voice mock-interview server",
	Long: `interview-coach runs spoken mock interviews over WebSocket.

Commands:
  serve    - start the interview server
  summary  - print the scorecard of a stored session`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

// loadConfig reads the environment and configures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Str("level", level).Msg("Logging configured")
}

// openStore picks the in-memory store for DB_PATH=":memory:" and SQLite
// otherwise.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DBPath == ":memory:" {
		log.Warn().Msg("Using in-memory store, sessions will not survive a restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(cfg.DBPath)
}

func loadVocabulary(cfg *config.Config) (*heuristics.Vocabulary, error) {
	if cfg.FillerVocabFile == "" {
		return heuristics.DefaultVocabulary(), nil
	}
	vocab, err := heuristics.LoadVocabulary(cfg.FillerVocabFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load filler vocabulary: %w", err)
	}
	log.Info().Str("path", cfg.FillerVocabFile).Msg("Loaded filler vocabulary")
	return vocab, nil
}
