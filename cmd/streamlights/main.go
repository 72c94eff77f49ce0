package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/app"
	"github.com/dokzlo13/streamlights/internal/config"
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	var rehearse rehearseFlag
	flag.Var(&rehearse, "rehearse", "Replay synthetic alerts after start-up (optionally =script.lua)")
	flag.Parse()

	// .env values feed ${VAR} expansion in the config
	if err := loadDotEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.UseJSON, cfg.Log.Colors)

	log.Info().Str("config", configPath).Msg("Starting streamlights")

	// Create application
	application, err := app.New(cfg, app.Options{
		Rehearse:       rehearse.enabled,
		RehearseScript: rehearse.script,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// rehearseFlag accepts both --rehearse and --rehearse=script.lua
type rehearseFlag struct {
	enabled bool
	script  string
}

func (f *rehearseFlag) String() string {
	if f == nil || !f.enabled {
		return ""
	}
	return f.script
}

func (f *rehearseFlag) Set(value string) error {
	switch value {
	case "true":
		f.enabled, f.script = true, ""
	case "false":
		f.enabled, f.script = false, ""
	default:
		f.enabled, f.script = true, value
	}
	return nil
}

func (f *rehearseFlag) IsBoolFlag() bool { return true }

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
