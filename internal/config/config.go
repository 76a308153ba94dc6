// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when SPOTIFY_CLIENT_ID or
// SPOTIFY_CLIENT_SECRET is not set.
var ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET environment variable")

// Config holds all runtime settings. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	// RedirectURI uses explicit IPv4 loopback as required by Spotify for
	// local development.
	RedirectURI string `env:"SPOTIFY_REDIRECT_URI" envDefault:"http://127.0.0.1:8888/callback"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/playlog"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30m"`

	// ExportDir is the directory holding GDPR streaming-history JSON files.
	ExportDir string `env:"EXPORT_DIR" envDefault:"data/gdpr_data"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath  string `env:"LOG_PATH"`
}

// Load reads a .env file if one exists and parses the environment into a
// Config. Returns ErrMissingCredentials when the Spotify application
// credentials are absent.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	return &cfg, nil
}
