// Command playlog polls Spotify for the user's recently played tracks,
// enriches them with track/artist/album metadata, and stores everything in
// a local PostgreSQL database. It can also run a one-time bulk import from
// a GDPR data export before polling starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kwehner/playlog/internal/auth"
	"github.com/kwehner/playlog/internal/config"
	"github.com/kwehner/playlog/internal/db"
	"github.com/kwehner/playlog/internal/gdpr"
	"github.com/kwehner/playlog/internal/logging"
	"github.com/kwehner/playlog/internal/pipeline"
	"github.com/kwehner/playlog/internal/resolver"
	"github.com/kwehner/playlog/internal/spotify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	exportFlag := flag.Bool("export", false, "import the GDPR data export before polling")
	exportLimit := flag.Int("export-limit", gdpr.DefaultImportLimit, "number of most recent export records to import")
	interval := flag.Duration("interval", 0, "polling interval, overriding POLL_INTERVAL")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *interval > 0 {
		cfg.PollInterval = *interval
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.LogPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		return err
	}

	manager := auth.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.RedirectURI, database.Credentials(), logger)
	client := spotify.New(logger)
	passes := pipeline.SpotifyPasses(database, client)
	pipe := pipeline.New(manager, client, database.Plays(), resolver.New(logger), passes, logger)

	if *exportFlag {
		importer := gdpr.NewImporter(manager, client, database.Plays(), logger)
		inserted, err := importer.Import(ctx, cfg.ExportDir, *exportLimit)
		if err != nil {
			return fmt.Errorf("bulk import: %w", err)
		}
		logger.Info("imported play events from export", zap.Int("inserted", inserted))

		// Enrich the imported events right away instead of waiting for
		// the first poll cycle.
		if err := pipe.ResolveAll(ctx); err != nil {
			logger.Error("post-import resolution failed", zap.Error(err))
		}
	}

	if *verbose {
		logOverview(ctx, database, logger)
	}

	logger.Info("starting polling loop", zap.Duration("interval", cfg.PollInterval))
	pipe.Loop(ctx, cfg.PollInterval)
	return nil
}

// logOverview prints a short enriched summary of the stored history.
func logOverview(ctx context.Context, database *db.DB, logger *zap.Logger) {
	total, err := database.Plays().Count(ctx)
	if err != nil {
		logger.Warn("reading play count", zap.Error(err))
		return
	}
	logger.Debug("stored play events", zap.Int("total", total))

	details, err := database.Plays().Overview(ctx, 10)
	if err != nil {
		logger.Warn("reading play overview", zap.Error(err))
		return
	}
	for _, d := range details {
		logger.Debug("recent play",
			zap.Time("played_at", d.PlayedAt),
			zap.String("track", d.Title),
			zap.String("artist", d.ArtistName),
			zap.String("album", d.AlbumName))
	}
}
