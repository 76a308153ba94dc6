// Package pipeline orchestrates one polling cycle: authenticate, fetch the
// latest play events, persist them, then resolve missing catalog records
// for each entity kind.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kwehner/playlog/internal/auth"
	"github.com/kwehner/playlog/internal/db"
	"github.com/kwehner/playlog/internal/resolver"
	"github.com/kwehner/playlog/internal/spotify"
)

// TokenSource supplies bearer tokens. Implemented by auth.Manager.
type TokenSource interface {
	AppToken(ctx context.Context) (string, error)
	UserToken(ctx context.Context, scope string) (string, error)
}

// HistorySource supplies recently-played events. Implemented by
// spotify.Client.
type HistorySource interface {
	RecentlyPlayed(ctx context.Context, token string, limit int) ([]spotify.PlayItem, error)
}

// PlayStore persists play events. Implemented by db.PlayRepository.
type PlayStore interface {
	Insert(ctx context.Context, play db.Play) (bool, error)
}

// Pipeline runs polling cycles.
type Pipeline struct {
	tokens   TokenSource
	history  HistorySource
	plays    PlayStore
	resolver *resolver.Resolver
	passes   []resolver.Pass
	log      *zap.Logger
}

// New creates a Pipeline.
func New(tokens TokenSource, history HistorySource, plays PlayStore, res *resolver.Resolver, passes []resolver.Pass, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		tokens:   tokens,
		history:  history,
		plays:    plays,
		resolver: res,
		passes:   passes,
		log:      logger,
	}
}

// Run executes one cycle. An authentication failure aborts immediately; a
// history fetch failure aborts the resolution steps for this cycle only.
// The next scheduled cycle retries on its own, so no retry state is kept.
func (p *Pipeline) Run(ctx context.Context) error {
	token, err := p.tokens.UserToken(ctx, auth.ScopeRecentlyPlayed)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	items, err := p.history.RecentlyPlayed(ctx, token, spotify.MaxRecentlyPlayed)
	if err != nil {
		return fmt.Errorf("fetching play history: %w", err)
	}

	// The provider returns newest first; insert oldest first so the event
	// log grows monotonically.
	inserted := 0
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		ok, err := p.plays.Insert(ctx, db.Play{
			PlayedAt: item.PlayedAt,
			TrackID:  item.TrackID,
			ArtistID: item.ArtistID,
			AlbumID:  item.AlbumID,
		})
		if err != nil {
			p.log.Warn("failed to store play event",
				zap.Time("played_at", item.PlayedAt),
				zap.String("track_id", item.TrackID),
				zap.Error(err))
			continue
		}
		if ok {
			inserted++
		}
	}

	p.log.Info("persisted play events",
		zap.Int("fetched", len(items)),
		zap.Int("new", inserted))

	return p.ResolveAll(ctx)
}

// ResolveAll runs one resolution pass per entity kind. Passes are
// independent: a failed pass is logged and the remaining ones still run.
func (p *Pipeline) ResolveAll(ctx context.Context) error {
	token, err := p.tokens.AppToken(ctx)
	if err != nil {
		return fmt.Errorf("authenticating for resolution: %w", err)
	}

	for _, pass := range p.passes {
		stats, err := p.resolver.Run(ctx, token, pass)
		if err != nil {
			p.log.Warn("resolution pass failed",
				zap.Stringer("entity", pass.Entity),
				zap.Error(err))
			continue
		}
		p.log.Info("resolution pass complete",
			zap.Stringer("entity", pass.Entity),
			zap.Int("missing", stats.Missing),
			zap.Int("inserted", stats.Inserted),
			zap.Int("failed_chunks", stats.FailedChunks))
	}
	return nil
}

// Loop runs cycles on a fixed interval until the context is canceled. One
// cycle runs immediately; a long cycle simply delays the next one, since
// execution is single-threaded.
func (p *Pipeline) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Run(ctx); err != nil {
			p.log.Error("polling cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
