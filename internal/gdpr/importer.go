package gdpr

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kwehner/playlog/internal/db"
	"github.com/kwehner/playlog/internal/resolver"
	"github.com/kwehner/playlog/internal/spotify"
)

// AppTokenSource supplies app-scoped tokens. Implemented by auth.Manager.
type AppTokenSource interface {
	AppToken(ctx context.Context) (string, error)
}

// TrackLookup resolves which album and primary artist each track
// references. Implemented by spotify.Client.
type TrackLookup interface {
	TrackRefs(ctx context.Context, token string, ids []string) (map[string]spotify.TrackRef, error)
}

// PlayStore persists play events. Implemented by db.PlayRepository.
type PlayStore interface {
	Insert(ctx context.Context, play db.Play) (bool, error)
}

// Importer turns export records into stored play events.
type Importer struct {
	tokens AppTokenSource
	lookup TrackLookup
	plays  PlayStore
	log    *zap.Logger
}

// NewImporter creates an Importer.
func NewImporter(tokens AppTokenSource, lookup TrackLookup, plays PlayStore, logger *zap.Logger) *Importer {
	return &Importer{
		tokens: tokens,
		lookup: lookup,
		plays:  plays,
		log:    logger,
	}
}

// Import reads the export in dir, keeps the most recent limit records,
// derives the artist and album IDs their tracks reference, and persists
// them as play events in ascending timestamp order. Returns how many
// events were newly inserted. Records whose track the provider no longer
// knows are skipped and logged.
func (imp *Importer) Import(ctx context.Context, dir string, limit int) (int, error) {
	records, err := ReadDir(dir, imp.log)
	if err != nil {
		return 0, err
	}
	records = Latest(records, limit)
	if len(records) == 0 {
		return 0, nil
	}

	token, err := imp.tokens.AppToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("authenticating for import: %w", err)
	}

	refs, err := imp.resolveRefs(ctx, token, records)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, rec := range records {
		ref, ok := refs[rec.TrackID]
		if !ok {
			imp.log.Warn("skipping export record with unresolvable track",
				zap.String("track_id", rec.TrackID),
				zap.String("track_name", rec.TrackName))
			continue
		}

		ok, err := imp.plays.Insert(ctx, db.Play{
			PlayedAt: rec.PlayedAt,
			TrackID:  rec.TrackID,
			ArtistID: ref.ArtistID,
			AlbumID:  ref.AlbumID,
		})
		if err != nil {
			imp.log.Warn("failed to store imported play",
				zap.Time("played_at", rec.PlayedAt),
				zap.String("track_id", rec.TrackID),
				zap.Error(err))
			continue
		}
		if ok {
			inserted++
		}
	}

	imp.log.Info("bulk import complete",
		zap.Int("records", len(records)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// resolveRefs bulk-fetches the unique track IDs in records, within the
// track endpoint's batch limit, and maps each to its referenced artist and
// album. A failed chunk is logged and skipped; its records are dropped
// from this import.
func (imp *Importer) resolveRefs(ctx context.Context, token string, records []Record) (map[string]spotify.TrackRef, error) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.TrackID)
	}
	unique := resolver.Missing(ids, nil)

	refs := make(map[string]spotify.TrackRef, len(unique))
	for _, chunk := range resolver.Chunks(unique, resolver.Tracks.BatchLimit()) {
		chunkRefs, err := imp.lookup.TrackRefs(ctx, token, chunk)
		if err != nil {
			imp.log.Warn("skipping failed track lookup chunk",
				zap.Int("ids", len(chunk)),
				zap.Error(err))
			continue
		}
		for id, ref := range chunkRefs {
			refs[id] = ref
		}
	}
	return refs, nil
}
