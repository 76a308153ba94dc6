package pipeline

import (
	"context"

	"github.com/kwehner/playlog/internal/db"
	"github.com/kwehner/playlog/internal/resolver"
	"github.com/kwehner/playlog/internal/spotify"
)

// SpotifyPasses builds the three resolution passes over the concrete store
// and provider client. Each pass reads the ID projections from the play
// log and its catalog, bulk-fetches one chunk at a time, and inserts the
// records that are not present yet.
func SpotifyPasses(database *db.DB, client *spotify.Client) []resolver.Pass {
	return []resolver.Pass{
		{
			Entity:     resolver.Tracks,
			Referenced: database.Plays().TrackIDs,
			Stored:     database.Tracks().IDs,
			Fetch: func(ctx context.Context, token string, ids []string) (int, error) {
				tracks, err := client.Tracks(ctx, token, ids)
				if err != nil {
					return 0, err
				}
				return database.Tracks().InsertIgnore(ctx, tracks)
			},
		},
		{
			Entity:     resolver.Artists,
			Referenced: database.Plays().ArtistIDs,
			Stored:     database.Artists().IDs,
			Fetch: func(ctx context.Context, token string, ids []string) (int, error) {
				artists, err := client.Artists(ctx, token, ids)
				if err != nil {
					return 0, err
				}
				return database.Artists().InsertIgnore(ctx, artists)
			},
		},
		{
			Entity:     resolver.Albums,
			Referenced: database.Plays().AlbumIDs,
			Stored:     database.Albums().IDs,
			Fetch: func(ctx context.Context, token string, ids []string) (int, error) {
				albums, err := client.Albums(ctx, token, ids)
				if err != nil {
					return 0, err
				}
				return database.Albums().InsertIgnore(ctx, albums)
			},
		},
	}
}
