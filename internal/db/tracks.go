package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track catalog database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// InsertIgnore stores tracks that are not present yet. IDs already in the
// catalog are skipped; catalog records are never updated from the pipeline.
// Returns the number of rows actually written.
func (r *TrackRepository) InsertIgnore(ctx context.Context, tracks []Track) (int, error) {
	if len(tracks) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO tracks (id, title, duration_ms, explicit, popularity)
		SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::bool[], $5::int[])
		ON CONFLICT (id) DO NOTHING
	`

	ids := make([]string, len(tracks))
	titles := make([]string, len(tracks))
	durations := make([]int, len(tracks))
	explicits := make([]bool, len(tracks))
	popularities := make([]int, len(tracks))

	for i, t := range tracks {
		ids[i] = t.ID
		titles[i] = t.Title
		durations[i] = t.DurationMs
		explicits[i] = t.Explicit
		popularities[i] = t.Popularity
	}

	tag, err := r.pool.Exec(ctx, query, ids, titles, durations, explicits, popularities)
	if err != nil {
		return 0, fmt.Errorf("inserting tracks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// IDs returns every track ID in the catalog.
func (r *TrackRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tracks`)
	if err != nil {
		return nil, fmt.Errorf("querying track IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning track ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*Track, error) {
	query := `
		SELECT id, title, duration_ms, explicit, popularity
		FROM tracks
		WHERE id = $1
	`
	var track Track
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&track.ID,
		&track.Title,
		&track.DurationMs,
		&track.Explicit,
		&track.Popularity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}
