package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistRepository handles artist catalog database operations.
type ArtistRepository struct {
	pool *pgxpool.Pool
}

// InsertIgnore stores artists that are not present yet. IDs already in the
// catalog are skipped. Returns the number of rows actually written.
func (r *ArtistRepository) InsertIgnore(ctx context.Context, artists []Artist) (int, error) {
	if len(artists) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO artists (id, name, followers, primary_genre, popularity)
		SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::text[], $5::int[])
		ON CONFLICT (id) DO NOTHING
	`

	ids := make([]string, len(artists))
	names := make([]string, len(artists))
	followers := make([]int, len(artists))
	genres := make([]string, len(artists))
	popularities := make([]int, len(artists))

	for i, a := range artists {
		ids[i] = a.ID
		names[i] = a.Name
		followers[i] = a.Followers
		genres[i] = a.PrimaryGenre
		popularities[i] = a.Popularity
	}

	tag, err := r.pool.Exec(ctx, query, ids, names, followers, genres, popularities)
	if err != nil {
		return 0, fmt.Errorf("inserting artists: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// IDs returns every artist ID in the catalog.
func (r *ArtistRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM artists`)
	if err != nil {
		return nil, fmt.Errorf("querying artist IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning artist ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get retrieves an artist by ID.
func (r *ArtistRepository) Get(ctx context.Context, id string) (*Artist, error) {
	query := `
		SELECT id, name, followers, primary_genre, popularity
		FROM artists
		WHERE id = $1
	`
	var artist Artist
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&artist.ID,
		&artist.Name,
		&artist.Followers,
		&artist.PrimaryGenre,
		&artist.Popularity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artist: %w", err)
	}
	return &artist, nil
}
