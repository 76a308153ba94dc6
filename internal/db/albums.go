package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlbumRepository handles album catalog database operations.
type AlbumRepository struct {
	pool *pgxpool.Pool
}

// InsertIgnore stores albums that are not present yet. IDs already in the
// catalog are skipped. Returns the number of rows actually written.
func (r *AlbumRepository) InsertIgnore(ctx context.Context, albums []Album) (int, error) {
	if len(albums) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO albums (id, name, album_type, total_tracks, release_year, label)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::int[], $5::int[], $6::text[])
		ON CONFLICT (id) DO NOTHING
	`

	ids := make([]string, len(albums))
	names := make([]string, len(albums))
	types := make([]string, len(albums))
	totals := make([]int, len(albums))
	years := make([]int, len(albums))
	labels := make([]string, len(albums))

	for i, a := range albums {
		ids[i] = a.ID
		names[i] = a.Name
		types[i] = a.AlbumType
		totals[i] = a.TotalTracks
		years[i] = a.ReleaseYear
		labels[i] = a.Label
	}

	tag, err := r.pool.Exec(ctx, query, ids, names, types, totals, years, labels)
	if err != nil {
		return 0, fmt.Errorf("inserting albums: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// IDs returns every album ID in the catalog.
func (r *AlbumRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM albums`)
	if err != nil {
		return nil, fmt.Errorf("querying album IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning album ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get retrieves an album by ID.
func (r *AlbumRepository) Get(ctx context.Context, id string) (*Album, error) {
	query := `
		SELECT id, name, album_type, total_tracks, release_year, label
		FROM albums
		WHERE id = $1
	`
	var album Album
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&album.ID,
		&album.Name,
		&album.AlbumType,
		&album.TotalTracks,
		&album.ReleaseYear,
		&album.Label,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying album: %w", err)
	}
	return &album, nil
}
