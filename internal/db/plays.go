package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayRepository handles play-event database operations.
//
// The plays table carries no foreign key constraints on purpose: enrichment
// is asynchronous, so a play may transiently reference a track, artist or
// album that has not been fetched yet.
type PlayRepository struct {
	pool *pgxpool.Pool
}

// Insert stores one play event. A play with an already-stored played_at is
// silently ignored; the returned bool reports whether a row was written.
func (r *PlayRepository) Insert(ctx context.Context, play Play) (bool, error) {
	query := `
		INSERT INTO plays (played_at, track_id, artist_id, album_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (played_at) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, play.PlayedAt, play.TrackID, play.ArtistID, play.AlbumID)
	if err != nil {
		return false, fmt.Errorf("inserting play: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TrackIDs returns the track_id column of every stored play.
func (r *PlayRepository) TrackIDs(ctx context.Context) ([]string, error) {
	return r.column(ctx, "track_id")
}

// ArtistIDs returns the artist_id column of every stored play.
func (r *PlayRepository) ArtistIDs(ctx context.Context) ([]string, error) {
	return r.column(ctx, "artist_id")
}

// AlbumIDs returns the album_id column of every stored play.
func (r *PlayRepository) AlbumIDs(ctx context.Context) ([]string, error) {
	return r.column(ctx, "album_id")
}

func (r *PlayRepository) column(ctx context.Context, column string) ([]string, error) {
	// column is one of the three fixed names above, never caller input.
	query := fmt.Sprintf(`SELECT %s FROM plays`, column)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying plays.%s: %w", column, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning plays.%s: %w", column, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored play events.
func (r *PlayRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting plays: %w", err)
	}
	return n, nil
}

// Overview returns the most recent plays joined with their catalog records,
// newest first. Plays whose referenced entities are not yet enriched are
// omitted by the join.
func (r *PlayRepository) Overview(ctx context.Context, limit int) ([]PlayDetail, error) {
	query := `
		SELECT p.played_at, t.id, t.title, a.id, a.name, al.id, al.name
		FROM plays p
		JOIN tracks t ON p.track_id = t.id
		JOIN artists a ON p.artist_id = a.id
		JOIN albums al ON p.album_id = al.id
		ORDER BY p.played_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying play overview: %w", err)
	}
	defer rows.Close()

	var details []PlayDetail
	for rows.Next() {
		var d PlayDetail
		if err := rows.Scan(
			&d.PlayedAt,
			&d.TrackID,
			&d.Title,
			&d.ArtistID,
			&d.ArtistName,
			&d.AlbumID,
			&d.AlbumName,
		); err != nil {
			return nil, fmt.Errorf("scanning play overview: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}
