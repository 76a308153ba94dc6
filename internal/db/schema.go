package db

import (
	"context"
	"fmt"
)

// Schema statements. Insert-if-absent semantics rely on the primary keys
// declared here; there is deliberately no migration tooling.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		explicit BOOLEAN NOT NULL DEFAULT FALSE,
		popularity INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		followers INTEGER NOT NULL DEFAULT 0,
		primary_genre TEXT NOT NULL DEFAULT '',
		popularity INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		album_type TEXT NOT NULL DEFAULT '',
		total_tracks INTEGER NOT NULL DEFAULT 0,
		release_year INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS plays (
		played_at TIMESTAMPTZ PRIMARY KEY,
		track_id TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		album_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		scope TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// InitSchema creates all tables if they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}
