package db

import "time"

// Play is one play-history event. Immutable once written; PlayedAt is the
// primary key, so overlapping polls that return the same event are ignored
// on insert.
type Play struct {
	PlayedAt time.Time
	TrackID  string
	ArtistID string
	AlbumID  string
}

// Track is the catalog record for one Spotify track.
type Track struct {
	ID         string
	Title      string
	DurationMs int
	Explicit   bool
	Popularity int
}

// Artist is the catalog record for one Spotify artist.
type Artist struct {
	ID           string
	Name         string
	Followers    int
	PrimaryGenre string // empty when the artist has no genres
	Popularity   int
}

// Album is the catalog record for one Spotify album.
type Album struct {
	ID          string
	Name        string
	AlbumType   string
	TotalTracks int
	ReleaseYear int // zero when the release date is unparsable
	Label       string
}

// Credential is the persisted OAuth state for one authorization scope.
// Mutated in place on refresh.
type Credential struct {
	Scope        string
	AccessToken  string
	RefreshToken string // empty for grants that issued none
	ExpiresAt    time.Time
}

// PlayDetail is one row of the enriched play overview: a play event joined
// with the catalog records it references.
type PlayDetail struct {
	PlayedAt   time.Time
	TrackID    string
	Title      string
	ArtistID   string
	ArtistName string
	AlbumID    string
	AlbumName  string
}
