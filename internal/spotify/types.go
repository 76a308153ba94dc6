package spotify

import "time"

// PlayItem is one recently-played event with the entity IDs it references.
type PlayItem struct {
	PlayedAt time.Time
	TrackID  string
	ArtistID string
	AlbumID  string
}

// Wire shapes for the provider payloads. Only the fields the tracker
// persists are decoded.

type recentlyPlayedResponse struct {
	Items []playHistoryItem `json:"items"`
}

type playHistoryItem struct {
	PlayedAt string      `json:"played_at"`
	Track    trackObject `json:"track"`
}

type tracksResponse struct {
	Tracks []*trackObject `json:"tracks"`
}

type artistsResponse struct {
	Artists []*artistObject `json:"artists"`
}

type albumsResponse struct {
	Albums []*albumObject `json:"albums"`
}

type trackObject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Explicit   bool   `json:"explicit"`
	Popularity int    `json:"popularity"`
	Album      struct {
		ID string `json:"id"`
	} `json:"album"`
	Artists []struct {
		ID string `json:"id"`
	} `json:"artists"`
}

type artistObject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Followers struct {
		Total int `json:"total"`
	} `json:"followers"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
}

type albumObject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AlbumType   string `json:"album_type"`
	TotalTracks int    `json:"total_tracks"`
	ReleaseDate string `json:"release_date"`
	Label       string `json:"label"`
}
