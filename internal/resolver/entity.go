package resolver

import "github.com/kwehner/playlog/internal/spotify"

// Entity is the closed set of catalog kinds a play event references. Each
// kind knows the play-log column holding its IDs, the provider endpoint
// serving it, and that endpoint's batch limit.
type Entity int

const (
	Tracks Entity = iota
	Artists
	Albums
)

// String returns the entity name, which matches the provider endpoint path.
func (e Entity) String() string {
	switch e {
	case Tracks:
		return "tracks"
	case Artists:
		return "artists"
	case Albums:
		return "albums"
	default:
		return "unknown"
	}
}

// IDColumn returns the plays column that references this entity.
func (e Entity) IDColumn() string {
	switch e {
	case Tracks:
		return "track_id"
	case Artists:
		return "artist_id"
	case Albums:
		return "album_id"
	default:
		return ""
	}
}

// BatchLimit returns the largest ID count one bulk fetch may carry for
// this entity.
func (e Entity) BatchLimit() int {
	switch e {
	case Tracks:
		return spotify.MaxTrackIDs
	case Artists:
		return spotify.MaxArtistIDs
	case Albums:
		return spotify.MaxAlbumIDs
	default:
		return 0
	}
}
