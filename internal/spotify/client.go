// Package spotify is a thin client for the Spotify Web API endpoints the
// tracker consumes: recently played and the three bulk catalog lookups.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kwehner/playlog/internal/db"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"

	// External calls get a bounded timeout so a hung request fails the
	// current cycle instead of stalling the process.
	defaultTimeout = 30 * time.Second

	// Provider batch limits. Exceeding them is a contract violation the
	// provider rejects; callers must split beforehand.
	MaxTrackIDs  = 50
	MaxArtistIDs = 50
	MaxAlbumIDs  = 20

	// MaxRecentlyPlayed is the largest page the history endpoint serves.
	MaxRecentlyPlayed = 50
)

// Sentinel errors.
var (
	// ErrBatchLimit is returned when a bulk fetch is attempted with more
	// IDs than the endpoint allows. The request is rejected before any
	// network call is made.
	ErrBatchLimit = errors.New("bulk fetch exceeds endpoint batch limit")

	// ErrMalformedResponse is returned when a provider payload cannot be
	// decoded into the expected shape.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Client calls the Spotify Web API. Tokens are supplied per call; the
// client holds no credential state.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// New creates a Client.
func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(defaultTimeout),
		log: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecentlyPlayed returns up to limit play-history items in the order the
// provider serves them: newest first. Items without a track ID are skipped.
func (c *Client) RecentlyPlayed(ctx context.Context, token string, limit int) ([]PlayItem, error) {
	if limit <= 0 || limit > MaxRecentlyPlayed {
		limit = MaxRecentlyPlayed
	}

	body, err := c.get(ctx, token, "/me/player/recently-played", map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}

	var resp recentlyPlayedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding recently played: %v", ErrMalformedResponse, err)
	}
	if resp.Items == nil {
		return nil, fmt.Errorf("%w: recently played response has no items field", ErrMalformedResponse)
	}

	items := make([]PlayItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Track.ID == "" {
			c.log.Warn("skipping play item without track ID", zap.String("played_at", item.PlayedAt))
			continue
		}

		playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
		if err != nil {
			c.log.Warn("skipping play item with unparsable timestamp",
				zap.String("played_at", item.PlayedAt),
				zap.String("track_id", item.Track.ID))
			continue
		}

		artistID := ""
		if len(item.Track.Artists) > 0 {
			artistID = item.Track.Artists[0].ID
		}

		items = append(items, PlayItem{
			PlayedAt: playedAt,
			TrackID:  item.Track.ID,
			ArtistID: artistID,
			AlbumID:  item.Track.Album.ID,
		})
	}
	return items, nil
}

// Tracks bulk-fetches up to MaxTrackIDs track records. Entries the provider
// returns as null or without an ID are skipped and logged.
func (c *Client) Tracks(ctx context.Context, token string, ids []string) ([]db.Track, error) {
	if len(ids) > MaxTrackIDs {
		return nil, fmt.Errorf("%w: %d track IDs, limit %d", ErrBatchLimit, len(ids), MaxTrackIDs)
	}

	body, err := c.get(ctx, token, "/tracks", map[string]string{"ids": strings.Join(ids, ",")})
	if err != nil {
		return nil, err
	}

	var resp tracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding tracks: %v", ErrMalformedResponse, err)
	}
	if resp.Tracks == nil {
		return nil, fmt.Errorf("%w: tracks response has no tracks field", ErrMalformedResponse)
	}

	tracks := make([]db.Track, 0, len(resp.Tracks))
	for _, obj := range resp.Tracks {
		if obj == nil || obj.ID == "" {
			c.log.Warn("skipping track entry without ID")
			continue
		}
		tracks = append(tracks, db.Track{
			ID:         obj.ID,
			Title:      obj.Name,
			DurationMs: obj.DurationMs,
			Explicit:   obj.Explicit,
			Popularity: obj.Popularity,
		})
	}
	return tracks, nil
}

// TrackRefs bulk-fetches tracks and reports the album and primary artist
// each one references. Used by the bulk importer, whose export records
// carry track IDs only.
func (c *Client) TrackRefs(ctx context.Context, token string, ids []string) (map[string]TrackRef, error) {
	if len(ids) > MaxTrackIDs {
		return nil, fmt.Errorf("%w: %d track IDs, limit %d", ErrBatchLimit, len(ids), MaxTrackIDs)
	}

	body, err := c.get(ctx, token, "/tracks", map[string]string{"ids": strings.Join(ids, ",")})
	if err != nil {
		return nil, err
	}

	var resp tracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding tracks: %v", ErrMalformedResponse, err)
	}
	if resp.Tracks == nil {
		return nil, fmt.Errorf("%w: tracks response has no tracks field", ErrMalformedResponse)
	}

	refs := make(map[string]TrackRef, len(resp.Tracks))
	for _, obj := range resp.Tracks {
		if obj == nil || obj.ID == "" {
			c.log.Warn("skipping track entry without ID")
			continue
		}
		ref := TrackRef{AlbumID: obj.Album.ID}
		if len(obj.Artists) > 0 {
			ref.ArtistID = obj.Artists[0].ID
		}
		refs[obj.ID] = ref
	}
	return refs, nil
}

// TrackRef is the album and primary artist a track references.
type TrackRef struct {
	ArtistID string
	AlbumID  string
}

// Artists bulk-fetches up to MaxArtistIDs artist records. An artist with no
// genres gets an empty primary genre rather than failing the record.
func (c *Client) Artists(ctx context.Context, token string, ids []string) ([]db.Artist, error) {
	if len(ids) > MaxArtistIDs {
		return nil, fmt.Errorf("%w: %d artist IDs, limit %d", ErrBatchLimit, len(ids), MaxArtistIDs)
	}

	body, err := c.get(ctx, token, "/artists", map[string]string{"ids": strings.Join(ids, ",")})
	if err != nil {
		return nil, err
	}

	var resp artistsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding artists: %v", ErrMalformedResponse, err)
	}
	if resp.Artists == nil {
		return nil, fmt.Errorf("%w: artists response has no artists field", ErrMalformedResponse)
	}

	artists := make([]db.Artist, 0, len(resp.Artists))
	for _, obj := range resp.Artists {
		if obj == nil || obj.ID == "" {
			c.log.Warn("skipping artist entry without ID")
			continue
		}
		genre := ""
		if len(obj.Genres) > 0 {
			genre = obj.Genres[0]
		}
		artists = append(artists, db.Artist{
			ID:           obj.ID,
			Name:         obj.Name,
			Followers:    obj.Followers.Total,
			PrimaryGenre: genre,
			Popularity:   obj.Popularity,
		})
	}
	return artists, nil
}

// Albums bulk-fetches up to MaxAlbumIDs album records. An unparsable
// release date degrades to a zero release year.
func (c *Client) Albums(ctx context.Context, token string, ids []string) ([]db.Album, error) {
	if len(ids) > MaxAlbumIDs {
		return nil, fmt.Errorf("%w: %d album IDs, limit %d", ErrBatchLimit, len(ids), MaxAlbumIDs)
	}

	body, err := c.get(ctx, token, "/albums", map[string]string{"ids": strings.Join(ids, ",")})
	if err != nil {
		return nil, err
	}

	var resp albumsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding albums: %v", ErrMalformedResponse, err)
	}
	if resp.Albums == nil {
		return nil, fmt.Errorf("%w: albums response has no albums field", ErrMalformedResponse)
	}

	albums := make([]db.Album, 0, len(resp.Albums))
	for _, obj := range resp.Albums {
		if obj == nil || obj.ID == "" {
			c.log.Warn("skipping album entry without ID")
			continue
		}
		albums = append(albums, db.Album{
			ID:          obj.ID,
			Name:        obj.Name,
			AlbumType:   obj.AlbumType,
			TotalTracks: obj.TotalTracks,
			ReleaseYear: releaseYear(obj.ReleaseDate),
			Label:       obj.Label,
		})
	}
	return albums, nil
}

// releaseYear extracts the year from a provider release date, which may be
// "2006", "2006-03" or "2006-03-17". Returns 0 when unparsable.
func releaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// get performs one authorized GET and returns the raw body on a 2xx status.
func (c *Client) get(ctx context.Context, token, path string, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("spotify API error (%d) on %s: %s", resp.StatusCode(), path, resp.Body())
	}
	return resp.Body(), nil
}
