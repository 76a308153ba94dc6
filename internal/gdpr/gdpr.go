// Package gdpr imports play history from a Spotify GDPR data export. The
// export's streaming-history JSON files carry track URIs and timestamps but
// no artist or album IDs, so those are derived through one track bulk-fetch
// pass before play events can be constructed.
package gdpr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// trackURIPrefix precedes the bare track ID in an export entry's URI.
const trackURIPrefix = "spotify:track:"

// DefaultImportLimit is how many of the most recent export records are
// imported when no cutoff is given.
const DefaultImportLimit = 100

// Record is one historical play from the export, with the descriptive
// metadata the export carries alongside the IDs.
type Record struct {
	PlayedAt   time.Time
	TrackID    string
	TrackName  string
	ArtistName string
	AlbumName  string
	Country    string
	MsPlayed   int
}

// streamingEntry is the export's wire shape. Podcast entries carry a null
// track URI.
type streamingEntry struct {
	TS         string  `json:"ts"`
	TrackURI   *string `json:"spotify_track_uri"`
	TrackName  string  `json:"master_metadata_track_name"`
	ArtistName string  `json:"master_metadata_album_artist_name"`
	AlbumName  string  `json:"master_metadata_album_album_name"`
	Country    string  `json:"conn_country"`
	MsPlayed   int     `json:"ms_played"`
}

// TrackID normalizes a provider track URI to a bare entity ID. Inputs
// without the URI prefix are returned unchanged.
func TrackID(uri string) string {
	return strings.TrimPrefix(uri, trackURIPrefix)
}

// ReadDir parses every .json file in dir into records sorted ascending by
// timestamp. Podcast entries and entries with unparsable timestamps are
// skipped and logged; a file that fails to parse fails the whole read.
func ReadDir(dir string, logger *zap.Logger) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading export directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading export file %s: %w", entry.Name(), err)
		}

		var raw []streamingEntry
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing export file %s: %w", entry.Name(), err)
		}

		for _, e := range raw {
			if e.TrackURI == nil {
				// Podcast or other non-track entry.
				continue
			}
			playedAt, err := time.Parse(time.RFC3339, e.TS)
			if err != nil {
				logger.Warn("skipping export entry with unparsable timestamp",
					zap.String("file", entry.Name()),
					zap.String("ts", e.TS))
				continue
			}
			records = append(records, Record{
				PlayedAt:   playedAt,
				TrackID:    TrackID(*e.TrackURI),
				TrackName:  e.TrackName,
				ArtistName: e.ArtistName,
				AlbumName:  e.AlbumName,
				Country:    e.Country,
				MsPlayed:   e.MsPlayed,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PlayedAt.Before(records[j].PlayedAt)
	})
	return records, nil
}

// Latest returns the n most recent records, still sorted ascending.
// Records must already be sorted ascending.
func Latest(records []Record, n int) []Record {
	if n <= 0 {
		n = DefaultImportLimit
	}
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
