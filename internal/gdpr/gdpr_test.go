package gdpr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kwehner/playlog/internal/db"
	"github.com/kwehner/playlog/internal/spotify"
)

func TestTrackID(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"full URI", "spotify:track:4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC"},
		{"bare ID passes through", "4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrackID(tt.uri); got != tt.want {
				t.Errorf("TrackID(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func writeExportFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()

	// Entries out of order across two files, plus a podcast entry (null
	// URI) and one with a broken timestamp, both of which must be skipped.
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `[
		{"ts":"2023-05-02T10:00:00Z","spotify_track_uri":"spotify:track:bbb","master_metadata_track_name":"Second","master_metadata_album_artist_name":"Artist B","master_metadata_album_album_name":"Album B","conn_country":"DE","ms_played":180000},
		{"ts":"2023-05-01T10:00:00Z","spotify_track_uri":"spotify:track:aaa","master_metadata_track_name":"First","master_metadata_album_artist_name":"Artist A","master_metadata_album_album_name":"Album A","conn_country":"DE","ms_played":120000},
		{"ts":"2023-05-01T11:00:00Z","spotify_track_uri":null,"master_metadata_track_name":null,"conn_country":"DE","ms_played":900000}
	]`)
	writeExportFile(t, dir, "Streaming_History_Audio_2023_1.json", `[
		{"ts":"2023-05-03T10:00:00Z","spotify_track_uri":"spotify:track:ccc","master_metadata_track_name":"Third","master_metadata_album_artist_name":"Artist C","master_metadata_album_album_name":"Album C","conn_country":"SE","ms_played":60000},
		{"ts":"not-a-timestamp","spotify_track_uri":"spotify:track:ddd","master_metadata_track_name":"Broken","ms_played":1000}
	]`)
	writeExportFile(t, dir, "ReadMeFirst.txt", "not streaming history")

	records, err := ReadDir(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("ReadDir() returned %d records, want 3", len(records))
	}
	wantIDs := []string{"aaa", "bbb", "ccc"}
	for i, rec := range records {
		if rec.TrackID != wantIDs[i] {
			t.Errorf("records[%d].TrackID = %q, want %q", i, rec.TrackID, wantIDs[i])
		}
	}
	for i := 1; i < len(records); i++ {
		if !records[i-1].PlayedAt.Before(records[i].PlayedAt) {
			t.Error("records not sorted ascending by timestamp")
		}
	}

	first := records[0]
	if first.TrackName != "First" || first.ArtistName != "Artist A" || first.AlbumName != "Album A" {
		t.Errorf("metadata mismatch: %+v", first)
	}
	if first.Country != "DE" || first.MsPlayed != 120000 {
		t.Errorf("country/ms_played mismatch: %+v", first)
	}
}

func TestReadDir_MalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `{"not":"an array"`)

	if _, err := ReadDir(dir, zap.NewNop()); err == nil {
		t.Error("ReadDir() error = nil, want parse error")
	}
}

func TestReadDir_MissingDirectory(t *testing.T) {
	if _, err := ReadDir(filepath.Join(t.TempDir(), "absent"), zap.NewNop()); err == nil {
		t.Error("ReadDir() error = nil, want error")
	}
}

func TestLatest(t *testing.T) {
	makeRecords := func(n int) []Record {
		base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		records := make([]Record, n)
		for i := range records {
			records[i] = Record{
				PlayedAt: base.Add(time.Duration(i) * time.Hour),
				TrackID:  fmt.Sprintf("t%03d", i),
			}
		}
		return records
	}

	t.Run("fewer than n", func(t *testing.T) {
		got := Latest(makeRecords(5), 10)
		if len(got) != 5 {
			t.Errorf("len = %d, want 5", len(got))
		}
	})

	t.Run("keeps the most recent tail", func(t *testing.T) {
		got := Latest(makeRecords(10), 3)
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].TrackID != "t007" || got[2].TrackID != "t009" {
			t.Errorf("wrong tail: first %q last %q", got[0].TrackID, got[2].TrackID)
		}
		for i := 1; i < len(got); i++ {
			if !got[i-1].PlayedAt.Before(got[i].PlayedAt) {
				t.Error("result not sorted ascending")
			}
		}
	})

	t.Run("non-positive n falls back to default", func(t *testing.T) {
		got := Latest(makeRecords(DefaultImportLimit+20), 0)
		if len(got) != DefaultImportLimit {
			t.Errorf("len = %d, want %d", len(got), DefaultImportLimit)
		}
	})
}

type fakeAppTokens struct {
	err   error
	calls int
}

func (f *fakeAppTokens) AppToken(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "app-token", nil
}

// fakeLookup answers track lookups from a fixed map, recording chunk sizes.
type fakeLookup struct {
	refs   map[string]spotify.TrackRef
	chunks []int
	failOn int // 1-based call to fail, 0 for none
}

func (f *fakeLookup) TrackRefs(ctx context.Context, token string, ids []string) (map[string]spotify.TrackRef, error) {
	f.chunks = append(f.chunks, len(ids))
	if f.failOn == len(f.chunks) {
		return nil, errors.New("transport failure")
	}
	out := make(map[string]spotify.TrackRef)
	for _, id := range ids {
		if ref, ok := f.refs[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

type recordingPlays struct {
	inserted []db.Play
}

func (p *recordingPlays) Insert(ctx context.Context, play db.Play) (bool, error) {
	p.inserted = append(p.inserted, play)
	return true, nil
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `[
		{"ts":"2023-05-03T10:00:00Z","spotify_track_uri":"spotify:track:ccc","master_metadata_track_name":"Third","ms_played":60000},
		{"ts":"2023-05-01T10:00:00Z","spotify_track_uri":"spotify:track:aaa","master_metadata_track_name":"First","ms_played":120000},
		{"ts":"2023-05-02T10:00:00Z","spotify_track_uri":"spotify:track:gone","master_metadata_track_name":"Delisted","ms_played":30000}
	]`)

	lookup := &fakeLookup{refs: map[string]spotify.TrackRef{
		"aaa": {ArtistID: "art-a", AlbumID: "alb-a"},
		"ccc": {ArtistID: "art-c", AlbumID: "alb-c"},
		// "gone" is unknown to the provider.
	}}
	plays := &recordingPlays{}
	imp := NewImporter(&fakeAppTokens{}, lookup, plays, zap.NewNop())

	inserted, err := imp.Import(context.Background(), dir, 10)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if inserted != 2 {
		t.Errorf("Import() = %d, want 2 (unresolvable record skipped)", inserted)
	}
	if len(plays.inserted) != 2 {
		t.Fatalf("stored %d plays, want 2", len(plays.inserted))
	}
	if plays.inserted[0].TrackID != "aaa" || plays.inserted[1].TrackID != "ccc" {
		t.Errorf("plays stored out of order: %q then %q",
			plays.inserted[0].TrackID, plays.inserted[1].TrackID)
	}
	if plays.inserted[0].ArtistID != "art-a" || plays.inserted[0].AlbumID != "alb-a" {
		t.Errorf("derived refs wrong: %+v", plays.inserted[0])
	}
}

func TestImport_LimitKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `[
		{"ts":"2023-05-01T10:00:00Z","spotify_track_uri":"spotify:track:aaa","ms_played":1},
		{"ts":"2023-05-02T10:00:00Z","spotify_track_uri":"spotify:track:bbb","ms_played":1},
		{"ts":"2023-05-03T10:00:00Z","spotify_track_uri":"spotify:track:ccc","ms_played":1}
	]`)

	lookup := &fakeLookup{refs: map[string]spotify.TrackRef{
		"bbb": {ArtistID: "art", AlbumID: "alb"},
		"ccc": {ArtistID: "art", AlbumID: "alb"},
	}}
	plays := &recordingPlays{}
	imp := NewImporter(&fakeAppTokens{}, lookup, plays, zap.NewNop())

	inserted, err := imp.Import(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if inserted != 2 {
		t.Errorf("Import() = %d, want 2", inserted)
	}
	for _, play := range plays.inserted {
		if play.TrackID == "aaa" {
			t.Error("oldest record imported despite limit")
		}
	}
}

func TestImport_ChunksTrackLookups(t *testing.T) {
	dir := t.TempDir()

	// 60 unique tracks exceed the 50-ID bulk limit, so two lookup calls
	// are needed.
	var entries []string
	refs := make(map[string]spotify.TrackRef, 60)
	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("t%03d", i)
		refs[id] = spotify.TrackRef{ArtistID: "art", AlbumID: "alb"}
		entries = append(entries, fmt.Sprintf(
			`{"ts":%q,"spotify_track_uri":"spotify:track:%s","ms_played":1000}`,
			base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), id))
	}
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json",
		"["+strings.Join(entries, ",")+"]")

	lookup := &fakeLookup{refs: refs}
	plays := &recordingPlays{}
	imp := NewImporter(&fakeAppTokens{}, lookup, plays, zap.NewNop())

	inserted, err := imp.Import(context.Background(), dir, 60)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if len(lookup.chunks) != 2 {
		t.Fatalf("lookup calls = %d, want 2", len(lookup.chunks))
	}
	for _, size := range lookup.chunks {
		if size > spotify.MaxTrackIDs {
			t.Errorf("lookup chunk of %d IDs exceeds limit %d", size, spotify.MaxTrackIDs)
		}
	}
	if inserted != 60 {
		t.Errorf("Import() = %d, want 60", inserted)
	}
}

func TestImport_FailedLookupChunkSkipsItsRecords(t *testing.T) {
	dir := t.TempDir()

	var entries []string
	refs := make(map[string]spotify.TrackRef, 60)
	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("t%03d", i)
		refs[id] = spotify.TrackRef{ArtistID: "art", AlbumID: "alb"}
		entries = append(entries, fmt.Sprintf(
			`{"ts":%q,"spotify_track_uri":"spotify:track:%s","ms_played":1000}`,
			base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), id))
	}
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json",
		"["+strings.Join(entries, ",")+"]")

	lookup := &fakeLookup{refs: refs, failOn: 1}
	plays := &recordingPlays{}
	imp := NewImporter(&fakeAppTokens{}, lookup, plays, zap.NewNop())

	inserted, err := imp.Import(context.Background(), dir, 60)
	if err != nil {
		t.Fatalf("Import() error = %v, want nil despite failed chunk", err)
	}

	// First chunk of 50 lost, second chunk of 10 imported.
	if inserted != 10 {
		t.Errorf("Import() = %d, want 10", inserted)
	}
}

func TestImport_AuthFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `[
		{"ts":"2023-05-01T10:00:00Z","spotify_track_uri":"spotify:track:aaa","ms_played":1}
	]`)

	lookup := &fakeLookup{refs: map[string]spotify.TrackRef{}}
	plays := &recordingPlays{}
	imp := NewImporter(&fakeAppTokens{err: errors.New("rejected")}, lookup, plays, zap.NewNop())

	if _, err := imp.Import(context.Background(), dir, 10); err == nil {
		t.Fatal("Import() error = nil, want error")
	}
	if len(lookup.chunks) != 0 {
		t.Error("track lookup ran despite auth failure")
	}
	if len(plays.inserted) != 0 {
		t.Error("plays stored despite auth failure")
	}
}

func TestImport_EmptyExportIsNoop(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "Streaming_History_Audio_2023_0.json", `[]`)

	tokens := &fakeAppTokens{}
	imp := NewImporter(tokens, &fakeLookup{}, &recordingPlays{}, zap.NewNop())

	inserted, err := imp.Import(context.Background(), dir, 10)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if inserted != 0 {
		t.Errorf("Import() = %d, want 0", inserted)
	}
	if tokens.calls != 0 {
		t.Error("authenticated for an empty import")
	}
}
