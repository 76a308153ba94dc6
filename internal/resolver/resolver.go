// Package resolver reconciles the entity IDs referenced by the play log
// against the stored catalogs and bulk-fetches whatever is missing.
//
// Resolution is eventually consistent by design: a pass that loses some
// chunks simply leaves their IDs missing, and the next scheduled cycle
// recomputes the missing set and tries again. No retry state is kept.
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Pass describes one resolution pass for a single entity kind. The data
// accessors are injected so the resolver stays independent of the concrete
// store and transport.
type Pass struct {
	Entity Entity

	// Referenced lists every ID of this kind the play log mentions.
	Referenced func(ctx context.Context) ([]string, error)

	// Stored lists every ID already in this kind's catalog.
	Stored func(ctx context.Context) ([]string, error)

	// Fetch bulk-fetches one chunk of IDs and persists the resulting
	// records, returning how many were newly inserted. The chunk size
	// never exceeds Entity.BatchLimit().
	Fetch func(ctx context.Context, token string, ids []string) (int, error)
}

// Stats summarizes one resolution pass.
type Stats struct {
	Missing      int
	Chunks       int
	FailedChunks int
	Inserted     int
}

// Resolver drives resolution passes.
type Resolver struct {
	log *zap.Logger
}

// New creates a Resolver.
func New(logger *zap.Logger) *Resolver {
	return &Resolver{log: logger}
}

// Run computes the missing-ID set for the pass's entity kind and fetches it
// chunk by chunk. A chunk whose fetch or persistence fails is logged and
// skipped; the remaining chunks still run. Only a failure to read the ID
// projections aborts the pass.
func (r *Resolver) Run(ctx context.Context, token string, p Pass) (Stats, error) {
	var stats Stats

	referenced, err := p.Referenced(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading referenced %s IDs: %w", p.Entity, err)
	}

	stored, err := p.Stored(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading stored %s IDs: %w", p.Entity, err)
	}

	missing := Missing(referenced, stored)
	stats.Missing = len(missing)
	if len(missing) == 0 {
		return stats, nil
	}

	chunks := Chunks(missing, p.Entity.BatchLimit())
	stats.Chunks = len(chunks)

	r.log.Debug("resolving missing entities",
		zap.Stringer("entity", p.Entity),
		zap.Int("missing", len(missing)),
		zap.Int("chunks", len(chunks)))

	for _, chunk := range chunks {
		inserted, err := p.Fetch(ctx, token, chunk)
		if err != nil {
			stats.FailedChunks++
			r.log.Warn("skipping failed chunk",
				zap.Stringer("entity", p.Entity),
				zap.Int("ids", len(chunk)),
				zap.Error(err))
			continue
		}
		stats.Inserted += inserted
	}

	return stats, nil
}

// Missing returns referenced − stored as a deduplicated slice, preserving
// the first-seen order of referenced. No ID appears twice and none of the
// result is already stored.
func Missing(referenced, stored []string) []string {
	storedSet := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		storedSet[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(referenced))
	var missing []string
	for _, id := range referenced {
		if id == "" {
			continue
		}
		if _, ok := storedSet[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

// Chunks partitions ids into consecutive slices of at most limit elements.
func Chunks(ids []string, limit int) [][]string {
	if limit <= 0 || len(ids) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(ids)+limit-1)/limit)
	for start := 0; start < len(ids); start += limit {
		end := start + limit
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
