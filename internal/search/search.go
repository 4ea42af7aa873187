// Package search implements the record selection policies: the
// author -> name -> description fallback chain and the trending
// listing.
package search

import (
	"context"
	"sort"

	"npcforge/internal/models"
)

// StageLimit caps each search stage.
const StageLimit = 10

// TrendingLimit caps the trending listing.
const TrendingLimit = 8

// Index supplies the scoped search stages and the default listing.
// The production implementation runs Postgres full-text queries; tests
// substitute a fixture.
type Index interface {
	// ByAuthor matches the denormalized author display name.
	ByAuthor(ctx context.Context, term string, limit int) ([]models.NPC, error)
	// ByName matches the NPC name.
	ByName(ctx context.Context, term string, limit int) ([]models.NPC, error)
	// ByDescription matches the free-text description.
	ByDescription(ctx context.Context, term string, limit int) ([]models.NPC, error)
	// Latest lists all records newest first.
	Latest(ctx context.Context) ([]models.NPC, error)
}

// Select applies the fallback chain: author matches win outright, then
// name matches, then description matches. Stages never merge. An empty
// term short-circuits to the reverse-chronological listing.
func Select(ctx context.Context, idx Index, term string) ([]models.NPC, error) {
	if term == "" {
		return idx.Latest(ctx)
	}

	results, err := idx.ByAuthor(ctx, term, StageLimit)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	results, err = idx.ByName(ctx, term, StageLimit)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	return idx.ByDescription(ctx, term, StageLimit)
}

// Trending orders records by view count descending, keeping storage
// order between ties, capped at TrendingLimit.
func Trending(npcs []models.NPC) []models.NPC {
	sorted := make([]models.NPC, len(npcs))
	copy(sorted, npcs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Views > sorted[j].Views
	})
	if len(sorted) > TrendingLimit {
		sorted = sorted[:TrendingLimit]
	}
	return sorted
}
