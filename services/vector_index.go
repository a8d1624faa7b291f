package services

import (
	"context"
	"encoding/json"
	"sort"
)

// IndexEntry is one chunk to be added to the index.
type IndexEntry struct {
	Text     string
	Vector   []float32
	Metadata map[string]interface{}
}

// SearchHit is a similarity match. Higher Score is more similar.
type SearchHit struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]interface{}
}

// StoredChunk is a chunk fetched back by id.
type StoredChunk struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// VectorIndex stores chunk vectors. Add is all-or-nothing and returns ids in
// entry order. Search returns hits by descending score. Delete is idempotent.
// GetByIDs returns chunks in no particular order.
type VectorIndex interface {
	Add(ctx context.Context, entries []IndexEntry) ([]string, error)
	Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
	Delete(ctx context.Context, ids []string) error
	GetByIDs(ctx context.Context, ids []string) ([]StoredChunk, error)
}

// SortByRequestedOrder reorders chunks to follow ids. Ids the index did not
// return are skipped.
func SortByRequestedOrder(chunks []StoredChunk, ids []string) []StoredChunk {
	byID := make(map[string]StoredChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := make([]StoredChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func sortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

// metadataToMap converts a provider metadata value into a plain map through a
// JSON round-trip.
func metadataToMap(meta interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	if meta == nil {
		return out
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return make(map[string]interface{})
	}
	return out
}
