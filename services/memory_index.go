package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryEntry struct {
	text     string
	vector   []float32
	norm     float64
	metadata map[string]interface{}
	seq      int
}

// MemoryIndex is a brute-force cosine index held in process memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	dim     int
	seq     int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) Add(_ context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything before touching state.
	dim := m.dim
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%w: entry %d has an empty vector", ErrIndexUnavailable, i)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, index uses %d", ErrIndexUnavailable, i, len(e.Vector), dim)
		}
	}

	m.dim = dim
	ids := make([]string, len(entries))
	for i, e := range entries {
		id := uuid.NewString()
		vec := append([]float32(nil), e.Vector...)
		m.seq++
		m.entries[id] = memoryEntry{
			text:     e.Text,
			vector:   vec,
			norm:     l2norm(vec),
			metadata: copyMetadata(e.Metadata),
			seq:      m.seq,
		}
		ids[i] = id
	}
	return ids, nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]SearchHit, error) {
	if k <= 0 {
		return []SearchHit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index uses %d", ErrIndexUnavailable, len(vector), m.dim)
	}
	qnorm := l2norm(vector)
	hits := make([]SearchHit, 0, len(m.entries))
	for id, e := range m.entries {
		hits = append(hits, SearchHit{
			ID:       id,
			Text:     e.text,
			Score:    cosine(vector, qnorm, e.vector, e.norm),
			Metadata: copyMetadata(e.metadata),
		})
	}
	// Ties fall back to insertion order so results are stable.
	seqOf := func(id string) int { return m.entries[id].seq }
	sort.Slice(hits, func(i, j int) bool { return hitLess(hits[i], hits[j], seqOf) })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *MemoryIndex) GetByIDs(_ context.Context, ids []string) ([]StoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredChunk, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			out = append(out, StoredChunk{ID: id, Text: e.text, Metadata: copyMetadata(e.metadata)})
		}
	}
	return out, nil
}

// Len reports the number of stored chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func hitLess(a, b SearchHit, seqOf func(string) int) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return seqOf(a.ID) < seqOf(b.ID)
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
