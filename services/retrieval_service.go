package services

import (
	"context"
	"fmt"
	"strings"

	"github/itish2003/agriqa/models"
)

const (
	DefaultTopK = 5
	MaxTopK     = 100
)

// RetrievalService answers semantic search queries over the indexed chunks.
type RetrievalService interface {
	Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
}

type retrievalServiceImpl struct {
	embedder EmbeddingClient
	index    VectorIndex
}

func NewRetrievalService(embedder EmbeddingClient, index VectorIndex) RetrievalService {
	return &retrievalServiceImpl{embedder: embedder, index: index}
}

// Search returns at most topK results by descending score. topK <= 0 means
// DefaultTopK.
func (r *retrievalServiceImpl) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.SearchResult{Content: h.Text, Score: h.Score, Metadata: h.Metadata})
	}
	return results, nil
}
