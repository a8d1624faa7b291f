package services

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
)

// chromaIndex stores chunks in a Chroma collection created with cosine space,
// so similarity is 1 - distance.
type chromaIndex struct {
	collection chromago.Collection
}

// NewChromaIndex wraps an existing collection.
func NewChromaIndex(collection chromago.Collection) VectorIndex {
	return &chromaIndex{collection: collection}
}

// GetOrCreateCollection opens the named collection, creating it with cosine
// distance when missing. The embedder backs the collection's embedding
// function so the client never falls back to its bundled ONNX model.
func GetOrCreateCollection(ctx context.Context, client chromago.Client, name string, embedder EmbeddingClient) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithEmbeddingFunctionCreate(chromaEmbeddingFunction{client: embedder}),
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "agricultural knowledge chunks"),
				chromago.NewStringAttribute("created_by", "agriqa"),
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: get or create collection %s: %w", ErrIndexUnavailable, name, err)
	}
	return collection, nil
}

func (c *chromaIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}
	ids := make([]string, len(entries))
	docIDs := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	vectors := make([]embeddings.Embedding, len(entries))
	metas := make([]chromago.DocumentMetadata, len(entries))
	for i, e := range entries {
		ids[i] = uuid.NewString()
		docIDs[i] = chromago.DocumentID(ids[i])
		texts[i] = e.Text
		vectors[i] = embeddings.NewEmbeddingFromFloat32(e.Vector)
		metas[i] = toDocumentMetadata(e.Metadata)
	}

	// One request: Chroma applies the whole batch or none of it.
	err := c.collection.Add(ctx,
		chromago.WithIDs(docIDs...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: add %d records to chromadb: %w", ErrIndexUnavailable, len(entries), err)
	}
	return ids, nil
}

func (c *chromaIndex) Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error) {
	if k <= 0 {
		return []SearchHit{}, nil
	}
	results, err := c.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.Include("distances")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query chromadb: %w", ErrIndexUnavailable, err)
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return []SearchHit{}, nil
	}
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()

	hits := make([]SearchHit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hit := SearchHit{ID: string(id), Metadata: map[string]interface{}{}}
		if len(documentGroups) > 0 && i < len(documentGroups[0]) && documentGroups[0][i] != nil {
			hit.Text = documentGroups[0][i].ContentString()
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			hit.Metadata = metadataToMap(metadataGroups[0][i])
		}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			hit.Score = 1 - float64(distanceGroups[0][i])
		}
		hits = append(hits, hit)
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (c *chromaIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(toDocumentIDs(ids)...)); err != nil {
		return fmt.Errorf("%w: delete %d records from chromadb: %w", ErrIndexUnavailable, len(ids), err)
	}
	return nil
}

func (c *chromaIndex) GetByIDs(ctx context.Context, ids []string) ([]StoredChunk, error) {
	if len(ids) == 0 {
		return []StoredChunk{}, nil
	}
	results, err := c.collection.Get(ctx, chromago.WithIDsGet(toDocumentIDs(ids)...))
	if err != nil {
		return nil, fmt.Errorf("%w: get records from chromadb: %w", ErrIndexUnavailable, err)
	}
	gotIDs := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()

	out := make([]StoredChunk, 0, len(gotIDs))
	for i, id := range gotIDs {
		chunk := StoredChunk{ID: string(id), Metadata: map[string]interface{}{}}
		if i < len(documents) && documents[i] != nil {
			chunk.Text = documents[i].ContentString()
		}
		if i < len(metadatas) && metadatas[i] != nil {
			chunk.Metadata = metadataToMap(metadatas[i])
		}
		out = append(out, chunk)
	}
	return out, nil
}

// chromaEmbeddingFunction exposes an EmbeddingClient through chroma's
// embedding function interface.
type chromaEmbeddingFunction struct {
	client EmbeddingClient
}

func (f chromaEmbeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := f.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f chromaEmbeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	vector, err := f.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbeddingFromFloat32(vector), nil
}

func toDocumentIDs(ids []string) []chromago.DocumentID {
	out := make([]chromago.DocumentID, len(ids))
	for i, id := range ids {
		out[i] = chromago.DocumentID(id)
	}
	return out
}

// toDocumentMetadata keeps the scalar types Chroma accepts and stringifies the rest.
func toDocumentMetadata(meta map[string]interface{}) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case uint:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case float32:
			attrs = append(attrs, chromago.NewFloatAttribute(k, float64(val)))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprint(val)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}
