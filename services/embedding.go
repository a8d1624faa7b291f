package services

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"
)

// EmbeddingClient turns text into vectors. EmbedDocuments returns one vector per
// input, in input order.
type EmbeddingClient interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// embedderClient adapts any langchaingo embedder and normalizes its errors.
type embedderClient struct {
	inner embeddings.Embedder
}

// NewOpenAIEmbeddingClient talks to an OpenAI-compatible /embeddings endpoint
// (OpenAI, Xinference, Ollama, vLLM...).
func NewOpenAIEmbeddingClient(baseURL, apiKey, model string) (EmbeddingClient, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create openai embedding client: %w", ErrEmbeddingUnavailable, err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(64), embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("%w: create embedder: %w", ErrEmbeddingUnavailable, err)
	}
	return &embedderClient{inner: embedder}, nil
}

// NewEmbedderClient wraps an existing langchaingo embedder.
func NewEmbedderClient(inner embeddings.Embedder) EmbeddingClient {
	return &embedderClient{inner: inner}
}

func (e *embedderClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *embedderClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrEmbeddingUnavailable)
	}
	return vector, nil
}

// geminiEmbedder uses asymmetric task types for documents and queries.
type geminiEmbedder struct {
	client    *genai.Client
	model     string
	batchSize int
}

func NewGeminiEmbeddingClient(client *genai.Client, model string) EmbeddingClient {
	return &geminiEmbedder{client: client, model: model, batchSize: 100}
}

func (g *geminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range embeddings.BatchTexts(texts, g.batchSize) {
		contents := make([]*genai.Content, 0, len(batch))
		for _, t := range batch {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{TaskType: taskType})
		if err != nil {
			return nil, fmt.Errorf("%w: gemini embed: %w", ErrEmbeddingUnavailable, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", ErrEmbeddingUnavailable, len(resp.Embeddings), len(batch))
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (g *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return g.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (g *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
