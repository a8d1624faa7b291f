package cmd

import (
	"context"
	"errors"
	"fmt"

	"github/itish2003/agriqa/config"
	"github/itish2003/agriqa/database"
	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/services"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// app holds every long-lived dependency. It is built once per process and
// shared by the commands.
type app struct {
	cfg *config.Settings
	log *logger.Logger
	db  *gorm.DB

	files     *services.FileStorage
	knowledge services.KnowledgeService
	retrieval services.RetrievalService
	qa        services.QAService

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.log.Sync()
	return errors.Join(errs...)
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return buildServices(ctx, cfg, log)
}

func buildServices(ctx context.Context, cfg *config.Settings, log *logger.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = database.Init(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLEcho)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)

	if err := services.ConfigurePDFLicense(cfg.UnidocLicenseKey); err != nil {
		log.Warn("PDF extraction disabled", "error", err)
	}

	var geminiClient *genai.Client
	if cfg.LLMProvider == "gemini" || cfg.EmbeddingProvider == "gemini" {
		geminiClient, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		log.Info("connected to Google Gemini", "model", cfg.GeminiModel)
	}

	var embedder services.EmbeddingClient
	switch cfg.EmbeddingProvider {
	case "gemini":
		embedder = services.NewGeminiEmbeddingClient(geminiClient, cfg.GeminiEmbedding)
	default:
		embedder, err = services.NewOpenAIEmbeddingClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbeddings)
		if err != nil {
			return nil, err
		}
	}

	var model services.ChatModel
	switch cfg.LLMProvider {
	case "gemini":
		model = services.NewGeminiChatModel(geminiClient, cfg.GeminiModel, cfg.Temperature)
	default:
		model, err = services.NewOpenAIChatModel(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Temperature)
		if err != nil {
			return nil, err
		}
	}

	index, err := a.vectorIndex(ctx, embedder)
	if err != nil {
		return nil, err
	}

	conversations, err := a.conversationLog(ctx)
	if err != nil {
		return nil, err
	}

	splitter, err := services.NewChunkSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	a.files, err = services.NewFileStorage(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	a.knowledge = services.NewKnowledgeService(log, splitter, embedder, index, services.NewDocumentStore(a.db), a.files, cfg.MaxUploadSize)
	a.retrieval = services.NewRetrievalService(embedder, index)
	a.qa = services.NewQAService(log, services.NewSessionManager(conversations), model, a.retrieval, cfg.QARetrievalTopK)
	return a, nil
}

func (a *app) vectorIndex(ctx context.Context, embedder services.EmbeddingClient) (services.VectorIndex, error) {
	if a.cfg.VectorStore == "memory" {
		a.log.Warn("using the in-memory vector index; vectors are lost on restart")
		return services.NewMemoryIndex(), nil
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(a.cfg.ChromaURL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	collection, err := services.GetOrCreateCollection(ctx, client, a.cfg.ChromaCollection, embedder)
	if err != nil {
		return nil, err
	}
	a.log.Info("vector collection ready", "collection", a.cfg.ChromaCollection, "url", a.cfg.ChromaURL)
	return services.NewChromaIndex(collection), nil
}

func (a *app) conversationLog(ctx context.Context) (services.ConversationLog, error) {
	if a.cfg.SessionBackend != "redis" {
		return services.NewSQLConversationLog(a.db), nil
	}
	rdb, err := services.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("conversation history stored in redis")
	return services.NewRedisConversationLog(rdb), nil
}
