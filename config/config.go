package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the root application configuration.
type Settings struct {
	AppName     string `yaml:"app_name"`
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`
	SQLEcho        bool   `yaml:"sql_echo"`

	VectorStore      string `yaml:"vector_store"`
	ChromaURL        string `yaml:"chroma_url"`
	ChromaCollection string `yaml:"chroma_collection"`

	LLMProvider       string  `yaml:"llm_provider"`
	EmbeddingProvider string  `yaml:"embedding_provider"`
	OpenAIBaseURL     string  `yaml:"openai_base_url"`
	OpenAIAPIKey      string  `yaml:"openai_api_key"`
	OpenAIModel       string  `yaml:"openai_model"`
	OpenAIEmbeddings  string  `yaml:"openai_embeddings"`
	GeminiAPIKey      string  `yaml:"gemini_api_key"`
	GeminiModel       string  `yaml:"gemini_model"`
	GeminiEmbedding   string  `yaml:"gemini_embedding_model"`
	Temperature       float64 `yaml:"temperature"`

	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	QARetrievalTopK int `yaml:"qa_retrieval_top_k"`
	AskRatePerMin   int `yaml:"ask_rate_per_minute"`

	UploadDir     string `yaml:"upload_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	WatchDir      string `yaml:"watch_dir"`

	SecretKey                string `yaml:"secret_key"`
	Algorithm                string `yaml:"algorithm"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`

	SessionBackend string `yaml:"session_backend"`
	RedisURL       string `yaml:"redis_url"`

	UnidocLicenseKey string `yaml:"unidoc_license_key"`
}

// Load builds Settings from defaults, then the optional YAML file at path,
// then a .env file and the process environment.
func Load(path string) (*Settings, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env is optional; the environment always wins over it.
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Settings {
	return &Settings{
		AppName:                  "智慧农业咨询系统",
		Environment:              "development",
		Port:                     "8080",
		DatabaseDriver:           "sqlite",
		DatabaseURL:              "app.db",
		VectorStore:              "chroma",
		ChromaURL:                "http://localhost:8000",
		ChromaCollection:         "agricultural_knowledge",
		LLMProvider:              "openai",
		EmbeddingProvider:        "openai",
		OpenAIBaseURL:            "http://localhost:9997/v1",
		OpenAIAPIKey:             "not-needed",
		OpenAIModel:              "qwen3",
		OpenAIEmbeddings:         "jina-embeddings-v3",
		GeminiModel:              "gemini-2.5-flash",
		GeminiEmbedding:          "text-embedding-004",
		Temperature:              0.7,
		ChunkSize:                1000,
		ChunkOverlap:             200,
		QARetrievalTopK:          3,
		AskRatePerMin:            30,
		UploadDir:                "data/uploads",
		MaxUploadSize:            10 << 20,
		SecretKey:                defaultSecretKey,
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 30,
		SessionBackend:           "sql",
		RedisURL:                 "redis://localhost:6379/0",
	}
}

func applyConfigDefaults(cfg *Settings) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 10 << 20
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	cfg.VectorStore = strings.ToLower(cfg.VectorStore)
	cfg.LLMProvider = strings.ToLower(cfg.LLMProvider)
	cfg.EmbeddingProvider = strings.ToLower(cfg.EmbeddingProvider)
	cfg.SessionBackend = strings.ToLower(cfg.SessionBackend)
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
}

// Validate rejects settings the application cannot start with.
// defaultSecretKey is only acceptable outside production.
const defaultSecretKey = "change-me"

func (s *Settings) Validate() error {
	if s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", s.ChunkOverlap, s.ChunkSize)
	}
	switch s.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database_driver %q", s.DatabaseDriver)
	}
	switch s.VectorStore {
	case "chroma", "memory":
	default:
		return fmt.Errorf("unsupported vector_store %q", s.VectorStore)
	}
	for _, p := range []string{s.LLMProvider, s.EmbeddingProvider} {
		if p != "openai" && p != "gemini" {
			return fmt.Errorf("unsupported model provider %q", p)
		}
	}
	if (s.LLMProvider == "gemini" || s.EmbeddingProvider == "gemini") && s.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required for the gemini provider")
	}
	if s.IsProduction() && (strings.TrimSpace(s.SecretKey) == "" || s.SecretKey == defaultSecretKey) {
		return errors.New("SECRET_KEY must be set to a non-default value in production")
	}
	switch s.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported token algorithm %q", s.Algorithm)
	}
	switch s.SessionBackend {
	case "sql", "redis":
	default:
		return fmt.Errorf("unsupported session_backend %q", s.SessionBackend)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (s *Settings) IsProduction() bool {
	e := strings.ToLower(s.Environment)
	return e == "prod" || e == "production"
}

func applyEnv(cfg *Settings) error {
	str := map[string]*string{
		"APP_NAME":               &cfg.AppName,
		"ENVIRONMENT":            &cfg.Environment,
		"PORT":                   &cfg.Port,
		"DATABASE_DRIVER":        &cfg.DatabaseDriver,
		"DATABASE_URL":           &cfg.DatabaseURL,
		"VECTOR_STORE":           &cfg.VectorStore,
		"CHROMA_URL":             &cfg.ChromaURL,
		"CHROMA_COLLECTION":      &cfg.ChromaCollection,
		"LLM_PROVIDER":           &cfg.LLMProvider,
		"EMBEDDING_PROVIDER":     &cfg.EmbeddingProvider,
		"OPENAI_BASE_URL":        &cfg.OpenAIBaseURL,
		"OPENAI_API_KEY":         &cfg.OpenAIAPIKey,
		"OPENAI_MODEL":           &cfg.OpenAIModel,
		"OPENAI_EMBEDDINGS":      &cfg.OpenAIEmbeddings,
		"GEMINI_API_KEY":         &cfg.GeminiAPIKey,
		"GEMINI_MODEL":           &cfg.GeminiModel,
		"GEMINI_EMBEDDING_MODEL": &cfg.GeminiEmbedding,
		"UPLOAD_DIR":             &cfg.UploadDir,
		"WATCH_DIR":              &cfg.WatchDir,
		"SECRET_KEY":             &cfg.SecretKey,
		"ALGORITHM":              &cfg.Algorithm,
		"SESSION_BACKEND":        &cfg.SessionBackend,
		"REDIS_URL":              &cfg.RedisURL,
		"UNIDOC_LICENSE_KEY":     &cfg.UnidocLicenseKey,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE":                  &cfg.ChunkSize,
		"CHUNK_OVERLAP":               &cfg.ChunkOverlap,
		"QA_RETRIEVAL_TOP_K":          &cfg.QARetrievalTopK,
		"ASK_RATE_PER_MINUTE":         &cfg.AskRatePerMin,
		"ACCESS_TOKEN_EXPIRE_MINUTES": &cfg.AccessTokenExpireMinutes,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("MAX_UPLOAD_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
		}
		cfg.MaxUploadSize = n
	}
	if v, ok := os.LookupEnv("TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid TEMPERATURE: %w", err)
		}
		cfg.Temperature = f
	}
	if v, ok := os.LookupEnv("SQL_ECHO"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid SQL_ECHO: %w", err)
		}
		cfg.SQLEcho = b
	}
	return nil
}
