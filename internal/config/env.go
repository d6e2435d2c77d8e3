package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendLocal    = "local"
	BackendPGVector = "pgvector"
	BackendOpenAI   = "openai"
)

// DefaultSystemPrompt frames every chat completion.
const DefaultSystemPrompt = "You are an AI assistant. Use the provided context to answer concisely."

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	SslCertPath string `yaml:"ssl_cert_path"`
	Port        string `yaml:"port"`

	LLMProvider   string  `yaml:"llm_provider"`
	EmbedProvider string  `yaml:"embed_provider"`
	OpenAIAPIKey  string  `yaml:"-"`
	GeminiAPIKey  string  `yaml:"-"`
	GenModel      string  `yaml:"gen_model"`   // empty picks the provider default
	EmbedModel    string  `yaml:"embed_model"` // empty picks the provider default
	EmbedDim      int     `yaml:"embed_dim"`
	Temperature   float64 `yaml:"temperature"`
	TopK          int     `yaml:"top_k"`
	SystemPrompt  string  `yaml:"system_prompt"`

	VectorBackend string `yaml:"vector_backend"`
	IndexPath     string `yaml:"index_path"`
	VectorStoreID string `yaml:"vector_store_id"`

	DocsDir       string `yaml:"docs_dir"`
	UploadDir     string `yaml:"upload_dir"`
	MaxBatchFiles int    `yaml:"max_batch_files"`
	ChunkTokens   int    `yaml:"chunk_tokens"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	EmbedBatch    int    `yaml:"embed_batch"`

	AwsAccessKey string `yaml:"-"`
	AwsSecretKey string `yaml:"-"`
	AwsRegion    string `yaml:"aws_region"`
	BucketName   string `yaml:"bucket_name"`

	JWTSecret   string   `yaml:"-"`
	CORSOrigins []string `yaml:"cors_origins"`
}

func defaults() *Config {
	return &Config{
		DatabaseURL:   "sqlite://./data/db.sqlite3",
		Port:          "8080",
		LLMProvider:   ProviderOpenAI,
		EmbedDim:      1536,
		Temperature:   0.2,
		TopK:          5,
		SystemPrompt:  DefaultSystemPrompt,
		VectorBackend: BackendLocal,
		IndexPath:     "data/index",
		DocsDir:       "data/docs",
		UploadDir:     "data/uploads",
		MaxBatchFiles: 10,
		ChunkTokens:   250,
		ChunkOverlap:  50,
		EmbedBatch:    500,
		AwsRegion:     "us-east-2",
		CORSOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
	}
}

// LoadConfig loads .env, then the optional YAML file named by DOCCHAT_CONFIG,
// then the process environment. Later sources win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("DOCCHAT_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SslCertPath = getEnv("SSL_CERT_PATH", cfg.SslCertPath)
	cfg.Port = getEnv("PORT", cfg.Port)

	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.EmbedProvider = strings.ToLower(getEnv("EMBED_PROVIDER", cfg.EmbedProvider))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GenModel = getEnv("GEN_MODEL", cfg.GenModel)
	cfg.EmbedModel = getEnv("EMBED_MODEL", cfg.EmbedModel)
	cfg.EmbedDim = getEnvInt("EMBED_DIM", cfg.EmbedDim)
	cfg.Temperature = getEnvFloat("TEMPERATURE", cfg.Temperature)
	cfg.TopK = getEnvInt("TOP_K", cfg.TopK)
	cfg.SystemPrompt = getEnv("SYSTEM_PROMPT", cfg.SystemPrompt)

	cfg.VectorBackend = strings.ToLower(getEnv("VECTOR_BACKEND", cfg.VectorBackend))
	cfg.IndexPath = getEnv("INDEX_PATH", cfg.IndexPath)
	cfg.VectorStoreID = getEnv("VECTOR_STORE_ID", cfg.VectorStoreID)

	cfg.DocsDir = getEnv("DOCS_DIR", cfg.DocsDir)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.MaxBatchFiles = getEnvInt("MAX_BATCH_FILES", cfg.MaxBatchFiles)
	cfg.ChunkTokens = getEnvInt("CHUNK_TOKENS", cfg.ChunkTokens)
	cfg.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.EmbedBatch = getEnvInt("EMBED_BATCH", cfg.EmbedBatch)

	cfg.AwsAccessKey = getEnv("AWS_ACCESS_KEY", cfg.AwsAccessKey)
	cfg.AwsSecretKey = getEnv("AWS_SECRET_KEY", cfg.AwsSecretKey)
	cfg.AwsRegion = getEnv("AWS_REGION", cfg.AwsRegion)
	cfg.BucketName = getEnv("BUCKET_NAME", cfg.BucketName)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)

	if cfg.EmbedProvider == "" {
		cfg.EmbedProvider = cfg.LLMProvider
	}
}

// Validate checks the combinations the services depend on.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not one of openai, gemini", c.LLMProvider))
	}
	switch c.EmbedProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q is not one of openai, gemini", c.EmbedProvider))
	}
	switch c.VectorBackend {
	case BackendLocal:
	case BackendPGVector:
		if !c.IsPostgres() {
			errs = append(errs, errors.New("VECTOR_BACKEND=pgvector needs a postgres DATABASE_URL"))
		}
	case BackendOpenAI:
		if c.VectorStoreID == "" {
			errs = append(errs, errors.New("VECTOR_BACKEND=openai needs VECTOR_STORE_ID"))
		}
	default:
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND %q is not one of local, pgvector, openai", c.VectorBackend))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.ChunkOverlap >= c.ChunkTokens {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_TOKENS (%d)", c.ChunkOverlap, c.ChunkTokens))
	}
	return errors.Join(errs...)
}

// IsPostgres reports whether DatabaseURL points at Postgres.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// S3Enabled reports whether uploaded originals should be archived to S3.
func (c *Config) S3Enabled() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.BucketName != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("env value is not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
