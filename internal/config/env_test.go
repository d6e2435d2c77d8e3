package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOCCHAT_CONFIG", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TopK != 5 || cfg.Temperature != 0.2 || cfg.VectorBackend != BackendLocal {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.EmbedProvider != cfg.LLMProvider {
		t.Errorf("EmbedProvider should default to LLMProvider, got %q", cfg.EmbedProvider)
	}
	if cfg.IsPostgres() {
		t.Error("default database should be sqlite")
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docchat.yaml")
	yml := strings.Join([]string{
		"port: \"9090\"",
		"top_k: 8",
		"llm_provider: gemini",
		"gen_model: gemini-1.5-flash",
		"cors_origins: [\"https://chat.example.com\"]",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOCCHAT_CONFIG", path)
	t.Setenv("TOP_K", "3")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("EMBED_PROVIDER", "OpenAI")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" || cfg.LLMProvider != ProviderGemini || cfg.GenModel != "gemini-1.5-flash" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.TopK != 3 || cfg.Temperature != 0.7 {
		t.Errorf("env should win over file: top_k=%d temperature=%v", cfg.TopK, cfg.Temperature)
	}
	if cfg.EmbedProvider != ProviderOpenAI {
		t.Errorf("EmbedProvider = %q", cfg.EmbedProvider)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://chat.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("DOCCHAT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "not-a-number")
	if got := getEnvInt("X_INT", 7); got != 7 {
		t.Errorf("getEnvInt fallback = %d", got)
	}
	t.Setenv("X_FLOAT", "abc")
	if got := getEnvFloat("X_FLOAT", 1.5); got != 1.5 {
		t.Errorf("getEnvFloat fallback = %v", got)
	}
	t.Setenv("X_LIST", " a, ,b ,")
	if got := getEnvList("X_LIST", nil); strings.Join(got, "|") != "a|b" {
		t.Errorf("getEnvList = %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.LLMProvider = "llama" }, "LLM_PROVIDER"},
		{"pgvector on sqlite", func(c *Config) { c.VectorBackend = BackendPGVector }, "postgres"},
		{"pgvector on postgres", func(c *Config) {
			c.VectorBackend = BackendPGVector
			c.DatabaseURL = "postgres://u:p@localhost/db"
		}, ""},
		{"hosted store without id", func(c *Config) { c.VectorBackend = BackendOpenAI }, "VECTOR_STORE_ID"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = c.ChunkTokens }, "CHUNK_OVERLAP"},
		{"bad top k", func(c *Config) { c.TopK = 0 }, "TOP_K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			c.EmbedProvider = c.LLMProvider
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
