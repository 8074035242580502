package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	ProviderCloud = "cloud"
	ProviderLocal = "local"

	FallbackAlways    = "always"
	FallbackLocalOnly = "local_only"
	FallbackNever     = "never"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
)

type Config struct {
	Port          int              `json:"port"`
	LogConfig     logger.LogConfig `json:"log_config"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	Embedding     EmbeddingConfig  `json:"embedding"`
	Chat          ChatConfig       `json:"chat"`
	Store         StoreConfig      `json:"store"`
	StatsCron     string           `json:"stats_cron"`
}

type EmbeddingConfig struct {
	Provider        string       `json:"provider"`
	Model           string       `json:"model"`
	Dimension       int          `json:"dimension"`
	Timeout         int          `json:"timeout"`
	FallbackPolicy  string       `json:"fallback_policy"`
	CacheSize       int          `json:"cache_size"`
	CacheTTLSeconds int          `json:"cache_ttl_seconds"`
	MaxRPS          float64      `json:"max_rps"`
	Gemini          GeminiConfig `json:"gemini"`
	Ollama          OllamaConfig `json:"ollama"`
	OpenAI          OpenAIConfig `json:"openai"`
}

// GeminiConfig and OllamaConfig carry the connection for both embedding and
// chat; Model is the chat model, embeddings use EmbeddingConfig.Model.
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type OllamaConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// ChatConfig lists generation backends in the order they are tried.
type ChatConfig struct {
	Providers      []string     `json:"providers"`
	Groq           OpenAIConfig `json:"groq"`
	TopK           int          `json:"top_k"`
	Timeout        int          `json:"timeout"`
	RateLimitMilli int          `json:"rate_limit_ms"`
}

type StoreConfig struct {
	Type string `json:"type"`
	DSN  string `json:"dsn"`
	Path string `json:"path"`
}

// Load reads the optional JSON file at path, then applies .env and process
// environment overrides, then defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		if err := decodeFile(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	_ = godotenv.Load()
	applyEnv(&cfg, os.Getenv)
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeFile accepts JSON or YAML. YAML is normalised through JSON so the
// json tags stay the single source of key names.
func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == nil {
			return nil
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		data = converted
	}
	return json.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Embedding.FallbackPolicy, "EMBEDDING_FALLBACK_POLICY")
	setString(&cfg.Embedding.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.Embedding.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Embedding.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Embedding.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Chat.Groq.APIKey, "GROQ_API_KEY")
	setString(&cfg.Store.DSN, "STUDYRAG_DB_DSN")
	if v := strings.TrimSpace(getenv("STUDYRAG_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	emb := &cfg.Embedding
	emb.Provider = strings.ToLower(strings.TrimSpace(emb.Provider))
	if emb.Provider == "" {
		emb.Provider = ProviderLocal
	}
	if emb.Dimension <= 0 {
		emb.Dimension = 384
	}
	if emb.Timeout <= 0 {
		emb.Timeout = 15
	}
	if emb.FallbackPolicy == "" {
		emb.FallbackPolicy = FallbackAlways
	}
	switch emb.FallbackPolicy {
	case FallbackAlways, FallbackLocalOnly, FallbackNever:
	default:
		return fmt.Errorf("embedding.fallback_policy must be always, local_only or never")
	}
	if emb.CacheSize == 0 {
		emb.CacheSize = 10000
	}
	if emb.CacheTTLSeconds == 0 {
		emb.CacheTTLSeconds = 7200
	}
	if emb.Ollama.BaseURL == "" {
		emb.Ollama.BaseURL = "http://localhost:11434"
	}
	if emb.Model == "" {
		switch emb.Provider {
		case ProviderCloud, "gemini":
			emb.Model = "text-embedding-004"
		case "openai":
			emb.Model = "text-embedding-3-small"
		default:
			emb.Model = "nomic-embed-text"
		}
	}
	if emb.Gemini.Model == "" {
		emb.Gemini.Model = "gemini-2.0-flash"
	}
	if emb.Ollama.Model == "" {
		emb.Ollama.Model = "llama3.2"
	}
	if emb.OpenAI.Model == "" {
		emb.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Chat.Groq.Model == "" {
		cfg.Chat.Groq.Model = "llama-3.1-8b-instant"
	}
	if len(cfg.Chat.Providers) == 0 {
		cfg.Chat.Providers = []string{"gemini", "groq", "ollama"}
	}
	if cfg.Chat.TopK <= 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = 60
	}
	if cfg.Chat.RateLimitMilli == 0 {
		cfg.Chat.RateLimitMilli = 1000
	}
	if cfg.StatsCron == "" {
		cfg.StatsCron = "*/10 * * * *"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreMemory
	}
	switch cfg.Store.Type {
	case StoreMemory:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres store")
		}
	case StoreBolt:
		if cfg.Store.Path == "" {
			cfg.Store.Path = "studyrag.db"
		}
	default:
		return fmt.Errorf("store.type must be memory, postgres or bolt")
	}
	return nil
}
