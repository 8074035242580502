package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/chunker"
	"github.com/xxxsen/studyrag/internal/config"
	"github.com/xxxsen/studyrag/internal/db"
	"github.com/xxxsen/studyrag/internal/embedcache"
	"github.com/xxxsen/studyrag/internal/rag"
	"github.com/xxxsen/studyrag/internal/repo"
	"github.com/xxxsen/studyrag/internal/service"
)

const hashProvider = "hash"

type application struct {
	RAG           *rag.Service
	Chat          *service.ChatService
	Chunker       *chunker.Chunker
	ChatRateLimit time.Duration
	closers       []io.Closer
}

func (a *application) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func buildApp(cfg *config.Config) (*application, error) {
	out := &application{
		Chunker:       chunker.New(0, 0),
		ChatRateLimit: time.Duration(cfg.Chat.RateLimitMilli) * time.Millisecond,
	}
	store, err := buildStore(cfg, out)
	if err != nil {
		return nil, err
	}
	adapter, err := buildEmbeddingAdapter(cfg)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.RAG = rag.NewService(adapter, adapter.Fallback(), store)
	out.Chat = service.NewChatService(
		out.RAG,
		buildGenerator(cfg),
		cfg.Chat.TopK,
		time.Duration(cfg.Chat.Timeout)*time.Second,
	)
	return out, nil
}

func buildStore(cfg *config.Config, out *application) (rag.Store, error) {
	switch cfg.Store.Type {
	case config.StorePostgres:
		return buildPostgresStore(cfg, out)
	case config.StoreBolt:
		store, err := repo.OpenBoltStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, store)
		return store, nil
	default:
		return rag.NewMemoryStore(), nil
	}
}

func buildPostgresStore(cfg *config.Config, out *application) (rag.Store, error) {
	conn, err := db.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	out.closers = append(out.closers, conn)
	return repo.NewChunkRepo(conn), nil
}

// buildEmbeddingAdapter wires the configured provider behind the LRU cache and
// the hash fallback. Provider "hash" leaves the adapter fallback only.
func buildEmbeddingAdapter(cfg *config.Config) (*ai.EmbeddingAdapter, error) {
	emb := cfg.Embedding
	adapter := ai.NewEmbeddingAdapter(ai.NewHashEmbedder(emb.Dimension))
	name := ai.ResolveName(emb.Provider)
	if name == hashProvider {
		return adapter, nil
	}
	provider, err := ai.NewEmbedProvider(name, embedProviderArgs(name, emb))
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	primary := embedcache.WrapLRU(
		ai.Throttle(ai.NewEmbedder(provider, emb.Model), emb.MaxRPS),
		emb.CacheSize,
		time.Duration(emb.CacheTTLSeconds)*time.Second,
	)
	adapter.Init(primary, provider.Kind(), ai.AdapterConfig{
		Timeout: time.Duration(emb.Timeout) * time.Second,
		Policy:  ai.FallbackPolicy(emb.FallbackPolicy),
	})
	logutil.GetLogger(context.Background()).Info("embedding provider ready",
		zap.String("provider", provider.Name()),
		zap.String("model", primary.ModelName()),
		zap.String("kind", string(provider.Kind())),
	)
	return adapter, nil
}

func embedProviderArgs(name string, emb config.EmbeddingConfig) interface{} {
	switch name {
	case "gemini":
		return emb.Gemini
	case "openai":
		return emb.OpenAI
	default:
		return emb.Ollama
	}
}

func buildGenerator(cfg *config.Config) ai.IGenerator {
	logger := logutil.GetLogger(context.Background())
	var items []ai.GeneratorEntry
	for _, name := range cfg.Chat.Providers {
		key := ai.ResolveName(name)
		var args interface{}
		var model string
		switch key {
		case "gemini":
			if cfg.Embedding.Gemini.APIKey == "" {
				continue
			}
			args, model = cfg.Embedding.Gemini, cfg.Embedding.Gemini.Model
		case "groq":
			if cfg.Chat.Groq.APIKey == "" {
				continue
			}
			args, model = cfg.Chat.Groq, cfg.Chat.Groq.Model
		case "openai":
			if cfg.Embedding.OpenAI.APIKey == "" {
				continue
			}
			args, model = cfg.Embedding.OpenAI, cfg.Embedding.OpenAI.Model
		case "ollama":
			args, model = cfg.Embedding.Ollama, cfg.Embedding.Ollama.Model
		default:
			logger.Warn("unknown chat provider ignored", zap.String("provider", name))
			continue
		}
		provider, err := ai.NewProvider(key, args)
		if err != nil {
			logger.Warn("init chat provider failed", zap.String("provider", key), zap.Error(err))
			continue
		}
		items = append(items, ai.GeneratorEntry{Name: key, Generator: ai.NewGenerator(provider, model)})
	}
	return ai.NewGroupGenerator(items)
}
