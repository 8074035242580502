package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/config"
	"github.com/xxxsen/studyrag/internal/handler"
	"github.com/xxxsen/studyrag/internal/ingest"
	"github.com/xxxsen/studyrag/internal/job"
	"github.com/xxxsen/studyrag/internal/middleware"
	"github.com/xxxsen/studyrag/internal/progress"
	"github.com/xxxsen/studyrag/internal/schedule"
)

func main() {
	var configPath string
	var text string
	var taskType string

	rootCmd := &cobra.Command{
		Use:   "studyrag",
		Short: "study material retrieval service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run studyrag server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	embedCmd := &cobra.Command{
		Use:   "embed",
		Short: "embed a text with the configured provider and print the vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			adapter, err := buildEmbeddingAdapter(cfg)
			if err != nil {
				return err
			}
			vec, err := adapter.Embed(context.Background(), text, taskType)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
				"model":     adapter.ModelName(),
				"dimension": len(vec),
				"embedding": vec,
			})
		},
	}
	embedCmd.Flags().StringVar(&text, "text", "", "text to embed")
	embedCmd.Flags().StringVar(&taskType, "task", ai.TaskRetrievalQuery, "embedding task type")
	_ = embedCmd.MarkFlagRequired("text")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "re-embed every stored chunk with the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			bar := progress.New(progress.DefaultEnabled(), "reindex", os.Stderr)
			n, err := app.RAG.Reindex(context.Background(), bar)
			logutil.GetLogger(context.Background()).Info("reindex finished", zap.Int("documents", n))
			return err
		},
	}

	var dir, prefix string
	var patterns, excludes []string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "chunk and ingest study files from a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := context.Background()
			if cfg.Store.Type == config.StoreMemory {
				logutil.GetLogger(ctx).Warn("ingesting into the memory store, data is dropped on exit")
			}
			sources, err := ingest.Collect(ctx, os.DirFS(dir), ingest.Options{
				Patterns: patterns,
				Exclude:  excludes,
				Prefix:   prefix,
			})
			if err != nil {
				return err
			}
			bar := progress.New(progress.DefaultEnabled(), "ingest", os.Stderr)
			summary, err := ingest.Run(ctx, sources, app.Chunker, app.RAG, bar)
			if err != nil {
				return err
			}
			logutil.GetLogger(ctx).Info("ingest finished",
				zap.String("dir", dir),
				zap.Int("documents", summary.Documents),
				zap.Int("chunks", summary.Chunks),
				zap.Strings("failed", summary.Failed),
			)
			if len(summary.Failed) > 0 {
				return fmt.Errorf("%d files failed to ingest", len(summary.Failed))
			}
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&dir, "dir", ".", "directory holding study files")
	ingestCmd.Flags().StringVar(&prefix, "prefix", "", "document id prefix")
	ingestCmd.Flags().StringSliceVar(&patterns, "pattern", nil, "glob patterns to include (default markdown and text files)")
	ingestCmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob patterns to skip")

	rootCmd.AddCommand(runCmd, embedCmd, reindexCmd, ingestCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("store", cfg.Store.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("fallback_policy", cfg.Embedding.FallbackPolicy),
	)

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	deps := handler.RouterDeps{
		RAG:           handler.NewRAGHandler(app.RAG, app.Chunker),
		Chat:          handler.NewChatHandler(app.Chat),
		ChatRateLimit: app.ChatRateLimit,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewRAGStatsJob(app.RAG), cfg.StatsCron); err != nil {
		return fmt.Errorf("schedule stats job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
