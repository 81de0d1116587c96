package main

import (
	"context"
	"log"
	"time"

	"docchat/internal/activities"
	"docchat/internal/config"
	"docchat/internal/pinecone"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := newLogger(cfg.LogMode)
	defer func() {
		_ = logger.Sync()
	}()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.IngestMaxConcurrent,
	})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		log.Fatal(err)
	}
	pc, err := pinecone.NewClient(pinecone.Config{APIKey: cfg.PineconeAPIKey})
	if err != nil {
		log.Fatal(err)
	}
	index, err := pinecone.NewIndex(pc, cfg.PineconeIndexName, cfg.EmbedDim, cfg.PineconeIndexHost, logger)
	if err != nil {
		log.Fatal(err)
	}

	a := activities.New(cfg, storage.NewDocumentRepo(db), storage.NewChunkRepo(db), index, pm.FirstEmbedProvider(), logger)
	activities.Register(w, a)

	logger.Info("docchat worker started",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("queue", cfg.TemporalTaskQueue),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}

func newLogger(mode string) *zap.Logger {
	if mode == "prod" {
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatal(err)
		}
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	return l
}
