package main

import (
	"log"
	"net/http"

	"docchat/internal/api"
	"docchat/internal/config"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := newLogger(cfg.LogMode)
	defer func() {
		_ = logger.Sync()
	}()

	h := api.NewServer(cfg, logger)
	logger.Info("docchat api listening",
		zap.String("addr", cfg.APIAddr),
		zap.String("llm_providers", cfg.LLMProviders),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
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
