package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"imagestudio/internal/http/handlers"
	"imagestudio/internal/http/httpapi"
	"imagestudio/internal/infra"
	"imagestudio/internal/judge"
	"imagestudio/internal/providers/genai"
	"imagestudio/internal/variation"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.ImageModel,
		JudgeModel: cfg.JudgeModel,
		Timeout:    cfg.GenAITimeout,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gemini client")
	}

	generator := variation.NewGenerator(client, &logger, cfg.MaxAttempts)
	batcher := variation.NewBatcher(generator, &logger, cfg.VariationCount)
	comparator := judge.New(client, &logger)

	app := handlers.NewApp(logger, batcher, comparator)
	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("image_model", client.ImageModel()).
			Str("judge_model", client.JudgeModel()).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
