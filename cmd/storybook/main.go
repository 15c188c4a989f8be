package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storybook/internal/api"
	"storybook/internal/config"
	"storybook/internal/domain"
	"storybook/internal/flow"
	"storybook/internal/kvstore"
	"storybook/internal/logger"
	"storybook/internal/reader"
	"storybook/internal/service"
	"storybook/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env не обязателен
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogOutput,
		Env:        cfg.Env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	cfg.LogSummary(log)

	if err := run(cfg, log); err != nil {
		log.Error("Storybook stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Server exiting")
}

func run(cfg *config.Config, log *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kv, err := kvstore.Open(startCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	characters := store.NewCharacterStore(kv, log)
	theme := store.NewThemeStore(kv, log)
	stories := store.NewStoryStore(kv, log)
	credentials := store.NewCredentialStore(kv, cfg.CredentialPrefix, log)
	for _, s := range []interface{ Hydrate(context.Context) error }{characters, theme, stories, credentials} {
		if err := s.Hydrate(startCtx); err != nil {
			return fmt.Errorf("failed to hydrate stores: %w", err)
		}
	}
	log.Info("Stores hydrated", zap.Int("characters", len(characters.Characters())))

	// AI_API_KEY только засевает хранилище, сохраненный ключ приоритетнее
	if _, ok := credentials.Credential(); !ok && cfg.AIAPIKey != "" {
		if err := credentials.Set(startCtx, cfg.AIAPIKey); err != nil {
			log.Warn("AI_API_KEY was not stored", zap.Error(err))
		}
	}

	aiClient, err := service.NewAIClient(cfg, credentials, log)
	if err != nil {
		return err
	}
	if closer, ok := aiClient.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	defaultVoice, err := domain.ParseVoice(cfg.TTSDefaultVoice, domain.VoiceNova)
	if err != nil {
		return err
	}
	temperature, maxTokens := cfg.AITemperature, cfg.AIMaxTokens
	generator := service.NewStoryGenerator(aiClient, characters, theme, stories, service.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, log)
	narrator := service.NewNarrator(aiClient, kv, defaultVoice, cfg.AudioCacheMaxEntries, cfg.AudioCacheTTL, log)

	handler := api.NewHandler(api.Deps{
		Characters:    characters,
		Theme:         theme,
		Stories:       stories,
		Credentials:   credentials,
		CharacterFlow: flow.NewCharacterFlow(characters, log),
		ThemeFlow:     flow.NewThemeFlow(theme, characters, nil, log),
		Generator:     generator,
		Narrator:      narrator,
		Reader:        reader.New(stories),
	}, log)
	router := api.NewRouter(api.RouterConfig{
		Env:            cfg.Env,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        true,
	}, handler, log)

	// генерация держит запрос до ответа провайдера
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	return nil
}
