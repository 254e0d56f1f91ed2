package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docchat/internal/config"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	aiAdapters "docchat/internal/infra/adapters/ai"
	"docchat/internal/infra/adapters/parser"
	"docchat/internal/infra/api"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
	red "docchat/internal/infra/redis"
	"docchat/internal/infra/store"
	"docchat/internal/infra/tokens"
	"docchat/internal/usecase"
)

var serveFlags struct {
	config  string
	envFile string
	dev     bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.config, "config", "config.yaml", "path to YAML config file")
	serveCmd.Flags().StringVar(&serveFlags.envFile, "env-file", config.DefaultEnvFile(), "dotenv file with provider keys")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "developer mode (noop streamer without keys, verbose logs)")
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig(serveFlags.config, serveFlags.dev, serveFlags.envFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	defaults := model.Settings{
		Model:        cfg.AI.DefaultModel,
		SystemPrompt: cfg.Chat.SystemPrompt,
		MaxTokens:    cfg.Chat.MaxTokens,
	}
	sessions := store.NewMemoryStore(defaults)

	ai, err := buildStreamer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	doc, ocr, closeParsers := buildParsers(ctx, cfg, logger)
	defer closeParsers()

	counter := tokens.NewCounter()
	counter.Warm(defaults.Model)

	// ---- Use cases ----
	chatUC := usecase.NewChatUseCase(sessions, ai, counter, usecase.ChatOptions{
		Defaults:         defaults,
		Temperature:      cfg.Chat.Temperature,
		TypingDelay:      cfg.Chat.TypingDelay,
		ContextFileRunes: cfg.Chat.ContextFileRunes,
		Dev:              cfg.Runtime.Dev,
	}, logger)
	fileUC := usecase.NewFileUseCase(sessions, doc, ocr, cfg.Files.MaxUploadBytes, logger)
	convUC := usecase.NewConversationUseCase(sessions, logger)

	// ---- HTTP ----
	srv := api.NewServer(convUC, fileUC, chatUC, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		KeepAlive:      cfg.Chat.KeepAlive,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
		MaxBatchFiles:  cfg.Files.MaxBatchFiles,
	}, logger)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("model", defaults.Model).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// ---- Graceful shutdown ----
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildStreamer wires the configured providers behind the router and the
// concurrency limit. Dev mode without keys uses the noop echo streamer.
func buildStreamer(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.ChatStreamer, error) {
	providers := map[string]adapter.ChatStreamer{}
	defaultProvider := ""

	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel, cfg.AI.OpenAIBaseURL, cfg.AI.Timeout, cfg.AI.Models)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = a
		defaultProvider = "openai"
		logger.Info().Str("base", cfg.AI.OpenAIBaseURL).Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI compatible")
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, "")
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = a
		if defaultProvider == "" {
			defaultProvider = "gemini"
		}
		logger.Info().Msg("AI adapter: Gemini")
	}
	if len(providers) == 0 {
		if !cfg.Runtime.Dev {
			return nil, errors.New("no AI provider configured")
		}
		logger.Warn().Msg("AI adapter: noop echo (dev)")
		providers["noop"] = aiAdapters.NewNoopAIAdapter(cfg.Chat.TypingDelay)
		defaultProvider = "noop"
	}

	router := aiAdapters.NewMultiAIAdapter(defaultProvider, providers, nil)
	return aiAdapters.NewLimitedAI(router, cfg.AI.ConcurrentLimit), nil
}

// buildParsers returns the ingestion collaborators. Missing endpoints leave
// the collaborator nil, which fails uploads of that kind with an upstream
// error. With redis configured both are fronted by the parse cache.
func buildParsers(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.DocumentParser, adapter.ImageOCR, func()) {
	var (
		doc adapter.DocumentParser
		ocr adapter.ImageOCR
	)
	if p, err := parser.NewHTTPDocumentParser(cfg.Parser.DocumentURL, cfg.Parser.APIKey, cfg.Parser.Timeout); err == nil {
		doc = p
	} else {
		logger.Warn().Err(err).Msg("document uploads disabled")
	}
	if p, err := parser.NewHTTPImageOCR(cfg.Parser.OCRURL, cfg.Parser.APIKey, cfg.Parser.Timeout); err == nil {
		ocr = p
	} else {
		logger.Warn().Err(err).Msg("image uploads disabled")
	}

	noop := func() {}
	if cfg.Redis.URL == "" {
		return doc, ocr, noop
	}
	cli, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.Redis.URL).Msg("redis unavailable, parse cache disabled")
		return doc, ocr, noop
	}
	cache := red.NewParseCache(cli, cfg.Redis.TTL)
	if doc != nil {
		doc = parser.NewCachedParser(doc, nil, cache, logger)
	}
	if ocr != nil {
		ocr = parser.NewCachedParser(nil, ocr, cache, logger)
	}
	logger.Info().Dur("ttl", cfg.Redis.TTL).Msg("parse cache enabled")
	return doc, ocr, func() { _ = cli.Close() }
}
