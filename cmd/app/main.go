package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat-router/internal/config"
	"support-chat-router/internal/domain/ports/adapter"
	aiAdapters "support-chat-router/internal/infra/adapters/ai"
	"support-chat-router/internal/infra/adapters/search"
	pg "support-chat-router/internal/infra/db/postgres"
	"support-chat-router/internal/infra/logging"
	"support-chat-router/internal/infra/metrics"
	red "support-chat-router/internal/infra/redis"
	"support-chat-router/internal/infra/web"
	"support-chat-router/internal/infra/worker"
	"support-chat-router/internal/infra/ws"
	"support-chat-router/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed config, noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	sessionRepo := red.NewSessionRepo(redisClient)
	ticketStore := red.NewTicketStore(redisClient, cfg.Auth.TicketTTL)
	fanout := red.NewFanout(redisClient, logger)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	historyRepo := pg.NewHistoryRepo(pool)

	// ---- AI adapter (OpenAI -> Gemini -> noop in dev) ----
	var ai adapter.AIServiceAdapter
	switch {
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.ChatModel, cfg.AI.EmbeddingModel)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		logger.Info().Str("model", cfg.AI.ChatModel).Msg("AI adapter: OpenAI")
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.ChatModel)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		logger.Info().Str("model", cfg.AI.ChatModel).Msg("AI adapter: Gemini")
	case cfg.Runtime.Dev:
		ai = &aiAdapters.NoopAI{}
		logger.Warn().Msg("AI adapter: noop (dev mode)")
	default:
		log.Fatalf("no AI provider configured: set ai.openai_key or ai.gemini_key in %s", *cfgPath)
	}

	// ---- Knowledge retrieval ----
	vectors, err := search.NewMilvusIndex(cfg.Search.MilvusURL, cfg.Search.Collection)
	if err != nil {
		log.Fatalf("milvus index: %v", err)
	}
	faqIndex, err := search.NewElasticFAQIndex(cfg.Search.ElasticURL, cfg.Search.FAQIndex, cfg.Search.ElasticUser, cfg.Search.ElasticPassword)
	if err != nil {
		log.Fatalf("elastic index: %v", err)
	}

	// ---- Use cases ----
	pipeline := usecase.NewResponsePipeline(sessionRepo, ai, vectors, faqIndex, cfg.Chat, cfg.AI.Timeout, logger)
	faqSuggester := usecase.NewFAQSuggester(faqIndex, 30, logger)
	faqSuggester.Start(ctx, cfg.Chat.FAQRefreshInterval)

	hub := ws.NewHub(logger)
	router := usecase.NewSessionRouter(sessionRepo, pipeline, faqSuggester, fanout, hub, historyRepo, cfg.Chat.InitialFAQCount, logger)

	// Every instance consumes the full fanout stream and forwards to
	// its own sockets.
	if err := fanout.Subscribe(ctx, router.OnFanoutEvent); err != nil {
		log.Fatalf("fanout subscribe: %v", err)
	}

	// ---- Worker pool ----
	workers := worker.NewPool(cfg.Chat.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	// ---- HTTP / websocket server ----
	auth := web.NewAuthenticator(cfg.Auth.JWTSecret)
	submit := func(task func(ctx context.Context) error) error {
		return workers.Submit(worker.Task(task))
	}
	handler := web.NewHandler(router, historyRepo, ticketStore, auth, hub, submit, logger)
	server := web.NewServer(cfg.Server, handler, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
