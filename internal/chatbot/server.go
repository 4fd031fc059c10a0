package chatbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docschat/internal/chatbot/biz"
	"github.com/kart-io/docschat/internal/chatbot/handler"
	"github.com/kart-io/docschat/internal/chatbot/router"
	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/chatbot/worker"
	"github.com/kart-io/docschat/pkg/component/milvus"
	"github.com/kart-io/docschat/pkg/llm"
	"github.com/kart-io/docschat/pkg/utils/httpclient"

	// LLM 供应商自动注册
	_ "github.com/kart-io/docschat/pkg/llm/ollama"
	_ "github.com/kart-io/docschat/pkg/llm/openai"
)

// Name is the service name used in logs.
const Name = "docschat"

// Server holds the running adapters and their cleanup functions.
type Server struct {
	cfg        *Config
	httpServer *http.Server
	busWorker  *worker.Worker
	closers    []func()
}

// NewServer builds the full service from configuration: vector store, LLM
// providers, the shared pipeline, and whichever adapters the mode enables.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting docschat...", "mode", cfg.Mode)

	srv := &Server{cfg: cfg}

	// 2. 初始化 Milvus 客户端与向量存储
	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	srv.closers = append(srv.closers, func() { _ = milvusClient.Close(context.Background()) })

	vectorStore := store.NewMilvusStore(milvusClient, &store.MilvusConfig{
		Collection:    cfg.MilvusOptions.Collection,
		EmbeddingDim:  cfg.MilvusOptions.EmbeddingDim,
		BatchSize:     cfg.ChatbotOptions.UpsertBatchSize,
		BatchInterval: cfg.ChatbotOptions.UpsertInterval,
	})
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	logger.Infow("Vector store initialized", "collection", cfg.MilvusOptions.Collection)

	// 3. 初始化 Redis 客户端（答案缓存 + 消息总线）
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisOptions.Addr(),
		Password:     cfg.RedisOptions.Password,
		DB:           cfg.RedisOptions.Database,
		MaxRetries:   cfg.RedisOptions.MaxRetries,
		PoolSize:     cfg.RedisOptions.PoolSize,
		MinIdleConns: cfg.RedisOptions.MinIdleConns,
		DialTimeout:  cfg.RedisOptions.DialTimeout,
		ReadTimeout:  cfg.RedisOptions.ReadTimeout,
		WriteTimeout: cfg.RedisOptions.WriteTimeout,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		if cfg.RunsWorker() {
			// 总线离不开 Redis
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Warnw("failed to connect to redis, answer cache disabled", "error", err.Error())
		_ = redisClient.Close()
		redisClient = nil
	}
	if redisClient != nil {
		c := redisClient
		srv.closers = append(srv.closers, func() { _ = c.Close() })
	}

	// 4. 初始化 LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized", "provider", cfg.EmbeddingOptions.Provider, "model", cfg.EmbeddingOptions.Model)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized", "provider", cfg.ChatOptions.Provider, "model", cfg.ChatOptions.Model)

	// 5. 初始化域注册表与业务层
	registry := biz.NewRegistry(defaultDomain(cfg))

	service := biz.NewChatService(vectorStore, embedProvider, chatProvider, redisClient, registry, &biz.ServiceConfig{
		RetrieverConfig: &biz.RetrieverConfig{
			TopK:     cfg.ChatbotOptions.TopK,
			MinScore: cfg.ChatbotOptions.MinScore,
		},
		IngestorConfig: &biz.IngestorConfig{
			MaxChunkSize: cfg.ChatbotOptions.MaxChunkSize,
			MinChunkSize: cfg.ChatbotOptions.MinChunkSize,
		},
		GeneratorConfig: &biz.GeneratorConfig{
			DocsBaseURL:  cfg.ChatbotOptions.DocsBaseURL,
			CommunityURL: cfg.ChatbotOptions.CommunityURL,
		},
		CacheConfig: &biz.AnswerCacheConfig{
			Enabled: cfg.ChatbotOptions.CacheEnabled,
			TTL:     cfg.ChatbotOptions.CacheTTL,
		},
		ExtractorConfig: &biz.SourceExtractorConfig{
			DocsBaseURL: cfg.ChatbotOptions.DocsBaseURL,
		},
	})
	logger.Info("Chat service initialized")

	// 6. 按模式装配适配器
	if cfg.RunsHTTP() {
		fetcher := httpclient.NewClient(cfg.HTTPOptions.ReadTimeout, 2)
		chatHandler := handler.NewChatHandler(service, cfg.ChatbotOptions.DefaultDomain, fetcher)
		engine := router.New(chatHandler)

		srv.httpServer = &http.Server{
			Addr:        cfg.HTTPOptions.Addr,
			Handler:     engine,
			ReadTimeout: cfg.HTTPOptions.ReadTimeout,
			IdleTimeout: cfg.HTTPOptions.IdleTimeout,
		}
	}

	if cfg.RunsWorker() {
		srv.busWorker = worker.New(redisClient, service, &worker.Config{
			QueryChannel:    cfg.ChatbotOptions.QueryChannel,
			ResponseChannel: cfg.ChatbotOptions.ResponseChannel,
			DefaultDomain:   cfg.ChatbotOptions.DefaultDomain,
		})
	}

	logger.Info("docschat is ready")
	return srv, nil
}

func defaultDomain(cfg *Config) *biz.Domain {
	name := cfg.ChatbotOptions.DefaultDomain
	return &biz.Domain{
		Name:        name,
		DisplayName: "Docs",
		SystemPrompt: fmt.Sprintf(
			"You are the assistant for the documentation at %s. "+
				"Answer using only the provided documentation context, cite the URLs it contains, "+
				"and never invent configuration values or option names.",
			cfg.ChatbotOptions.DocsBaseURL),
		Active: true,
	}
}

// Run starts the enabled adapters and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	}()

	errCh := make(chan error, 1)

	if s.httpServer != nil {
		go func() {
			logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if s.busWorker != nil {
		if err := s.busWorker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bus worker: %w", err)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("Shutting down...")

	if s.busWorker != nil {
		s.busWorker.Stop()
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTPOptions.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
