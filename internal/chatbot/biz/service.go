package biz

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docschat/internal/chatbot/metrics"
	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/pkg/llm"
)

// Service 定义聊天机器人服务接口。
type Service interface {
	// Respond 对单个问题运行完整决策管线。
	Respond(ctx context.Context, message, domain string) (*Reply, error)
	// Ingest 将一篇文档分块入库。
	Ingest(ctx context.Context, domain, source, title, content string) (int, error)
	// Stats 获取服务统计信息。
	Stats(ctx context.Context) (*model.StatsResponse, error)
	// Domains 列出所有激活的文档域。
	Domains(ctx context.Context) ([]model.DomainInfo, error)
}

// ChatService 组合 Generator 与 Ingestor 提供完整的聊天机器人服务。
type ChatService struct {
	generator *Generator
	ingestor  *Ingestor
	registry  *Registry
	store     store.VectorStore
	cache     *AnswerCache
	metrics   *metrics.ChatMetrics
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	RetrieverConfig *RetrieverConfig
	IngestorConfig  *IngestorConfig
	GeneratorConfig *GeneratorConfig
	CacheConfig     *AnswerCacheConfig
	ExtractorConfig *SourceExtractorConfig
}

// NewChatService 创建服务实例。redisClient 为 nil 时禁用答案缓存。
func NewChatService(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	redisClient *goredis.Client,
	registry *Registry,
	config *ServiceConfig,
) *ChatService {
	extractor := NewSourceExtractor(config.ExtractorConfig)

	var cache *AnswerCache
	if redisClient != nil {
		cache = NewAnswerCache(redisClient, config.CacheConfig)
	}

	classifier := NewClassifier(chatProvider)
	canned := NewCannedMatcher(config.GeneratorConfig.DocsBaseURL)
	retriever := NewRetriever(vectorStore, embedProvider, registry, extractor, config.RetrieverConfig)
	generator := NewGenerator(classifier, canned, retriever, cache, chatProvider, registry, extractor, config.GeneratorConfig)
	ingestor := NewIngestor(vectorStore, embedProvider, registry, config.IngestorConfig)

	return &ChatService{
		generator: generator,
		ingestor:  ingestor,
		registry:  registry,
		store:     vectorStore,
		cache:     cache,
		metrics:   metrics.GetChatMetrics(),
	}
}

// Respond 对单个问题运行完整决策管线。
func (s *ChatService) Respond(ctx context.Context, message, domain string) (*Reply, error) {
	return s.generator.Respond(ctx, message, domain)
}

// Ingest 将一篇文档分块入库。
func (s *ChatService) Ingest(ctx context.Context, domain, source, title, content string) (int, error) {
	return s.ingestor.IngestText(ctx, domain, source, title, content)
}

// Stats 获取服务统计信息。
func (s *ChatService) Stats(ctx context.Context) (*model.StatsResponse, error) {
	m := s.metrics.Stats()

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(ctx); err == nil {
			m["cache"] = cacheStats
		}
	}

	if total, err := s.store.Stats(ctx); err == nil {
		m["total_chunks"] = total
	}

	domains, err := s.Domains(ctx)
	if err != nil {
		return nil, err
	}

	return &model.StatsResponse{
		Uptime:  s.metrics.Uptime().Round(time.Second).String(),
		Metrics: m,
		Domains: domains,
	}, nil
}

// Domains 列出所有激活的文档域及其分块数。
func (s *ChatService) Domains(ctx context.Context) ([]model.DomainInfo, error) {
	active := s.registry.ListActive()
	out := make([]model.DomainInfo, 0, len(active))
	for _, d := range active {
		count, err := s.store.CountByDomain(ctx, d.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, model.DomainInfo{Name: d.Name, ChunkCount: count})
	}
	return out, nil
}

// 确保 ChatService 实现了 Service 接口。
var _ Service = (*ChatService)(nil)
