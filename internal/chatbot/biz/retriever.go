package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/llm"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 返回的结果数量上限。
	TopK int
	// MinScore 最低相似度分数，低于该值的结果被过滤。
	MinScore float32
}

// RetrievalResult 表示检索结果。
type RetrievalResult struct {
	// Passages 过滤后的检索结果，按分数降序。
	Passages []*store.SearchResult
	// Sources 去重排序后的来源列表。Passages 非空时 Sources 必非空。
	Sources []string
}

// Retriever 负责按域检索文档并提取来源。
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	registry      *Registry
	extractor     *SourceExtractor
	config        *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	registry *Registry,
	extractor *SourceExtractor,
	config *RetrieverConfig,
) *Retriever {
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		registry:      registry,
		extractor:     extractor,
		config:        config,
	}
}

// Retrieve 执行检索。没有结果超过分数阈值时返回空 Passages，
// 这是正常结果而不是错误，由上层决定降级行为。
func (r *Retriever) Retrieve(ctx context.Context, question, domainName string) (*RetrievalResult, error) {
	domain, err := r.registry.Get(domainName)
	if err != nil {
		return nil, err
	}

	embedding, err := r.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		return nil, &errs.EmbeddingError{Provider: r.embedProvider.Name(), Err: err}
	}

	results, err := r.store.Search(ctx, domain.Name, embedding, r.config.TopK)
	if err != nil {
		return nil, err
	}

	// 低相似度的上下文会让模型"解读"无关段落，反而降低答案质量
	passages := make([]*store.SearchResult, 0, len(results))
	for _, res := range results {
		if res.Score >= r.config.MinScore {
			passages = append(passages, res)
		}
	}

	if len(passages) == 0 {
		logger.Infow("no passages above score threshold",
			"domain", domain.Name,
			"candidates", len(results),
			"min_score", r.config.MinScore,
		)
		return &RetrievalResult{Passages: []*store.SearchResult{}, Sources: []string{}}, nil
	}

	sources := r.extractor.SourcesFromResults(domain.DisplayName, passages)

	logger.Infow("retrieved passages",
		"domain", domain.Name,
		"passages", len(passages),
		"sources", len(sources),
		"top_score", passages[0].Score,
	)

	return &RetrievalResult{
		Passages: passages,
		Sources:  sources,
	}, nil
}
