package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"golang.org/x/time/rate"

	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/component/milvus"
)

// MilvusConfig Milvus 存储配置。
type MilvusConfig struct {
	// Collection 集合名称。
	Collection string
	// EmbeddingDim 向量维度。
	EmbeddingDim int
	// BatchSize 每批插入的块数。
	BatchSize int
	// BatchInterval 批次之间的最小间隔。
	BatchInterval time.Duration
}

// MilvusStore 实现基于 Milvus 的向量存储。写入按批次限速，
// 避免大文档入库时压垮 Milvus。
type MilvusStore struct {
	client  *milvus.Client
	config  *MilvusConfig
	limiter *rate.Limiter
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, config *MilvusConfig) *MilvusStore {
	interval := config.BatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &MilvusStore{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// EnsureCollection 确保集合存在。
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	schema := &milvus.CollectionSchema{
		Name:        s.config.Collection,
		Description: "Documentation chunks for the docs chatbot",
		Dimension:   s.config.EmbeddingDim,
		MetaFields: []milvus.MetaField{
			{Name: "domain", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "source", DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: "title", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "section", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	if err := s.client.CreateCollection(ctx, schema); err != nil {
		return &errs.StorageError{Op: "create collection", Err: err}
	}
	return nil
}

// Insert 分批插入文档块。部分批次失败时返回已持久化的数量，
// 调用方可据此续传而不必重新入库整个文档。
func (s *MilvusStore) Insert(ctx context.Context, chunks []*Chunk) (int, error) {
	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	stored := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return stored, &errs.StorageError{Op: "insert", Stored: stored, Err: err}
		}

		if err := s.insertBatch(ctx, batch); err != nil {
			return stored, &errs.StorageError{Op: "insert", Stored: stored, Err: err}
		}
		stored += len(batch)
	}

	return stored, nil
}

func (s *MilvusStore) insertBatch(ctx context.Context, batch []*Chunk) error {
	embeddings := make([][]float32, len(batch))
	domains := make([]any, len(batch))
	sources := make([]any, len(batch))
	titles := make([]any, len(batch))
	sections := make([]any, len(batch))
	contents := make([]any, len(batch))

	for i, chunk := range batch {
		embeddings[i] = chunk.Embedding
		domains[i] = chunk.Domain
		sources[i] = chunk.Source
		titles[i] = chunk.Title
		sections[i] = chunk.Section
		contents[i] = chunk.Content
	}

	_, err := s.client.Insert(ctx, s.config.Collection, &milvus.InsertData{
		Embeddings: embeddings,
		Metadata: map[string][]any{
			"domain":  domains,
			"source":  sources,
			"title":   titles,
			"section": sections,
			"content": contents,
		},
	})
	return err
}

// Search 在指定文档域内搜索。通过 domain 字段过滤表达式实现
// 单集合多域隔离。
func (s *MilvusStore) Search(ctx context.Context, domain string, embedding []float32, topK int) ([]*SearchResult, error) {
	filter := fmt.Sprintf("domain == %s", strconv.Quote(domain))
	outputFields := []string{"domain", "source", "title", "section", "content"}

	results, err := s.client.Search(ctx, s.config.Collection, embedding, topK, filter, outputFields)
	if err != nil {
		return nil, &errs.StorageError{Op: "search", Err: err}
	}

	searchResults := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		sr := &SearchResult{
			ID:    r.ID,
			Score: r.Score,
		}
		if v, ok := r.Metadata["domain"].(string); ok {
			sr.Domain = v
		}
		if v, ok := r.Metadata["source"].(string); ok {
			sr.Source = v
		}
		if v, ok := r.Metadata["title"].(string); ok {
			sr.Title = v
		}
		if v, ok := r.Metadata["section"].(string); ok {
			sr.Section = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		searchResults = append(searchResults, sr)
	}

	return searchResults, nil
}

// DeleteBySource 删除指定文档域内某来源的全部分块。
func (s *MilvusStore) DeleteBySource(ctx context.Context, domain, source string) error {
	filter := fmt.Sprintf("domain == %s && source == %s", strconv.Quote(domain), strconv.Quote(source))
	if err := s.client.Delete(ctx, s.config.Collection, filter); err != nil {
		return &errs.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// CountByDomain 统计指定文档域的块数量。
func (s *MilvusStore) CountByDomain(ctx context.Context, domain string) (int64, error) {
	filter := fmt.Sprintf("domain == %s", strconv.Quote(domain))

	rs, err := s.client.RawClient().Query(ctx, milvusclient.NewQueryOption(s.config.Collection).
		WithFilter(filter).
		WithOutputFields("count(*)"))
	if err != nil {
		return 0, &errs.StorageError{Op: "count", Err: err}
	}

	for _, field := range rs.Fields {
		if col, ok := field.(*column.ColumnInt64); ok && len(col.Data()) > 0 {
			return col.Data()[0], nil
		}
	}
	return 0, nil
}

// Stats 获取集合总块数。
func (s *MilvusStore) Stats(ctx context.Context) (int64, error) {
	count, err := s.client.GetCollectionStats(ctx, s.config.Collection)
	if err != nil {
		return 0, &errs.StorageError{Op: "stats", Err: err}
	}
	return count, nil
}

// Close 关闭连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
