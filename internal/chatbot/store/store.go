package store

import (
	"context"
)

// Chunk 表示一个待入库的文档块。
type Chunk struct {
	// Domain 所属文档域。
	Domain string
	// Source 文档来源（路径或 URL）。
	Source string
	// Title 文档标题。
	Title string
	// Section 所属章节。
	Section string
	// Content 文档内容。
	Content string
	// Embedding 嵌入向量。
	Embedding []float32
}

// SearchResult 表示检索结果。
type SearchResult struct {
	// ID 文档块 ID。
	ID int64
	// Domain 所属文档域。
	Domain string
	// Source 文档来源。
	Source string
	// Title 文档标题。
	Title string
	// Section 所属章节。
	Section string
	// Content 文档内容。
	Content string
	// Score 相似度分数，余弦度量下取值 [0, 1]，越大越相关。
	Score float32
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 确保集合存在，不存在则创建。
	EnsureCollection(ctx context.Context) error

	// Insert 批量插入文档块，返回已持久化的数量。
	Insert(ctx context.Context, chunks []*Chunk) (int, error)

	// Search 在指定文档域内做向量相似度搜索。
	Search(ctx context.Context, domain string, embedding []float32, topK int) ([]*SearchResult, error)

	// DeleteBySource 删除指定文档域内某来源的全部分块。
	// 重新入库同一来源前调用，避免新旧分块并存。
	DeleteBySource(ctx context.Context, domain, source string) error

	// CountByDomain 统计指定文档域的块数量。
	CountByDomain(ctx context.Context, domain string) (int64, error)

	// Stats 获取集合总块数。
	Stats(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
