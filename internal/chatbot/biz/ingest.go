package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/chatbot/metrics"
	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/llm"
)

// IngestorConfig 入库配置。
type IngestorConfig struct {
	// MaxChunkSize 单个分块的最大字符数。
	MaxChunkSize int
	// MinChunkSize 单个分块的最小字符数，过滤近空的低价值碎片。
	MinChunkSize int
	// EmbedBatchSize 每次嵌入调用的分块数。
	EmbedBatchSize int
}

// Ingestor 负责文档分块、嵌入与入库。
type Ingestor struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	registry      *Registry
	metrics       *metrics.ChatMetrics
	config        *IngestorConfig
}

// NewIngestor 创建入库器实例。
func NewIngestor(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	registry *Registry,
	config *IngestorConfig,
) *Ingestor {
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = 32
	}
	return &Ingestor{
		store:         vectorStore,
		embedProvider: embedProvider,
		registry:      registry,
		metrics:       metrics.GetChatMetrics(),
		config:        config,
	}
}

// chunk 分块中间结果。
type chunk struct {
	section string
	content string
}

// IngestText 将一篇文档分块、嵌入并写入向量库，返回入库的分块数。
// 引用未知域名时自动创建该域。部分批次写入失败时返回 StorageError，
// 其中带有已持久化的数量。
func (n *Ingestor) IngestText(ctx context.Context, domainName, source, title, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, &errs.ValidationError{Field: "content", Hint: "content must not be blank"}
	}

	domain := n.registry.Ensure(domainName)

	chunks := splitContent(content, n.config.MaxChunkSize, n.config.MinChunkSize)
	if len(chunks) == 0 {
		return 0, &errs.ValidationError{
			Field: "content",
			Hint:  fmt.Sprintf("content is shorter than the minimum chunk size of %d characters", n.config.MinChunkSize),
		}
	}

	logger.Infow("ingesting document",
		"domain", domain.Name,
		"source", source,
		"chunks", len(chunks),
	)

	storeChunks := make([]*store.Chunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += n.config.EmbedBatchSize {
		end := start + n.config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.content
		}

		embeddings, err := n.embedProvider.Embed(ctx, texts)
		if err != nil {
			n.metrics.RecordIngest(0, 0, err)
			return 0, &errs.EmbeddingError{Provider: n.embedProvider.Name(), Err: err}
		}

		for i, c := range batch {
			storeChunks = append(storeChunks, &store.Chunk{
				Domain:    domain.Name,
				Source:    source,
				Title:     title,
				Section:   c.section,
				Content:   c.content,
				Embedding: embeddings[i],
			})
		}
	}

	// 同一来源重新入库时先清掉旧分块，避免检索到过期内容
	if err := n.store.DeleteBySource(ctx, domain.Name, source); err != nil {
		n.metrics.RecordIngest(0, 0, err)
		return 0, err
	}

	stored, err := n.store.Insert(ctx, storeChunks)
	n.metrics.RecordIngest(1, stored, err)
	if err != nil {
		return stored, err
	}

	return stored, nil
}

// splitContent 按段落切分文本。Markdown 标题行作为后续分块的章节标签；
// 超长段落按最大长度硬切；结尾不足最小长度的碎片并入前一块（若放得下），
// 否则丢弃。
func splitContent(content string, maxSize, minSize int) []chunk {
	var (
		chunks  []chunk
		current strings.Builder
		section string
	)

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if len(text) == 0 {
			return
		}
		if len(text) < minSize {
			// 尝试并入前一块
			if k := len(chunks) - 1; k >= 0 && len(chunks[k].content)+1+len(text) <= maxSize {
				chunks[k].content = chunks[k].content + "\n" + text
			}
			return
		}
		chunks = append(chunks, chunk{section: section, content: text})
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if heading, ok := markdownHeading(para); ok {
			flush()
			section = heading
			continue
		}

		if current.Len()+len(para)+2 > maxSize {
			flush()
		}

		// 单段落超长时按最大长度硬切
		for len(para) > maxSize {
			cut := runeSafeCut(para, maxSize)
			chunks = append(chunks, chunk{section: section, content: para[:cut]})
			para = strings.TrimSpace(para[cut:])
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// markdownHeading 判断单行段落是否为 Markdown 标题，是则返回标题文本。
func markdownHeading(para string) (string, bool) {
	if strings.Contains(para, "\n") || !strings.HasPrefix(para, "#") {
		return "", false
	}
	text := strings.TrimLeft(para, "#")
	if text == para || !strings.HasPrefix(text, " ") {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// runeSafeCut 返回不超过 max 且不切断多字节字符的切分位置。
func runeSafeCut(s string, max int) int {
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
