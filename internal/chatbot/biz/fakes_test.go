package biz

import (
	"context"
	"sync"

	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/pkg/llm"
)

// fakeChatProvider 测试用聊天模型，返回预设输出并记录调用。
type fakeChatProvider struct {
	mu sync.Mutex

	generateOut string
	generateErr error

	streamChunks []llm.StreamChunk
	streamErr    error

	generateCalls int
	streamCalls   int
	lastPrompt    string
	lastSystem    string
	lastGenOpts   *llm.GenerateOptions
}

func (f *fakeChatProvider) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	f.lastGenOpts = llm.BuildGenerateOptions(opts...)
	return f.generateOut, f.generateErr
}

func (f *fakeChatProvider) GenerateStream(ctx context.Context, prompt, systemPrompt string) (<-chan llm.StreamChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	if f.streamErr != nil {
		return nil, f.streamErr
	}

	ch := make(chan llm.StreamChunk, len(f.streamChunks))
	for _, c := range f.streamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeChatProvider) Name() string { return "fake-chat" }

// fakeEmbedProvider 测试用嵌入模型，所有文本返回同一向量。
type fakeEmbedProvider struct {
	mu sync.Mutex

	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedProvider) Name() string { return "fake-embed" }

// fakeVectorStore 测试用向量存储。
type fakeVectorStore struct {
	mu sync.Mutex

	results   []*store.SearchResult
	searchErr error

	inserted  []*store.Chunk
	insertErr error
	// insertStored 覆盖 Insert 的返回数量，模拟部分写入。
	insertStored int

	counts map[string]int64

	deleted   []string
	deleteErr error

	searchCalls int
	lastDomain  string
	lastTopK    int
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectorStore) Insert(ctx context.Context, chunks []*store.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertStored, f.insertErr
	}
	f.inserted = append(f.inserted, chunks...)
	return len(chunks), nil
}

func (f *fakeVectorStore) Search(ctx context.Context, domain string, embedding []float32, topK int) ([]*store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastDomain = domain
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorStore) DeleteBySource(ctx context.Context, domain, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, domain+"/"+source)
	// 模拟旧分块被清除
	kept := f.inserted[:0]
	for _, c := range f.inserted {
		if c.Domain != domain || c.Source != source {
			kept = append(kept, c)
		}
	}
	f.inserted = kept
	return nil
}

func (f *fakeVectorStore) CountByDomain(ctx context.Context, domain string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[domain], nil
}

func (f *fakeVectorStore) Stats(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, c := range f.counts {
		total += c
	}
	return total, nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

// testRegistry 返回预置 docs 域的注册表。
func testRegistry() *Registry {
	return NewRegistry(&Domain{
		Name:         "docs",
		DisplayName:  "Docs",
		SystemPrompt: "You are a documentation assistant.",
		Active:       true,
	})
}

func testExtractor() *SourceExtractor {
	return NewSourceExtractor(&SourceExtractorConfig{
		DocsBaseURL: "https://docs.example.com",
	})
}
