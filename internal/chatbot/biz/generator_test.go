package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/llm"
)

const testCommunityURL = "https://community.example.com"

type generatorFixture struct {
	classifierChat *fakeChatProvider
	streamChat     *fakeChatProvider
	embed          *fakeEmbedProvider
	vs             *fakeVectorStore
	cache          *AnswerCache
	mr             *miniredis.Miniredis
	gen            *Generator
}

// 辅助函数：组装完整的生成器管线，withCache 控制是否挂接 miniredis 缓存。
func newGeneratorFixture(t *testing.T, vs *fakeVectorStore, withCache bool) *generatorFixture {
	f := &generatorFixture{
		classifierChat: &fakeChatProvider{generateOut: "specific"},
		streamChat:     &fakeChatProvider{streamChunks: []llm.StreamChunk{{Content: "generated "}, {Content: "answer"}}},
		embed:          &fakeEmbedProvider{vector: []float32{0.1, 0.2}},
		vs:             vs,
	}

	if withCache {
		f.mr = miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: f.mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		f.cache = NewAnswerCache(client, &AnswerCacheConfig{
			Enabled:   true,
			TTL:       time.Hour,
			KeyPrefix: "test:answer:",
		})
	}

	registry := testRegistry()
	extractor := testExtractor()
	retriever := NewRetriever(vs, f.embed, registry, extractor, &RetrieverConfig{TopK: 5, MinScore: 0.4})

	f.gen = NewGenerator(
		NewClassifier(f.classifierChat),
		NewCannedMatcher(testDocsBase),
		retriever,
		f.cache,
		f.streamChat,
		registry,
		extractor,
		&GeneratorConfig{DocsBaseURL: testDocsBase, CommunityURL: testCommunityURL},
	)
	return f
}

// drainReply 模拟适配器：读完片段流，拼出完整答案。
func drainReply(t *testing.T, reply *Reply) string {
	t.Helper()
	var answer string
	for chunk := range reply.Fragments {
		require.NoError(t, chunk.Err)
		answer += chunk.Content
	}
	return answer
}

func TestGenerator_BlankMessage(t *testing.T) {
	f := newGeneratorFixture(t, &fakeVectorStore{}, false)

	_, err := f.gen.Respond(context.Background(), "   ", "docs")
	var ve *errs.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGenerator_UnknownDomain(t *testing.T) {
	f := newGeneratorFixture(t, &fakeVectorStore{}, false)

	_, err := f.gen.Respond(context.Background(), "how do retries work?", "nope")
	var de *errs.DomainError
	assert.ErrorAs(t, err, &de)
}

func TestGenerator_GenericGreeting(t *testing.T) {
	f := newGeneratorFixture(t, &fakeVectorStore{}, false)
	f.classifierChat.generateOut = "generic"

	reply, err := f.gen.Respond(context.Background(), "hi there", "docs")
	require.NoError(t, err)
	assert.Equal(t, model.PathCanned, reply.Path)

	answer := drainReply(t, reply)
	assert.Contains(t, answer, testDocsBase)
	assert.Equal(t, []string{testDocsBase, testCommunityURL}, reply.Sources)
	assert.Equal(t, reply.Sources, reply.Finalize(answer))

	// 寒暄路径不应触碰嵌入、检索或生成
	assert.Equal(t, 0, f.embed.calls)
	assert.Equal(t, 0, f.vs.searchCalls)
	assert.Equal(t, 0, f.streamChat.streamCalls)
}

func TestGenerator_CannedMatch(t *testing.T) {
	f := newGeneratorFixture(t, &fakeVectorStore{}, false)

	reply, err := f.gen.Respond(context.Background(), "why is my function not triggering?", "docs")
	require.NoError(t, err)
	assert.Equal(t, model.PathCanned, reply.Path)
	assert.Equal(t, []string{
		testDocsBase + "/docs/functions/debugging",
		testDocsBase + "/docs/events/sending",
	}, reply.Sources)

	answer := drainReply(t, reply)
	assert.Contains(t, answer, "deployed")

	assert.Equal(t, 0, f.embed.calls)
	assert.Equal(t, 0, f.vs.searchCalls)
}

func TestGenerator_CachedAnswer(t *testing.T) {
	f := newGeneratorFixture(t, &fakeVectorStore{}, true)
	ctx := context.Background()

	question := "how do I configure the serve endpoint path?"
	sources := []string{testDocsBase + "/docs/reference/serve"}
	require.NoError(t, f.cache.Set(ctx, "docs", question, "Set the servePath option.", sources))

	reply, err := f.gen.Respond(ctx, question, "docs")
	require.NoError(t, err)
	assert.Equal(t, model.PathCached, reply.Path)
	assert.Equal(t, sources, reply.Sources)
	assert.Equal(t, "Set the servePath option.", drainReply(t, reply))

	// 缓存命中不触发检索或生成
	assert.Equal(t, 0, f.embed.calls)
	assert.Equal(t, 0, f.streamChat.streamCalls)
}

func TestGenerator_NoContext(t *testing.T) {
	// 所有候选都低于分数阈值
	vs := &fakeVectorStore{results: []*store.SearchResult{{ID: 1, Score: 0.1, Content: "weak"}}}
	f := newGeneratorFixture(t, vs, false)
	f.streamChat.streamChunks = []llm.StreamChunk{{Content: "No close match found."}}

	reply, err := f.gen.Respond(context.Background(), "how do I enable quantum mode?", "docs")
	require.NoError(t, err)
	assert.Equal(t, model.PathNoContext, reply.Path)
	assert.Equal(t, []string{testDocsBase, testCommunityURL}, reply.Sources)

	answer := drainReply(t, reply)
	assert.Equal(t, reply.Sources, reply.Finalize(answer))

	// 无上下文路径仍通过一次生成调用给出自然措辞
	assert.Equal(t, 1, f.streamChat.streamCalls)
	assert.Contains(t, f.streamChat.lastPrompt, "quantum mode")
}

func TestGenerator_GroundedAnswer(t *testing.T) {
	vs := &fakeVectorStore{results: []*store.SearchResult{
		{ID: 1, Score: 0.9, Section: "Steps", Content: "Steps are covered in /docs/functions/steps."},
	}}
	f := newGeneratorFixture(t, vs, true)
	f.streamChat.streamChunks = []llm.StreamChunk{
		{Content: "Split work into steps, see "},
		{Content: "/docs/guides/multi-step-functions."},
	}

	reply, err := f.gen.Respond(context.Background(), "how should I structure long work?", "docs")
	require.NoError(t, err)
	assert.Equal(t, model.PathGenerated, reply.Path)
	assert.Equal(t, []string{testDocsBase + "/docs/functions/steps"}, reply.Sources)

	// 提示词包含编号的文档段落和问题本身
	assert.Contains(t, f.streamChat.lastPrompt, "[1] Steps")
	assert.Contains(t, f.streamChat.lastPrompt, "how should I structure long work?")
	assert.Equal(t, "You are a documentation assistant.", f.streamChat.lastSystem)

	answer := drainReply(t, reply)
	final := reply.Finalize(answer)

	// 最终来源合并了检索来源与答案中出现的文档链接
	assert.Equal(t, []string{
		testDocsBase + "/docs/functions/steps",
		testDocsBase + "/docs/guides/multi-step-functions",
	}, final)

	// 完整生成的答案写入缓存，二问命中
	cached, err := f.cache.Get(context.Background(), "docs", "how should I structure long work?")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, answer, cached.Answer)
	assert.Equal(t, final, cached.Sources)
}

func TestGenerator_StreamStartFailure(t *testing.T) {
	vs := &fakeVectorStore{results: []*store.SearchResult{{ID: 1, Score: 0.9, Content: "body"}}}
	f := newGeneratorFixture(t, vs, false)
	f.streamChat.streamErr = errors.New("model overloaded")

	_, err := f.gen.Respond(context.Background(), "a specific question", "docs")
	var ce *errs.CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fake-chat", ce.Provider)
}

func TestGenerator_MidStreamError(t *testing.T) {
	vs := &fakeVectorStore{results: []*store.SearchResult{{ID: 1, Score: 0.9, Content: "body"}}}
	f := newGeneratorFixture(t, vs, true)
	streamErr := errors.New("connection reset")
	f.streamChat.streamChunks = []llm.StreamChunk{{Content: "partial"}, {Err: streamErr}}

	reply, err := f.gen.Respond(context.Background(), "a specific question", "docs")
	require.NoError(t, err)

	var sawErr error
	for chunk := range reply.Fragments {
		if chunk.Err != nil {
			sawErr = chunk.Err
		}
	}
	assert.ErrorIs(t, sawErr, streamErr)

	// 流中途失败时适配器不调用 Finalize，缓存保持为空
	keys := f.mr.Keys()
	assert.Empty(t, keys)
}

func TestGenerator_NilCache(t *testing.T) {
	vs := &fakeVectorStore{results: []*store.SearchResult{{ID: 1, Score: 0.9, Content: "see /docs/a"}}}
	f := newGeneratorFixture(t, vs, false)

	reply, err := f.gen.Respond(context.Background(), "a specific question", "docs")
	require.NoError(t, err)
	answer := drainReply(t, reply)
	assert.NotEmpty(t, reply.Finalize(answer))
}
