package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/chatbot/metrics"
	"github.com/kart-io/docschat/internal/chatbot/store"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/llm"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// DocsBaseURL 文档站根地址，用于寒暄回复和兜底来源。
	DocsBaseURL string
	// CommunityURL 社区地址。
	CommunityURL string
}

// Reply is the outcome of one question: which path produced it, the sources
// known up front, and a lazy, finite, non-restartable stream of answer
// fragments. The HTTP adapter forwards fragments live; the bus worker
// drains them into one string. Either way the adapter calls Finalize
// exactly once with the assembled answer text.
type Reply struct {
	// Path is the pipeline branch that produced this reply.
	Path model.AnswerPath
	// Sources are the sources known before the stream completes.
	Sources []string
	// Fragments yields answer text fragments in order. The channel closes
	// when the answer is complete; a fragment with a non-nil Err terminates
	// the stream.
	Fragments <-chan llm.StreamChunk

	finalize func(answer string) []string
}

// Finalize reconciles the final source list from the retriever's sources
// and any documentation links found in the generated answer itself, and
// writes the answer cache on the generated path. Call it once, after the
// fragment stream has been fully consumed without error.
func (r *Reply) Finalize(answer string) []string {
	if r.finalize == nil {
		return r.Sources
	}
	return r.finalize(answer)
}

// Generator is the decision pipeline for every incoming question:
// classify, try the canned table, try the answer cache, then pay for a full
// retrieve-and-generate round trip.
type Generator struct {
	classifier   *Classifier
	canned       *CannedMatcher
	retriever    *Retriever
	cache        *AnswerCache
	chatProvider llm.ChatProvider
	registry     *Registry
	extractor    *SourceExtractor
	metrics      *metrics.ChatMetrics
	config       *GeneratorConfig
}

// NewGenerator creates the orchestrator. cache may be nil to disable
// answer caching.
func NewGenerator(
	classifier *Classifier,
	canned *CannedMatcher,
	retriever *Retriever,
	cache *AnswerCache,
	chatProvider llm.ChatProvider,
	registry *Registry,
	extractor *SourceExtractor,
	config *GeneratorConfig,
) *Generator {
	return &Generator{
		classifier:   classifier,
		canned:       canned,
		retriever:    retriever,
		cache:        cache,
		chatProvider: chatProvider,
		registry:     registry,
		extractor:    extractor,
		metrics:      metrics.GetChatMetrics(),
		config:       config,
	}
}

// genericHelpSources is the fixed source set for greetings and the
// no-context fallback.
func (g *Generator) genericHelpSources() []string {
	return []string{g.config.DocsBaseURL, g.config.CommunityURL}
}

func (g *Generator) greeting() string {
	return fmt.Sprintf(`Hi! I answer questions about the documentation at %s.

Ask me something specific, for example:
- "How do I retry a failed step?"
- "Why isn't my function triggering?"
- "How do I set up local development?"

For anything I can't answer, the community at %s is a good next stop.`,
		g.config.DocsBaseURL, g.config.CommunityURL)
}

// Respond runs the decision pipeline for one question and returns a Reply.
// Classification and canned-matching failures are absorbed (they fall
// through to the next stage); retrieval and generation failures are
// returned to the caller, which owns the user-facing wording.
func (g *Generator) Respond(ctx context.Context, message, domainName string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &errs.ValidationError{Field: "message", Hint: "message must not be blank"}
	}

	domain, err := g.registry.Get(domainName)
	if err != nil {
		g.metrics.RecordQuery("", err)
		return nil, err
	}

	// 1. Classify: generic small talk gets the greeting with no retrieval.
	if g.classifier.Classify(ctx, message) == LabelGeneric {
		logger.Infow("generic query, answering with greeting", "domain", domain.Name)
		g.metrics.RecordQuery(string(model.PathCanned), nil)
		return staticReply(model.PathCanned, g.greeting(), g.genericHelpSources()), nil
	}

	// 2. Canned table: a known question pattern answers for free.
	if entry := g.canned.Match(message); entry != nil {
		logger.Infow("canned response matched", "domain", domain.Name, "pattern", entry.Name)
		g.metrics.RecordQuery(string(model.PathCanned), nil)
		return staticReply(model.PathCanned, entry.Answer, entry.Sources), nil
	}

	// 3. Answer cache: a previously generated answer for the same question.
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, domain.Name, message); err == nil && cached != nil {
			g.metrics.RecordQuery(string(model.PathCached), nil)
			return staticReply(model.PathCached, cached.Answer, cached.Sources), nil
		}
	}

	// 4. Retrieve.
	retrievalStart := time.Now()
	retrieval, err := g.retriever.Retrieve(ctx, message, domain.Name)
	g.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		g.metrics.RecordQuery("", err)
		return nil, err
	}

	// 5. Generate, with or without context.
	if len(retrieval.Passages) == 0 {
		return g.noContextReply(ctx, domain, message)
	}
	return g.groundedReply(ctx, domain, message, retrieval)
}

// noContextReply handles the common case of no documentation clearing the
// score threshold. It still answers through one completion call so the
// phrasing feels natural, with the generic help placeholder as sources.
func (g *Generator) noContextReply(ctx context.Context, domain *Domain, message string) (*Reply, error) {
	prompt := fmt.Sprintf(`The user asked: %q

No matching documentation was found for this question. Write a short, friendly reply that:
- says you could not find a close match in the documentation
- suggests rephrasing with more specific terms or feature names
- points the user at %s and the community at %s

Do not invent an answer to the question itself.`,
		message, g.config.DocsBaseURL, g.config.CommunityURL)

	llmStart := time.Now()
	fragments, err := g.chatProvider.GenerateStream(ctx, prompt, domain.SystemPrompt)
	if err != nil {
		g.metrics.RecordLLMCall(time.Since(llmStart), err)
		g.metrics.RecordQuery("", err)
		return nil, &errs.CompletionError{Provider: g.chatProvider.Name(), Err: err}
	}

	g.metrics.RecordQuery(string(model.PathNoContext), nil)
	sources := g.genericHelpSources()
	return &Reply{
		Path:      model.PathNoContext,
		Sources:   sources,
		Fragments: fragments,
		finalize: func(string) []string {
			g.metrics.RecordLLMCall(time.Since(llmStart), nil)
			return sources
		},
	}, nil
}

// groundedReply builds the context block from the retrieved passages and
// streams a cited answer.
func (g *Generator) groundedReply(ctx context.Context, domain *Domain, message string, retrieval *RetrievalResult) (*Reply, error) {
	prompt := buildGroundedPrompt(message, retrieval.Passages)

	llmStart := time.Now()
	fragments, err := g.chatProvider.GenerateStream(ctx, prompt, domain.SystemPrompt)
	if err != nil {
		g.metrics.RecordLLMCall(time.Since(llmStart), err)
		g.metrics.RecordQuery("", err)
		return nil, &errs.CompletionError{Provider: g.chatProvider.Name(), Err: err}
	}

	g.metrics.RecordQuery(string(model.PathGenerated), nil)
	sources := retrieval.Sources
	return &Reply{
		Path:      model.PathGenerated,
		Sources:   sources,
		Fragments: fragments,
		finalize: func(answer string) []string {
			g.metrics.RecordLLMCall(time.Since(llmStart), nil)
			final := MergeSources(sources, g.extractor.ExtractLinks(answer))
			if g.cache != nil {
				_ = g.cache.Set(ctx, domain.Name, message, answer, final)
			}
			return final
		},
	}, nil
}

func buildGroundedPrompt(message string, passages []*store.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the documentation below.\n\n")
	b.WriteString("Documentation:\n")
	for i, p := range passages {
		ref := p.Section
		if ref == "" {
			ref = p.Source
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, ref, p.Content)
	}
	b.WriteString("Instructions:\n")
	b.WriteString("- Only state what is in the documentation above.\n")
	b.WriteString("- Cite URLs that appear in the documentation.\n")
	b.WriteString("- Do not invent configuration values, option names, or URLs.\n")
	b.WriteString("- If the documentation only partially covers the question, say which part is not covered.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", message)
	return b.String()
}

// staticReply wraps a pre-written answer in the stream contract: one
// fragment, already buffered, channel closed.
func staticReply(path model.AnswerPath, text string, sources []string) *Reply {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: text}
	close(ch)

	return &Reply{
		Path:      path,
		Sources:   sources,
		Fragments: ch,
	}
}
