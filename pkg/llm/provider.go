// Package llm provides a unified abstraction over hosted language model
// services. Embedding and chat may use different providers.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// MaxEmbedInputChars is the safe input length for embedding requests.
// Longer inputs are silently truncated before submission.
const MaxEmbedInputChars = 8000

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// StreamChunk is one incremental fragment of a streamed completion. A chunk
// with a non-nil Err terminates the stream.
type StreamChunk struct {
	Content string
	Err     error
}

// GenerateOptions carries per-request overrides for a completion call.
type GenerateOptions struct {
	// Temperature, when non-nil, overrides the provider's configured
	// sampling temperature for this request only.
	Temperature *float64
}

// GenerateOption mutates GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature pins the sampling temperature for one request.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &t }
}

// BuildGenerateOptions folds opts into a single GenerateOptions value.
func BuildGenerateOptions(opts ...GenerateOption) *GenerateOptions {
	out := &GenerateOptions{}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// ChatProvider generates text completions.
type ChatProvider interface {
	// Generate produces a complete response for a single prompt.
	Generate(ctx context.Context, prompt, systemPrompt string, opts ...GenerateOption) (string, error)

	// GenerateStream produces an incremental token stream for a single
	// prompt. The returned channel is closed when the stream ends; it is
	// finite, forward-only, and not restartable.
	GenerateStream(ctx context.Context, prompt, systemPrompt string) (<-chan StreamChunk, error)

	// Name returns the provider name.
	Name() string
}

// Provider supports both embedding and chat.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory constructs a provider from a config map.
type ProviderFactory func(config map[string]any) (Provider, error)

var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider registers a provider factory under a name. Providers
// self-register from their package init.
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider creates a provider instance by name.
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	return factory(config)
}

// NewEmbeddingProvider creates a provider by name for embedding use.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider creates a provider by name for chat use.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders lists all registered provider names.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	return names
}

// TruncateInput bounds text to max runes for embedding submission.
func TruncateInput(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
