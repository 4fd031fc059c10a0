package options

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docschat/internal/chatbot"
)

func TestServerOptions_DefaultsAreValid(t *testing.T) {
	opts := NewServerOptions()
	// openai 是默认供应商，校验通过需要 API key
	opts.EmbeddingOptions.APIKey = "test-key"
	opts.ChatOptions.APIKey = "test-key"

	assert.NoError(t, opts.Validate())
	assert.Equal(t, chatbot.ModeAll, opts.Mode)
}

func TestServerOptions_OpenAIRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	opts := NewServerOptions()
	opts.ChatOptions.APIKey = "test-key"

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api-key is required")
}

func TestServerOptions_InvalidMode(t *testing.T) {
	opts := NewServerOptions()
	opts.Mode = "banana"

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be one of")
}

func TestServerOptions_InvalidPipeline(t *testing.T) {
	opts := NewServerOptions()
	opts.ChatbotOptions.MinScore = 1.5

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min-score")
}

func TestServerOptions_FlagsBind(t *testing.T) {
	opts := NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--mode=server",
		"--chat.top-k=7",
		"--chat.default-domain=guides",
		"--milvus.address=milvus.internal:19530",
	}))

	assert.Equal(t, chatbot.ModeServer, opts.Mode)
	assert.Equal(t, 7, opts.ChatbotOptions.TopK)
	assert.Equal(t, "guides", opts.ChatbotOptions.DefaultDomain)
	assert.Equal(t, "milvus.internal:19530", opts.MilvusOptions.Address)
}

func TestServerOptions_Config(t *testing.T) {
	opts := NewServerOptions()
	opts.Mode = chatbot.ModeWorker

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, chatbot.ModeWorker, cfg.Mode)
	assert.Same(t, opts.ChatbotOptions, cfg.ChatbotOptions)
	assert.True(t, cfg.RunsWorker())
	assert.False(t, cfg.RunsHTTP())
}

func TestServerOptions_LLMFlagNames(t *testing.T) {
	opts := NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	// 两个供应商的 flag 各有前缀，且名字里不允许出现连续的点
	for _, name := range []string{
		"embedding.llm.provider",
		"embedding.llm.model",
		"chat.llm.provider",
		"chat.llm.model",
		"chat.llm.temperature",
		"chat.llm.api-key",
	} {
		assert.NotNil(t, fs.Lookup(name), "missing flag %s", name)
	}

	fs.VisitAll(func(f *pflag.Flag) {
		assert.NotContains(t, f.Name, "..", "malformed flag name %s", f.Name)
	})

	require.NoError(t, fs.Parse([]string{
		"--embedding.llm.model=nomic-embed-text",
		"--chat.llm.model=llama3.1",
	}))
	assert.Equal(t, "nomic-embed-text", opts.EmbeddingOptions.Model)
	assert.Equal(t, "llama3.1", opts.ChatOptions.Model)
}
