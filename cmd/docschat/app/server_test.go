package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docschat/cmd/docschat/app/options"
	"github.com/kart-io/docschat/internal/pkg/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docschat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestApplyConfig_FileOverlaysUnsetFlags(t *testing.T) {
	opts := options.NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	path := writeConfig(t, `
mode: worker
chat:
  llm:
    model: llama3.1
  min-score: 0.55
`)

	require.NoError(t, applyConfig(fs, path))

	assert.Equal(t, "worker", opts.Mode)
	assert.Equal(t, "llama3.1", opts.ChatOptions.Model)
	assert.InDelta(t, 0.55, opts.ChatbotOptions.MinScore, 0.001)
}

func TestApplyConfig_FlagsBeatConfigFile(t *testing.T) {
	opts := options.NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--mode=server"}))

	path := writeConfig(t, "mode: worker\n")

	require.NoError(t, applyConfig(fs, path))

	// 命令行显式指定的值不被配置文件覆盖
	assert.Equal(t, "server", opts.Mode)
}

func TestApplyConfig_EnvOverlay(t *testing.T) {
	t.Setenv("DOCSCHAT_CHAT_LLM_MODEL", "qwen2.5")

	opts := options.NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, applyConfig(fs, ""))

	assert.Equal(t, "qwen2.5", opts.ChatOptions.Model)
}

func TestApplyConfig_UnreadableFile(t *testing.T) {
	opts := options.NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	err := applyConfig(fs, filepath.Join(t.TempDir(), "missing.yaml"))

	var ce *errs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Key, "missing.yaml")
}

func TestApplyConfig_BadValue(t *testing.T) {
	opts := options.NewServerOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	path := writeConfig(t, "chat:\n  top-k: not-a-number\n")

	err := applyConfig(fs, path)

	var ce *errs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "chat.top-k", ce.Key)
}
