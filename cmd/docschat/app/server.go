// Package app wires configuration, flags, and signal handling for the
// docschat command.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kart-io/docschat/cmd/docschat/app/options"
	"github.com/kart-io/docschat/internal/pkg/errs"
)

const commandDesc = `docschat answers product questions from ingested documentation.

It serves a streaming HTTP chat API and, optionally, a Redis message bus
worker. Retrieval runs against Milvus; generation runs against a
configurable LLM provider (OpenAI-compatible or Ollama).`

// NewServerCommand creates the docschat root command with default parameters.
func NewServerCommand() *cobra.Command {
	opts := options.NewServerOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          "docschat",
		Short:        "Documentation chat assistant",
		Long:         commandDesc,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfig(cmd.Flags(), configFile); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (YAML, JSON, or TOML).")

	return cmd
}

// applyConfig overlays configuration file and environment values onto flags
// the user did not set explicitly. Precedence: flags > environment > config
// file > defaults. Config keys mirror flag names, e.g. the flag
// --chat.min-score reads the key "chat.min-score" or DOCSCHAT_CHAT_MIN_SCORE.
func applyConfig(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return &errs.ConfigError{Key: configFile, Reason: err.Error()}
		}
	}
	v.SetEnvPrefix("DOCSCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var applyErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil && applyErr == nil {
			applyErr = &errs.ConfigError{Key: f.Name, Reason: err.Error()}
		}
	})
	return applyErr
}

func run(opts *options.ServerOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	server, err := cfg.NewServer(ctx)
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
