// Package options contains flags and options for initializing the docschat
// server.
package options

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docschat/internal/chatbot"
	chatopts "github.com/kart-io/docschat/pkg/options/chat"
	httpopts "github.com/kart-io/docschat/pkg/options/http"
	llmopts "github.com/kart-io/docschat/pkg/options/llm"
	logopts "github.com/kart-io/docschat/pkg/options/logger"
	milvusopts "github.com/kart-io/docschat/pkg/options/milvus"
	redisopts "github.com/kart-io/docschat/pkg/options/redis"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// Mode selects which adapters run: server, worker, or all.
	Mode string `json:"mode" mapstructure:"mode"`

	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// RedisOptions contains Redis configuration (cache and message bus).
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// ChatbotOptions contains pipeline configuration.
	ChatbotOptions *chatopts.Options `json:"chat-pipeline" mapstructure:"chat-pipeline"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Mode:             chatbot.ModeAll,
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		ChatbotOptions:   chatopts.NewOptions(),
	}
}

// AddFlags adds all server flags to the given flag set.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "mode", o.Mode, "Which adapters to run: server, worker, or all.")
	o.HTTPOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
	o.MilvusOptions.AddFlags(fs)
	o.RedisOptions.AddFlags(fs)
	o.EmbeddingOptions.AddFlags(fs, "embedding")
	o.ChatOptions.AddFlags(fs, "chat")
	o.ChatbotOptions.AddFlags(fs)
}

// Validate checks whether the options are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	switch o.Mode {
	case chatbot.ModeServer, chatbot.ModeWorker, chatbot.ModeAll:
	default:
		errs = append(errs, fmt.Errorf("mode must be one of server, worker, all; got %q", o.Mode))
	}

	errs = append(errs, o.HTTPOptions.Validate()...)
	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.ChatbotOptions.Validate()...)

	return errors.Join(errs...)
}

// Config builds a chatbot.Config from the options.
func (o *ServerOptions) Config() (*chatbot.Config, error) {
	return &chatbot.Config{
		Mode:             o.Mode,
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		MilvusOptions:    o.MilvusOptions,
		RedisOptions:     o.RedisOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		ChatbotOptions:   o.ChatbotOptions,
	}, nil
}
