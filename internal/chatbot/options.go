// Package chatbot assembles the documentation chatbot service: the shared
// pipeline plus the HTTP server and the message-bus worker.
package chatbot

import (
	chatopts "github.com/kart-io/docschat/pkg/options/chat"
	httpopts "github.com/kart-io/docschat/pkg/options/http"
	llmopts "github.com/kart-io/docschat/pkg/options/llm"
	logopts "github.com/kart-io/docschat/pkg/options/logger"
	milvusopts "github.com/kart-io/docschat/pkg/options/milvus"
	redisopts "github.com/kart-io/docschat/pkg/options/redis"
)

// Run modes. ModeAll runs the HTTP server and the bus worker in one
// process; the other two run a single adapter.
const (
	ModeServer = "server"
	ModeWorker = "worker"
	ModeAll    = "all"
)

// Config contains everything needed to build a Server.
type Config struct {
	// Mode selects which adapters run: server, worker, or all.
	Mode string

	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	ChatbotOptions   *chatopts.Options
}

// RunsHTTP reports whether the HTTP adapter is enabled.
func (cfg *Config) RunsHTTP() bool {
	return cfg.Mode == ModeServer || cfg.Mode == ModeAll
}

// RunsWorker reports whether the bus worker is enabled.
func (cfg *Config) RunsWorker() bool {
	return cfg.Mode == ModeWorker || cfg.Mode == ModeAll
}
