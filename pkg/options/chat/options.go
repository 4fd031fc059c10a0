// Package chat provides chat pipeline configuration options.
package chat

import (
	"fmt"
	"time"

	"github.com/kart-io/docschat/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains chat pipeline configuration.
type Options struct {
	// DefaultDomain is the domain used when a request names none.
	DefaultDomain string `json:"default-domain" mapstructure:"default-domain"`

	// DocsBaseURL is the absolute root of the documentation site. Relative
	// links found in passages are resolved against it.
	DocsBaseURL string `json:"docs-base-url" mapstructure:"docs-base-url"`

	// CommunityURL is the community/support link used in generic answers.
	CommunityURL string `json:"community-url" mapstructure:"community-url"`

	// TopK is the number of nearest neighbors requested per search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MinScore is the minimum similarity score a search result must meet.
	MinScore float32 `json:"min-score" mapstructure:"min-score"`

	// MaxChunkSize is the upper bound on chunk content length.
	MaxChunkSize int `json:"max-chunk-size" mapstructure:"max-chunk-size"`

	// MinChunkSize is the lower bound below which chunks are discarded.
	MinChunkSize int `json:"min-chunk-size" mapstructure:"min-chunk-size"`

	// UpsertBatchSize is the number of chunks upserted per batch.
	UpsertBatchSize int `json:"upsert-batch-size" mapstructure:"upsert-batch-size"`

	// UpsertInterval is the pause between consecutive upsert batches,
	// respecting vector index provider rate limits.
	UpsertInterval time.Duration `json:"upsert-interval" mapstructure:"upsert-interval"`

	// QueryChannel is the message bus channel carrying inbound queries.
	QueryChannel string `json:"query-channel" mapstructure:"query-channel"`

	// ResponseChannel is the message bus channel carrying responses.
	ResponseChannel string `json:"response-channel" mapstructure:"response-channel"`

	// CacheEnabled toggles the Redis answer cache.
	CacheEnabled bool `json:"cache-enabled" mapstructure:"cache-enabled"`

	// CacheTTL is the answer cache expiry.
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		DefaultDomain:   "docs",
		DocsBaseURL:     "https://docs.example.com",
		CommunityURL:    "https://community.example.com",
		TopK:            5,
		MinScore:        0.4,
		MaxChunkSize:    1000,
		MinChunkSize:    100,
		UpsertBatchSize: 50,
		UpsertInterval:  time.Second,
		QueryChannel:    "rag:query",
		ResponseChannel: "rag:response",
		CacheEnabled:    true,
		CacheTTL:        time.Hour,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DefaultDomain, options.Join(prefixes...)+"chat.default-domain", o.DefaultDomain, "Domain used when a request names none.")
	fs.StringVar(&o.DocsBaseURL, options.Join(prefixes...)+"chat.docs-base-url", o.DocsBaseURL, "Absolute root URL of the documentation site.")
	fs.StringVar(&o.CommunityURL, options.Join(prefixes...)+"chat.community-url", o.CommunityURL, "Community/support URL used in generic answers.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"chat.top-k", o.TopK, "Number of nearest neighbors per search.")
	fs.Float32Var(&o.MinScore, options.Join(prefixes...)+"chat.min-score", o.MinScore, "Minimum similarity score for usable results.")
	fs.IntVar(&o.MaxChunkSize, options.Join(prefixes...)+"chat.max-chunk-size", o.MaxChunkSize, "Upper bound on chunk content length.")
	fs.IntVar(&o.MinChunkSize, options.Join(prefixes...)+"chat.min-chunk-size", o.MinChunkSize, "Lower bound on chunk content length.")
	fs.IntVar(&o.UpsertBatchSize, options.Join(prefixes...)+"chat.upsert-batch-size", o.UpsertBatchSize, "Chunks upserted per batch.")
	fs.DurationVar(&o.UpsertInterval, options.Join(prefixes...)+"chat.upsert-interval", o.UpsertInterval, "Pause between consecutive upsert batches.")
	fs.StringVar(&o.QueryChannel, options.Join(prefixes...)+"chat.query-channel", o.QueryChannel, "Bus channel carrying inbound queries.")
	fs.StringVar(&o.ResponseChannel, options.Join(prefixes...)+"chat.response-channel", o.ResponseChannel, "Bus channel carrying responses.")
	fs.BoolVar(&o.CacheEnabled, options.Join(prefixes...)+"chat.cache-enabled", o.CacheEnabled, "Enable the Redis answer cache.")
	fs.DurationVar(&o.CacheTTL, options.Join(prefixes...)+"chat.cache-ttl", o.CacheTTL, "Answer cache expiry.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.DefaultDomain == "" {
		errs = append(errs, fmt.Errorf("chat default-domain is required"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("chat top-k must be positive"))
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		errs = append(errs, fmt.Errorf("chat min-score must be in [0,1]"))
	}
	if o.MinChunkSize <= 0 || o.MaxChunkSize <= o.MinChunkSize {
		errs = append(errs, fmt.Errorf("chat chunk bounds must satisfy 0 < min < max"))
	}
	if o.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("chat upsert-batch-size must be positive"))
	}
	if o.QueryChannel == "" || o.ResponseChannel == "" {
		errs = append(errs, fmt.Errorf("chat bus channels are required"))
	}
	if o.QueryChannel == o.ResponseChannel {
		errs = append(errs, fmt.Errorf("chat query and response channels must differ"))
	}
	return errs
}
