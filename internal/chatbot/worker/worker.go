// Package worker implements the message-bus adapter: it consumes query
// events from the query channel and publishes exactly one response event per
// query, success or failure.
package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docschat/internal/chatbot/biz"
	"github.com/kart-io/docschat/internal/chatbot/metrics"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/pkg/utils/json"
)

// Config configures the bus worker.
type Config struct {
	// QueryChannel is the channel queries arrive on.
	QueryChannel string
	// ResponseChannel is the channel responses are published to.
	ResponseChannel string
	// DefaultDomain is used when a query carries no domain.
	DefaultDomain string
}

// Worker subscribes to the query channel and answers every query. Queries
// are processed one at a time; running multiple worker processes is safe
// because each query is independent and the bus fans out to whichever
// subscriber receives it.
type Worker struct {
	redis   *goredis.Client
	service biz.Service
	metrics *metrics.ChatMetrics
	config  *Config

	pubsub  *goredis.PubSub
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a worker.
func New(redisClient *goredis.Client, service biz.Service, config *Config) *Worker {
	return &Worker{
		redis:   redisClient,
		service: service,
		metrics: metrics.GetChatMetrics(),
		config:  config,
		closeCh: make(chan struct{}),
	}
}

// Start subscribes to the query channel and begins processing. It returns
// after the subscription is confirmed; processing continues in the
// background until Stop.
func (w *Worker) Start(ctx context.Context) error {
	w.pubsub = w.redis.Subscribe(ctx, w.config.QueryChannel)

	// Wait for the subscription to be confirmed so that callers can publish
	// immediately after Start returns.
	if _, err := w.pubsub.Receive(ctx); err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ch := w.pubsub.Channel()

		for {
			select {
			case <-w.closeCh:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.handleMessage(context.Background(), msg.Payload)
			}
		}
	}()

	logger.Infow("bus worker started", "query_channel", w.config.QueryChannel, "response_channel", w.config.ResponseChannel)
	return nil
}

// Stop shuts the worker down and waits for the in-flight query to finish.
func (w *Worker) Stop() {
	close(w.closeCh)
	if w.pubsub != nil {
		_ = w.pubsub.Close()
	}
	w.wg.Wait()
}

// handleMessage processes one query event. Every parseable query gets
// exactly one response event, including on internal panics; a message that
// does not parse carries no correlation id to respond to and is only logged.
func (w *Worker) handleMessage(ctx context.Context, payload string) {
	w.metrics.RecordBusQuery()

	var query model.QueryEvent
	if err := json.Unmarshal([]byte(payload), &query); err != nil {
		logger.Warnw("dropping unparseable query event", "error", err.Error())
		return
	}

	response := w.processQuery(ctx, &query)
	w.publish(ctx, response)
}

const failureMessage = "Sorry, I couldn't process your question right now. Please try again in a moment."

// processQuery runs the pipeline and always returns a response event.
func (w *Worker) processQuery(ctx context.Context, query *model.QueryEvent) (response *model.ResponseEvent) {
	response = &model.ResponseEvent{
		ID:        query.ID,
		UserID:    query.UserID,
		ChannelID: query.ChannelID,
		Sources:   []string{},
		Timestamp: time.Now().UnixMilli(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("panic while processing query", "panic", r, "query_id", query.ID)
			response.Success = false
			response.Response = failureMessage
		}
	}()

	domain := query.Domain
	if domain == "" {
		domain = w.config.DefaultDomain
	}

	reply, err := w.service.Respond(ctx, query.Message, domain)
	if err != nil {
		logger.Errorw("pipeline failed", "error", err.Error(), "query_id", query.ID)
		response.Success = false
		response.Response = failureMessage
		return response
	}

	// Drain the whole stream before publishing: the bus carries complete
	// responses, not fragments.
	var answer strings.Builder
	for chunk := range reply.Fragments {
		if chunk.Err != nil {
			logger.Errorw("answer stream failed", "error", chunk.Err.Error(), "query_id", query.ID)
			response.Success = false
			response.Response = failureMessage
			return response
		}
		answer.WriteString(chunk.Content)
	}

	response.Success = true
	response.Response = answer.String()
	response.Sources = reply.Finalize(response.Response)
	return response
}

func (w *Worker) publish(ctx context.Context, response *model.ResponseEvent) {
	data, err := json.Marshal(response)
	if err != nil {
		logger.Errorw("failed to marshal response event", "error", err.Error(), "query_id", response.ID)
		return
	}

	if err := w.redis.Publish(ctx, w.config.ResponseChannel, data).Err(); err != nil {
		logger.Errorw("failed to publish response event", "error", err.Error(), "query_id", response.ID)
		return
	}

	w.metrics.RecordBusResponse(response.Success)
	logger.Infow("published response event",
		"query_id", response.ID,
		"success", response.Success,
		"response_length", len(response.Response),
	)
}
