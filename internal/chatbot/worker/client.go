package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/pkg/utils/json"
)

// Client is the publishing side of the bus: it sends a query event and
// awaits the correlated response. Bus delivery is not guaranteed end to
// end, so every Ask carries a timeout and tolerates no response ever
// arriving.
type Client struct {
	redis  *goredis.Client
	config *Config
}

// NewClient creates a bus client.
func NewClient(redisClient *goredis.Client, config *Config) *Client {
	return &Client{
		redis:  redisClient,
		config: config,
	}
}

// Ask publishes a query and waits for the response event with the same id.
// Responses for other ids on the shared channel are skipped, never consumed
// destructively for their own waiters (pub/sub fans out to all
// subscribers).
func (c *Client) Ask(ctx context.Context, userID, channelID, message, domain string, timeout time.Duration) (*model.ResponseEvent, error) {
	id := uuid.NewString()

	// Subscribe before publishing so the response cannot slip past us.
	sub := c.redis.Subscribe(ctx, c.config.ResponseChannel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to response channel: %w", err)
	}

	query := &model.QueryEvent{
		ID:        id,
		UserID:    userID,
		ChannelID: channelID,
		Message:   message,
		Domain:    domain,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query event: %w", err)
	}
	if err := c.redis.Publish(ctx, c.config.QueryChannel, data).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish query event: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("no response for query %s within %s", id, timeout)
		case msg, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("response subscription closed")
			}
			var response model.ResponseEvent
			if err := json.Unmarshal([]byte(msg.Payload), &response); err != nil {
				continue
			}
			if response.ID != id {
				continue
			}
			return &response, nil
		}
	}
}
