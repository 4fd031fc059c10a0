package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/pkg/utils/json"
)

// AnswerCacheConfig 答案缓存配置。
type AnswerCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// AnswerCache 缓存完整生成的答案。只有走完整生成路径的答案才会入缓存，
// 固定答案和寒暄回复本身零成本，无需缓存。
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache 创建答案缓存实例。
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = &AnswerCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "docschat:answer:",
		}
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "docschat:answer:"
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey 基于域和问题生成缓存键（SHA256 哈希）。
func (c *AnswerCache) cacheKey(domain, question string) string {
	hash := sha256.Sum256([]byte(domain + "\x00" + question))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get 从缓存获取答案。未命中返回 (nil, nil)。
func (c *AnswerCache) Get(ctx context.Context, domain, question string) (*model.CachedAnswer, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(domain, question)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("failed to get from answer cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var cached model.CachedAnswer
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warnw("failed to unmarshal cached answer, dropping entry", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("answer cache hit", "domain", domain, "key", key, "answer_length", len(cached.Answer))
	return &cached, nil
}

// Set 将答案写入缓存。写入失败只记日志，不影响正常返回。
func (c *AnswerCache) Set(ctx context.Context, domain, question, answer string, sources []string) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	key := c.cacheKey(domain, question)

	data, err := json.Marshal(&model.CachedAnswer{
		Answer:   answer,
		Sources:  sources,
		CachedAt: time.Now(),
	})
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "error", err.Error(), "key", key)
		return err
	}

	return nil
}

// Clear 清除所有缓存的答案，返回删除的条数。
func (c *AnswerCache) Clear(ctx context.Context) (int, error) {
	if !c.config.Enabled || c.redis == nil {
		return 0, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	logger.Infow("cleared answer cache", "deleted_count", deleted)
	return deleted, nil
}

// Stats 获取缓存统计信息。
func (c *AnswerCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
