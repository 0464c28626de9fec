package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	recordKeyPrefix = "redink:record:"
	taskKeyPrefix   = "redink:task:"
)

// RecordKey 历史记录缓存键
func RecordKey(id string) string {
	return recordKeyPrefix + id
}

// TaskKey 生成任务状态键
func TaskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// Loader 缓存未命中时的回源函数，返回 nil 表示目标不存在
type Loader func(ctx context.Context) (any, error)

// Cache JSON 读穿缓存，同一个键的并发回源合并为一次
type Cache struct {
	client *Client
	flight singleflight.Group
}

// NewCache 创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Load 先读缓存，未命中时回源并写回；回源结果为 nil 时不写缓存，返回空切片
// 写回失败只记录在 span 上
func (c *Cache) Load(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	ctx, span := startSpan(ctx, "cache.Load", attribute.String("cache.key", key))
	defer span.End()

	cached, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	case !IsNil(err):
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.flight.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil || value == nil {
			return []byte(nil), err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value: %w", err)
		}
		if err := c.client.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return raw, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	raw, _ := v.([]byte)
	return raw, nil
}

// Evict 删除缓存键；同时丢弃进行中的回源，避免旧值被写回
func (c *Cache) Evict(ctx context.Context, keys ...string) error {
	ctx, span := startSpan(ctx, "cache.Evict", attribute.Int("cache.key_count", len(keys)))
	defer span.End()

	for _, k := range keys {
		c.flight.Forget(k)
	}
	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
