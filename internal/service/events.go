package service

import (
	"context"
	"fmt"
	"time"

	commonredis "health-etl/common/redis"

	"github.com/go-redis/redis/v8"
)

// LoadedEvent 一次运行结束后发布的加载完成事件
type LoadedEvent struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Tables     map[string]int    `json:"tables"`   // 已加载的表 → 行数
	Outcomes   map[string]string `json:"outcomes"` // 阶段 → 结果
	Fatal      bool              `json:"fatal"`
}

// EventPublisher 事件发布
type EventPublisher interface {
	PublishLoaded(ctx context.Context, evt *LoadedEvent) error
}

// RedisEventPublisher 发布到 Redis Stream
type RedisEventPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisEventPublisher 创建 Redis 事件发布器
func NewRedisEventPublisher(client *redis.Client, stream string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, stream: stream}
}

// PublishLoaded 发布加载完成事件
func (p *RedisEventPublisher) PublishLoaded(ctx context.Context, evt *LoadedEvent) error {
	if _, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, evt); err != nil {
		return fmt.Errorf("failed to publish loaded event to %s: %w", p.stream, err)
	}
	return nil
}

// LastLoadedEvent 读取最近一次加载完成事件，没有事件时返回 (nil, nil)
func LastLoadedEvent(ctx context.Context, client *redis.Client, stream string) (*LoadedEvent, error) {
	msg, err := commonredis.LatestFromStream(ctx, client, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", stream, err)
	}
	if msg == nil {
		return nil, nil
	}
	var evt LoadedEvent
	if err := commonredis.DecodeJSONMessage(msg, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode loaded event %s: %w", msg.ID, err)
	}
	return &evt, nil
}
