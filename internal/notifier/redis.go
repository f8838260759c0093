package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// RedisNotifier 通过 Redis Streams 发布状态变化事件
// 下游推送服务以消费者组方式读取（XREADGROUP）
type RedisNotifier struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisNotifier 创建 Redis Streams 发布器
func NewRedisNotifier(client *redis.Client, stream string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// PublishStatusChange 发布状态变化事件到 Stream
func (n *RedisNotifier) PublishStatusChange(ctx context.Context, event models.AlertStatusChange) error {
	jsonBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status change event: %w", err)
	}

	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish status change to stream: %w", err)
	}

	n.logger.Debug("Published alert status change",
		zap.String("stream", n.stream),
		zap.String("message_id", id),
		zap.String("alert_id", event.AlertID),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("new_status", string(event.NewStatus)),
	)

	return nil
}

// Close 关闭 Redis 连接
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
