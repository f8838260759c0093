// Package notifier 发布报警状态变化事件给下游推送扇出服务。
// 投递、去重窗口、多平台载荷格式化都由下游负责，这里只管把事件发出去。
package notifier

import (
	"context"

	"domus-rmm-sync/internal/models"
)

// Notifier 状态变化事件发布器
type Notifier interface {
	// PublishStatusChange 发布一条状态变化事件
	PublishStatusChange(ctx context.Context, event models.AlertStatusChange) error
	// Close 释放底层连接
	Close() error
}

// NopNotifier 空实现（NOTIFY_TRANSPORT=none 或测试用）
type NopNotifier struct{}

func (NopNotifier) PublishStatusChange(ctx context.Context, event models.AlertStatusChange) error {
	return nil
}

func (NopNotifier) Close() error { return nil }
