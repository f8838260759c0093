package models

import (
	"encoding/json"
	"time"
)

// Severity 报警级别（封闭枚举）
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus 报警状态（封闭枚举）
// 状态迁移单调：open → acknowledged → resolved，resolved 为终态
type AlertStatus string

const (
	StatusOpen         AlertStatus = "open"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// statusRank 状态偏序（用于禁止回退迁移）
var statusRank = map[AlertStatus]int{
	StatusOpen:         0,
	StatusAcknowledged: 1,
	StatusResolved:     2,
}

// IsRegression 判断 next 相对 current 是否为回退迁移
func IsRegression(current, next AlertStatus) bool {
	return statusRank[next] < statusRank[current]
}

// Alert 报警领域模型（对应 alerts 表）
// RemoteAlertID 是唯一自然键，upsert 以它为准
type Alert struct {
	AlertID       string  `db:"alert_id"`
	RemoteAlertID string  `db:"remote_alert_id"` // UNIQUE NOT NULL
	DeviceID      *string `db:"device_id"`       // nullable，设备无法解析时为空

	Severity Severity    `db:"severity"`
	Status   AlertStatus `db:"status"`

	Title       string `db:"title"`
	Description string `db:"description"`

	// 远程原始载荷，原样保存用于取证
	RawPayload json.RawMessage `db:"raw_payload"`

	TriggeredAt    time.Time  `db:"triggered_at"`
	AcknowledgedAt *time.Time `db:"acknowledged_at"`
	ResolvedAt     *time.Time `db:"resolved_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// AlertStatusChange 状态变化领域事件（仅在检测到状态迁移时发出）
// 下游推送服务（FCM/Expo 扇出）消费该事件，投递与去重由其负责
type AlertStatusChange struct {
	AlertID       string      `json:"alert_id"`
	RemoteAlertID string      `json:"remote_alert_id"`
	DeviceID      *string     `json:"device_id,omitempty"`
	OldStatus     AlertStatus `json:"old_status"`
	NewStatus     AlertStatus `json:"new_status"`
	Severity      Severity    `json:"severity"`
	OccurredAt    time.Time   `json:"occurred_at"`
}
