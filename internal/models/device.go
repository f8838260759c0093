package models

import (
	"database/sql"
	"time"
)

// Device 设备领域模型（对应 devices 表）
// 远程身份字段（remote_device_id / remote_system_name / remote_hostname）
// 由身份解析器回写，三者要么全部为空，要么 remote_device_id 非空
type Device struct {
	// 主键
	DeviceID string `db:"device_id"`

	// 标识
	DeviceName string `db:"device_name"` // NOT NULL

	// 远程身份（RMM 侧），nullable
	RemoteDeviceID   sql.NullString `db:"remote_device_id"`
	RemoteSystemName sql.NullString `db:"remote_system_name"`
	RemoteHostname   sql.NullString `db:"remote_hostname"`

	// 健康投影（每次同步周期无条件覆盖）
	Status      string       `db:"status"` // NOT NULL, default 'unknown'
	IssuesCount int          `db:"issues_count"`
	Online      bool         `db:"online"`
	LastSeenAt  sql.NullTime `db:"last_seen_at"`

	// 是否纳入远程监控
	MonitoringEnabled bool `db:"monitoring_enabled"` // NOT NULL, default true

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasRemoteIdentity 是否已绑定远程设备
func (d *Device) HasRemoteIdentity() bool {
	return d.RemoteDeviceID.Valid && d.RemoteDeviceID.String != ""
}

// RemoteBinding 身份解析器回写的绑定信息
type RemoteBinding struct {
	RemoteDeviceID   string
	RemoteSystemName string
	RemoteHostname   string
}

// HealthSnapshot 单个设备的健康快照（来自远程 API，规范化后）
type HealthSnapshot struct {
	Status      string
	IssuesCount int
	Online      bool
	LastSeenAt  *time.Time
}
