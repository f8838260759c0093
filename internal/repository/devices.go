package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// DevicesRepository 设备仓库
type DevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDevicesRepository 创建设备仓库
func NewDevicesRepository(db *sql.DB, logger *zap.Logger) *DevicesRepository {
	return &DevicesRepository{
		db:     db,
		logger: logger,
	}
}

const deviceColumns = `
	device_id,
	device_name,
	remote_device_id,
	remote_system_name,
	remote_hostname,
	status,
	issues_count,
	online,
	last_seen_at,
	monitoring_enabled,
	created_at,
	updated_at
`

func scanDevice(scanner interface{ Scan(...any) error }) (*models.Device, error) {
	var d models.Device
	err := scanner.Scan(
		&d.DeviceID,
		&d.DeviceName,
		&d.RemoteDeviceID,
		&d.RemoteSystemName,
		&d.RemoteHostname,
		&d.Status,
		&d.IssuesCount,
		&d.Online,
		&d.LastSeenAt,
		&d.MonitoringEnabled,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice 根据 device_id 获取单个设备
func (r *DevicesRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE device_id = $1
	`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found: device_id=%s", deviceID)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListMonitoredDevices 获取所有启用远程监控的设备（批量同步的枚举入口）
func (r *DevicesRepository) ListMonitoredDevices(ctx context.Context) ([]*models.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE monitoring_enabled = TRUE
		ORDER BY device_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored devices: %w", err)
	}
	defer rows.Close()

	devices := []*models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// UpdateRemoteBinding 回写解析器发现的远程绑定（自愈绑定）
// 下个周期该设备直接走 remote_device_id 快路径
func (r *DevicesRepository) UpdateRemoteBinding(ctx context.Context, deviceID string, binding models.RemoteBinding) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if binding.RemoteDeviceID == "" {
		return fmt.Errorf("remote_device_id is required")
	}

	query := `
		UPDATE devices
		SET remote_device_id = $1,
		    remote_system_name = $2,
		    remote_hostname = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		binding.RemoteDeviceID,
		binding.RemoteSystemName,
		binding.RemoteHostname,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update remote binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}

	r.logger.Info("Persisted remote device binding",
		zap.String("device_id", deviceID),
		zap.String("remote_device_id", binding.RemoteDeviceID),
		zap.String("remote_system_name", binding.RemoteSystemName),
	)

	return nil
}

// MergeHealth 合并健康快照（最新快照无条件覆盖，本层不保留历史）
func (r *DevicesRepository) MergeHealth(ctx context.Context, deviceID string, snapshot models.HealthSnapshot) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	var lastSeen sql.NullTime
	if snapshot.LastSeenAt != nil {
		lastSeen = sql.NullTime{Time: *snapshot.LastSeenAt, Valid: true}
	}

	query := `
		UPDATE devices
		SET status = $1,
		    issues_count = $2,
		    online = $3,
		    last_seen_at = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		snapshot.Status,
		snapshot.IssuesCount,
		snapshot.Online,
		lastSeen,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to merge device health: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}

	return nil
}

// CreateFromRemote 为未匹配的远程设备自动建档（需 SYNC_AUTO_CREATE 开启）
func (r *DevicesRepository) CreateFromRemote(ctx context.Context, remote models.RemoteDevice) (*models.Device, error) {
	if remote.ID == "" {
		return nil, fmt.Errorf("remote device id is required")
	}

	name := remote.SystemName
	if name == "" {
		name = remote.Hostname
	}
	if name == "" {
		name = remote.ID
	}

	// 绑定不变式：remote_device_id 非空时 remote_system_name 也必须非空，
	// 远程没报 systemName 就用同样的回退链补上
	now := time.Now()
	device := &models.Device{
		DeviceID:          uuid.New().String(),
		DeviceName:        name,
		RemoteDeviceID:    sql.NullString{String: remote.ID, Valid: true},
		RemoteSystemName:  sql.NullString{String: name, Valid: true},
		RemoteHostname:    sql.NullString{String: remote.Hostname, Valid: remote.Hostname != ""},
		Status:            "unknown",
		MonitoringEnabled: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	query := `
		INSERT INTO devices (
			device_id,
			device_name,
			remote_device_id,
			remote_system_name,
			remote_hostname,
			status,
			issues_count,
			online,
			monitoring_enabled,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		device.DeviceID,
		device.DeviceName,
		device.RemoteDeviceID,
		device.RemoteSystemName,
		device.RemoteHostname,
		device.Status,
		device.IssuesCount,
		device.Online,
		device.MonitoringEnabled,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device from remote: %w", err)
	}

	r.logger.Info("Auto-created device from remote inventory",
		zap.String("device_id", device.DeviceID),
		zap.String("remote_device_id", remote.ID),
		zap.String("device_name", device.DeviceName),
	)

	return device, nil
}
