package sync

import (
	"context"

	"domus-rmm-sync/internal/models"
)

// RemoteAPI 同步引擎依赖的远程监控 API 最小契约
// 具体实现见 internal/rmm
type RemoteAPI interface {
	ListDevices(ctx context.Context) ([]models.RemoteDevice, error)
	GetDeviceAlerts(ctx context.Context, remoteDeviceID string) ([]models.RemoteAlert, error)
	GetDeviceHealth(ctx context.Context, remoteDeviceID string) (*models.RemoteHealth, error)
}

// DeviceStore 设备持久化契约
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListMonitoredDevices(ctx context.Context) ([]*models.Device, error)
	UpdateRemoteBinding(ctx context.Context, deviceID string, binding models.RemoteBinding) error
	MergeHealth(ctx context.Context, deviceID string, snapshot models.HealthSnapshot) error
	CreateFromRemote(ctx context.Context, remote models.RemoteDevice) (*models.Device, error)
}

// AlertStore 报警持久化契约
type AlertStore interface {
	GetByRemoteAlertID(ctx context.Context, remoteAlertID string) (*models.Alert, error)
	Insert(ctx context.Context, alert *models.Alert) (bool, error)
	Update(ctx context.Context, alertID string, updates map[string]interface{}) error
	SweepResolved(ctx context.Context, retentionDays int) (int64, error)
}

// TenantGraph 归属/共享关系的只读视图（同步期间不写）
type TenantGraph interface {
	TenantsFor(ctx context.Context, deviceID string) ([]string, error)
}
