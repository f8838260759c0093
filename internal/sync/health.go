package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
	"domus-rmm-sync/internal/normalizer"
)

// DeviceSyncer 单设备同步：拉取远程报警和健康快照，调和到本地
type DeviceSyncer struct {
	api       RemoteAPI
	devices   DeviceStore
	upserter  *Upserter
	ownership TenantGraph
	resolver  *Resolver
	logger    *zap.Logger
}

// NewDeviceSyncer 创建单设备同步器
func NewDeviceSyncer(
	api RemoteAPI,
	devices DeviceStore,
	upserter *Upserter,
	ownership TenantGraph,
	resolver *Resolver,
	logger *zap.Logger,
) *DeviceSyncer {
	return &DeviceSyncer{
		api:       api,
		devices:   devices,
		upserter:  upserter,
		ownership: ownership,
		resolver:  resolver,
		logger:    logger,
	}
}

// SyncOne 同步单个设备，返回本周期 created+updated 的报警数
// 设备无法解析时返回 ErrDeviceNotResolved（调用方按跳过处理）；
// 单条报警的失败只记日志，不中断该设备剩余报警的处理
func (s *DeviceSyncer) SyncOne(ctx context.Context, device *models.Device, index *RemoteIndex, force bool) (int, error) {
	remoteID, err := s.resolver.Resolve(ctx, device, index, force)
	if err != nil {
		return 0, err
	}

	// 归属检查：零租户设备的报警仍然保留（等待后续归属），只给告警
	tenants, err := s.ownership.TenantsFor(ctx, device.DeviceID)
	if err != nil {
		s.logger.Error("Failed to query device tenants",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
	} else if len(tenants) == 0 {
		s.logger.Warn("Device has no resolvable tenants, alerts retained for later attribution",
			zap.String("device_id", device.DeviceID),
		)
	}

	alerts, err := s.api.GetDeviceAlerts(ctx, remoteID)
	if err != nil {
		return 0, fmt.Errorf("%w: alerts for device %s: %v", models.ErrRemoteFetchFailed, device.DeviceID, err)
	}

	synced := 0
	for _, remoteAlert := range alerts {
		select {
		case <-ctx.Done():
			return synced, ctx.Err()
		default:
		}

		result, err := s.upserter.Upsert(ctx, remoteAlert, device)
		if err != nil {
			if errors.Is(err, models.ErrMalformedAlertPayload) {
				s.logger.Warn("Skipping malformed remote alert",
					zap.String("device_id", device.DeviceID),
					zap.String("remote_device_id", remoteID),
					zap.Error(err),
				)
			} else {
				s.logger.Error("Failed to upsert alert",
					zap.String("device_id", device.DeviceID),
					zap.String("remote_alert_id", remoteAlert.ID),
					zap.Error(err),
				)
			}
			continue
		}
		if result == ResultCreated || result == ResultUpdated {
			synced++
		}
	}

	// 健康合并用的是本周期拉到的快照，不混用其他设备或上个周期的数据
	if err := s.mergeHealth(ctx, device, remoteID); err != nil {
		s.logger.Error("Failed to merge device health",
			zap.String("device_id", device.DeviceID),
			zap.String("remote_device_id", remoteID),
			zap.Error(err),
		)
	}

	return synced, nil
}

// mergeHealth 拉取并合并健康快照（最新快照无条件覆盖）
func (s *DeviceSyncer) mergeHealth(ctx context.Context, device *models.Device, remoteID string) error {
	health, err := s.api.GetDeviceHealth(ctx, remoteID)
	if err != nil {
		return fmt.Errorf("%w: health for device %s: %v", models.ErrRemoteFetchFailed, device.DeviceID, err)
	}

	status := health.Status
	if status == "" {
		status = "unknown"
	}

	snapshot := models.HealthSnapshot{
		Status:      status,
		IssuesCount: health.IssuesCount,
		Online:      health.Online,
		LastSeenAt:  normalizer.ParseRemoteTimePtr(health.LastContact),
	}

	return s.devices.MergeHealth(ctx, device.DeviceID, snapshot)
}
