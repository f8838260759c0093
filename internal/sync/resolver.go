package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// Resolver 设备身份解析器
// 本地设备与远程设备的匹配顺序，命中即止：
//  1. 已有 remote_device_id → 直接信任（快路径，不查远程清单）
//  2. device_name 与 systemName 精确匹配（区分大小写）
//  3. 模糊匹配：不区分大小写的双向子串（可配置关闭）
//
// 经 2/3 命中后把发现的绑定回写到设备记录（自愈），下个周期走快路径
type Resolver struct {
	devices DeviceStore
	fuzzy   bool
	logger  *zap.Logger
}

// NewResolver 创建身份解析器
func NewResolver(devices DeviceStore, fuzzy bool, logger *zap.Logger) *Resolver {
	return &Resolver{
		devices: devices,
		fuzzy:   fuzzy,
		logger:  logger,
	}
}

// Resolve 解析本地设备对应的远程设备 id
// force 为 true 时跳过快路径，重新匹配并覆盖已有绑定
// 解析失败返回 ErrDeviceNotResolved（调用方按跳过处理，不中断批次）
func (r *Resolver) Resolve(ctx context.Context, device *models.Device, index *RemoteIndex, force bool) (string, error) {
	if device == nil {
		return "", fmt.Errorf("device is required")
	}

	// 快路径：已绑定的设备不查远程清单
	if !force && device.HasRemoteIdentity() {
		return device.RemoteDeviceID.String, nil
	}

	remotes, err := index.List(ctx)
	if err != nil {
		return "", err
	}

	// 精确匹配（区分大小写）
	for i := range remotes {
		if remotes[i].SystemName != "" && remotes[i].SystemName == device.DeviceName {
			if err := r.persistBinding(ctx, device, &remotes[i]); err != nil {
				return "", err
			}
			r.logger.Info("Resolved device by exact name match",
				zap.String("device_id", device.DeviceID),
				zap.String("device_name", device.DeviceName),
				zap.String("remote_device_id", remotes[i].ID),
			)
			return remotes[i].ID, nil
		}
	}

	// 模糊匹配：双向子串，不区分大小写，取枚举顺序的第一个命中
	// 枚举顺序不保证稳定，重名设备可能误绑，所以每次命中都记录匹配依据
	if r.fuzzy && device.DeviceName != "" {
		localName := strings.ToLower(device.DeviceName)
		for i := range remotes {
			remoteName := strings.ToLower(remotes[i].SystemName)
			if remoteName == "" {
				continue
			}
			if strings.Contains(remoteName, localName) || strings.Contains(localName, remoteName) {
				if err := r.persistBinding(ctx, device, &remotes[i]); err != nil {
					return "", err
				}
				r.logger.Warn("Resolved device by fuzzy substring match",
					zap.String("device_id", device.DeviceID),
					zap.String("device_name", device.DeviceName),
					zap.String("remote_system_name", remotes[i].SystemName),
					zap.String("remote_device_id", remotes[i].ID),
				)
				return remotes[i].ID, nil
			}
		}
	}

	return "", fmt.Errorf("device %s (%s): %w",
		device.DeviceID, device.DeviceName, models.ErrDeviceNotResolved)
}

// persistBinding 回写发现的绑定，并同步更新内存中的设备对象
func (r *Resolver) persistBinding(ctx context.Context, device *models.Device, remote *models.RemoteDevice) error {
	binding := models.RemoteBinding{
		RemoteDeviceID:   remote.ID,
		RemoteSystemName: remote.SystemName,
		RemoteHostname:   remote.Hostname,
	}

	if err := r.devices.UpdateRemoteBinding(ctx, device.DeviceID, binding); err != nil {
		return fmt.Errorf("failed to persist discovered binding: %w", err)
	}

	device.RemoteDeviceID.String = remote.ID
	device.RemoteDeviceID.Valid = true
	device.RemoteSystemName.String = remote.SystemName
	device.RemoteSystemName.Valid = remote.SystemName != ""
	device.RemoteHostname.String = remote.Hostname
	device.RemoteHostname.Valid = remote.Hostname != ""

	return nil
}
