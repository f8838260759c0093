package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// RunOptions 单次运行的入口参数
type RunOptions struct {
	DeviceID string // 非空时只同步这一个设备，跳过枚举
	Force    bool   // 忽略已有绑定，重新解析远程身份
	Cleanup  bool   // 运行结束后执行保留期清理
}

// DeviceError 单设备失败明细
type DeviceError struct {
	DeviceID   string
	DeviceName string
	Err        error
}

// Summary 运行汇总
// 操作员据此区分"干净跑完"、"带着 N 个设备问题跑完"和"没跑起来"
type Summary struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	DevicesProcessed int
	DevicesSkipped   int
	DevicesFailed    int
	AlertsSynced     int
	AlertsSwept      int64
	Errors           []DeviceError
}

// Orchestrator 批量同步编排器
// 状态机：Start → Enumerate → [每设备: Sync → Success|Skipped|Failed] → Summarize → End
// 单设备失败不会让整次运行失败；只有基础设施错误（枚举失败、清理失败）才会
type Orchestrator struct {
	devices       DeviceStore
	alerts        AlertStore
	syncer        *DeviceSyncer
	api           RemoteAPI
	workers       int
	autoCreate    bool
	retentionDays int
	logger        *zap.Logger
}

// NewOrchestrator 创建批量编排器
func NewOrchestrator(
	devices DeviceStore,
	alerts AlertStore,
	syncer *DeviceSyncer,
	api RemoteAPI,
	workers int,
	autoCreate bool,
	retentionDays int,
	logger *zap.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		devices:       devices,
		alerts:        alerts,
		syncer:        syncer,
		api:           api,
		workers:       workers,
		autoCreate:    autoCreate,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run 执行一次同步
// 返回的 error 非空表示基础设施级失败（对应非零退出码）；
// 部分设备失败只体现在 Summary 里
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}
	index := NewRemoteIndex(o.api)

	devices, err := o.enumerate(ctx, opts, index)
	if err != nil {
		return summary, err
	}

	o.logger.Info("Starting sync run",
		zap.Int("device_count", len(devices)),
		zap.Int("workers", o.workers),
		zap.Bool("force", opts.Force),
	)

	o.syncAll(ctx, devices, index, opts.Force, summary)

	if opts.Cleanup {
		swept, err := o.alerts.SweepResolved(ctx, o.retentionDays)
		if err != nil {
			return summary, fmt.Errorf("%w: retention sweep: %v", models.ErrInfrastructure, err)
		}
		summary.AlertsSwept = swept
	}

	summary.FinishedAt = time.Now()

	o.logger.Info("Sync run finished",
		zap.Int("devices_processed", summary.DevicesProcessed),
		zap.Int("devices_skipped", summary.DevicesSkipped),
		zap.Int("devices_failed", summary.DevicesFailed),
		zap.Int("alerts_synced", summary.AlertsSynced),
		zap.Int64("alerts_swept", summary.AlertsSwept),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	return summary, nil
}

// enumerate 枚举待同步设备。枚举本身失败是基础设施错误，整次运行失败
func (o *Orchestrator) enumerate(ctx context.Context, opts RunOptions, index *RemoteIndex) ([]*models.Device, error) {
	// 单设备范围：绕过枚举
	if opts.DeviceID != "" {
		device, err := o.devices.GetDevice(ctx, opts.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInfrastructure, err)
		}
		return []*models.Device{device}, nil
	}

	devices, err := o.devices.ListMonitoredDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate devices: %v", models.ErrInfrastructure, err)
	}

	if o.autoCreate {
		created, err := o.autoCreateUnmatched(ctx, devices, index)
		if err != nil {
			// 自动建档失败不致命，按原有设备集继续
			o.logger.Error("Failed to auto-create devices from remote inventory",
				zap.Error(err),
			)
		} else {
			devices = append(devices, created...)
		}
	}

	return devices, nil
}

// autoCreateUnmatched 为远程清单中没有本地对应的设备自动建档
func (o *Orchestrator) autoCreateUnmatched(ctx context.Context, local []*models.Device, index *RemoteIndex) ([]*models.Device, error) {
	remotes, err := index.List(ctx)
	if err != nil {
		return nil, err
	}

	bound := make(map[string]bool, len(local))
	names := make(map[string]bool, len(local))
	for _, d := range local {
		if d.HasRemoteIdentity() {
			bound[d.RemoteDeviceID.String] = true
		}
		names[d.DeviceName] = true
	}

	created := []*models.Device{}
	for _, remote := range remotes {
		if remote.ID == "" || bound[remote.ID] {
			continue
		}
		// 名称已存在的留给解析器匹配，不重复建档
		if remote.SystemName != "" && names[remote.SystemName] {
			continue
		}
		device, err := o.devices.CreateFromRemote(ctx, remote)
		if err != nil {
			o.logger.Error("Failed to auto-create device",
				zap.String("remote_device_id", remote.ID),
				zap.Error(err),
			)
			continue
		}
		created = append(created, device)
	}

	return created, nil
}

// syncAll 有界工作池并发同步，设备间无共享可变状态
func (o *Orchestrator) syncAll(ctx context.Context, devices []*models.Device, index *RemoteIndex, force bool, summary *Summary) {
	type deviceResult struct {
		device *models.Device
		synced int
		err    error
	}

	jobs := make(chan *models.Device)
	results := make(chan deviceResult, len(devices))

	var wg gosync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range jobs {
				synced, err := o.syncer.SyncOne(ctx, device, index, force)
				results <- deviceResult{device: device, synced: synced, err: err}
			}
		}()
	}

	// 取消时停止派发剩余设备，在途的同步协作式收尾
	go func() {
		defer close(jobs)
		for _, device := range devices {
			select {
			case <-ctx.Done():
				return
			case jobs <- device:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		summary.DevicesProcessed++
		summary.AlertsSynced += result.synced

		switch {
		case result.err == nil:
			// Success
		case errors.Is(result.err, models.ErrDeviceNotResolved):
			summary.DevicesSkipped++
			o.logger.Info("Device skipped: remote identity not resolved",
				zap.String("device_id", result.device.DeviceID),
				zap.String("device_name", result.device.DeviceName),
			)
		case errors.Is(result.err, context.Canceled), errors.Is(result.err, context.DeadlineExceeded):
			summary.DevicesSkipped++
		default:
			summary.DevicesFailed++
			summary.Errors = append(summary.Errors, DeviceError{
				DeviceID:   result.device.DeviceID,
				DeviceName: result.device.DeviceName,
				Err:        result.err,
			})
			o.logger.Error("Device sync failed",
				zap.String("device_id", result.device.DeviceID),
				zap.String("device_name", result.device.DeviceName),
				zap.Error(result.err),
			)
		}
	}
}
