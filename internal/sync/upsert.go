package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
	"domus-rmm-sync/internal/normalizer"
	"domus-rmm-sync/internal/notifier"
)

// UpsertResult 单条报警的 upsert 结果
type UpsertResult int

const (
	ResultUnchanged UpsertResult = iota
	ResultCreated
	ResultUpdated
)

func (r UpsertResult) String() string {
	switch r {
	case ResultCreated:
		return "created"
	case ResultUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Upserter 报警 upsert 引擎
// 以 remote_alert_id 为唯一自然键：首次出现创建，再次出现按字段比对更新，
// 无差异不写库（避免无意义的 updated_at 抖动，保持审计日志可读）。
// 状态迁移单调：resolved 是终态，远程把已解决的报警重新报成 active 只记日志
type Upserter struct {
	alerts   AlertStore
	notifier notifier.Notifier
	logger   *zap.Logger
}

// NewUpserter 创建 upsert 引擎
func NewUpserter(alerts AlertStore, n notifier.Notifier, logger *zap.Logger) *Upserter {
	return &Upserter{
		alerts:   alerts,
		notifier: n,
		logger:   logger,
	}
}

// Upsert 把一条远程报警调和到本地报警表
// device 可以为 nil（设备未解析时报警仍然保留，device_id 留空等待后续归属）
func (u *Upserter) Upsert(ctx context.Context, remote models.RemoteAlert, device *models.Device) (UpsertResult, error) {
	if remote.ID == "" {
		return ResultUnchanged, fmt.Errorf("remote alert without id: %w", models.ErrMalformedAlertPayload)
	}

	severity := normalizer.NormalizeSeverity(remote.RawSeverity())
	status := normalizer.NormalizeStatus(remote.Status)

	// 取证存档用远程返回的原始字节，厂商私有字段原样保留
	rawPayload := []byte(remote.Raw())
	if len(rawPayload) == 0 {
		var err error
		rawPayload, err = json.Marshal(remote)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("failed to marshal raw payload: %w", err)
		}
	}

	existing, err := u.alerts.GetByRemoteAlertID(ctx, remote.ID)
	if err != nil {
		return ResultUnchanged, err
	}

	if existing == nil {
		created, err := u.create(ctx, remote, device, severity, status, rawPayload)
		if err != nil {
			return ResultUnchanged, err
		}
		if created {
			return ResultCreated, nil
		}
		// 并发竞争输了：另一个 worker 刚插入了同一条，重读后走更新路径
		existing, err = u.alerts.GetByRemoteAlertID(ctx, remote.ID)
		if err != nil {
			return ResultUnchanged, err
		}
		if existing == nil {
			return ResultUnchanged, fmt.Errorf("alert %s vanished after insert conflict", remote.ID)
		}
	}

	return u.update(ctx, existing, remote, device, severity, status, rawPayload)
}

// create 首次出现，创建本地报警记录
// 返回 false 表示唯一约束冲突（并发插入），调用方需转入更新路径
func (u *Upserter) create(
	ctx context.Context,
	remote models.RemoteAlert,
	device *models.Device,
	severity models.Severity,
	status models.AlertStatus,
	rawPayload []byte,
) (bool, error) {
	now := time.Now()

	alert := &models.Alert{
		AlertID:       uuid.New().String(),
		RemoteAlertID: remote.ID,
		Severity:      severity,
		Status:        status,
		Title:         remote.Title(),
		Description:   remote.Message(),
		RawPayload:    rawPayload,
		TriggeredAt:   normalizer.ParseRemoteTime(remote.CreatedAt, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if device != nil {
		deviceID := device.DeviceID
		alert.DeviceID = &deviceID
	}

	// 创建时已处于 acknowledged/resolved 的，回填对应时间戳
	// 远程载荷没给就用当前时间
	if status == models.StatusAcknowledged || status == models.StatusResolved {
		if t := normalizer.ParseRemoteTimePtr(remote.AcknowledgedAt); t != nil {
			alert.AcknowledgedAt = t
		} else {
			alert.AcknowledgedAt = &now
		}
	}
	if status == models.StatusResolved {
		if t := normalizer.ParseRemoteTimePtr(remote.ResolvedAt); t != nil {
			alert.ResolvedAt = t
		} else {
			alert.ResolvedAt = &now
		}
	}

	inserted, err := u.alerts.Insert(ctx, alert)
	if err != nil {
		return false, err
	}
	if inserted {
		u.logger.Info("Created alert from remote",
			zap.String("alert_id", alert.AlertID),
			zap.String("remote_alert_id", alert.RemoteAlertID),
			zap.String("severity", string(severity)),
			zap.String("status", string(status)),
		)
	}

	return inserted, nil
}

// update 已存在，逐字段比对后按需更新
func (u *Upserter) update(
	ctx context.Context,
	existing *models.Alert,
	remote models.RemoteAlert,
	device *models.Device,
	severity models.Severity,
	status models.AlertStatus,
	rawPayload []byte,
) (UpsertResult, error) {
	now := time.Now()
	updates := map[string]interface{}{}

	// 回退迁移守卫：resolved/acknowledged 不会被远程重报拉回 open
	if models.IsRegression(existing.Status, status) {
		u.logger.Warn("Alert re-reported with earlier lifecycle status, keeping local status",
			zap.String("remote_alert_id", remote.ID),
			zap.String("local_status", string(existing.Status)),
			zap.String("remote_status", string(status)),
		)
		status = existing.Status
	}

	statusChanged := status != existing.Status
	severityChanged := severity != existing.Severity

	if severityChanged {
		updates["severity"] = string(severity)
	}
	if statusChanged {
		updates["status"] = string(status)

		// 时间戳只在首次进入对应状态时设置，设置后不再清除
		if status == models.StatusAcknowledged || status == models.StatusResolved {
			if existing.AcknowledgedAt == nil {
				if t := normalizer.ParseRemoteTimePtr(remote.AcknowledgedAt); t != nil {
					updates["acknowledged_at"] = *t
				} else {
					updates["acknowledged_at"] = now
				}
			}
		}
		if status == models.StatusResolved && existing.ResolvedAt == nil {
			if t := normalizer.ParseRemoteTimePtr(remote.ResolvedAt); t != nil {
				updates["resolved_at"] = *t
			} else {
				updates["resolved_at"] = now
			}
		}
	}

	// 设备归属修复：早先未解析的报警补上 device_id
	if existing.DeviceID == nil && device != nil {
		updates["device_id"] = device.DeviceID
	}

	// 有实质变化或远程载荷更丰富时覆盖存档的原始载荷
	if severityChanged || statusChanged || len(rawPayload) > len(existing.RawPayload) {
		updates["raw_payload"] = rawPayload
	}

	if len(updates) == 0 {
		return ResultUnchanged, nil
	}

	if err := u.alerts.Update(ctx, existing.AlertID, updates); err != nil {
		return ResultUnchanged, err
	}

	// 只在状态迁移时发领域事件，投递与去重由下游负责
	if statusChanged {
		event := models.AlertStatusChange{
			AlertID:       existing.AlertID,
			RemoteAlertID: existing.RemoteAlertID,
			DeviceID:      existing.DeviceID,
			OldStatus:     existing.Status,
			NewStatus:     status,
			Severity:      severity,
			OccurredAt:    now,
		}
		if event.DeviceID == nil && device != nil {
			deviceID := device.DeviceID
			event.DeviceID = &deviceID
		}
		if err := u.notifier.PublishStatusChange(ctx, event); err != nil {
			// 事件发布失败不影响已落库的更新
			u.logger.Error("Failed to publish status change event",
				zap.String("alert_id", existing.AlertID),
				zap.Error(err),
			)
		}
	}

	u.logger.Debug("Updated alert from remote",
		zap.String("alert_id", existing.AlertID),
		zap.String("remote_alert_id", existing.RemoteAlertID),
		zap.Bool("status_changed", statusChanged),
		zap.Bool("severity_changed", severityChanged),
	)

	return ResultUpdated, nil
}
