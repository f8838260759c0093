// Package rmm 远程设备监控（RMM）API 客户端。
// 本服务只依赖远程系统的三个只读接口：设备清单、设备报警列表、设备健康快照。
// 除 id 之外的字段都视为可选，缺失字段由 normalizer 统一补默认值。
package rmm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// Client RMM API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建 RMM 客户端
func NewClient(baseURL, apiKey string, timeout time.Duration, retryCount int, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// ListDevices 获取远程设备清单
func (c *Client) ListDevices(ctx context.Context) ([]models.RemoteDevice, error) {
	var devices []models.RemoteDevice

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&devices).
		Get("/devices")

	if err != nil {
		return nil, fmt.Errorf("failed to list remote devices: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote device list returned status %d", resp.StatusCode())
	}

	c.logger.Debug("Fetched remote device list",
		zap.Int("device_count", len(devices)),
	)

	return devices, nil
}

// GetDeviceAlerts 获取单个设备的报警列表
func (c *Client) GetDeviceAlerts(ctx context.Context, remoteDeviceID string) ([]models.RemoteAlert, error) {
	if remoteDeviceID == "" {
		return nil, fmt.Errorf("remote_device_id is required")
	}

	var alerts []models.RemoteAlert

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&alerts).
		SetPathParam("deviceId", remoteDeviceID).
		Get("/devices/{deviceId}/alerts")

	if err != nil {
		return nil, fmt.Errorf("failed to get alerts for device %s: %w", remoteDeviceID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote alerts for device %s returned status %d", remoteDeviceID, resp.StatusCode())
	}

	return alerts, nil
}

// GetDeviceHealth 获取单个设备的健康快照
func (c *Client) GetDeviceHealth(ctx context.Context, remoteDeviceID string) (*models.RemoteHealth, error) {
	if remoteDeviceID == "" {
		return nil, fmt.Errorf("remote_device_id is required")
	}

	var health models.RemoteHealth

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&health).
		SetPathParam("deviceId", remoteDeviceID).
		Get("/devices/{deviceId}/health")

	if err != nil {
		return nil, fmt.Errorf("failed to get health for device %s: %w", remoteDeviceID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote health for device %s returned status %d", remoteDeviceID, resp.StatusCode())
	}

	return &health, nil
}
