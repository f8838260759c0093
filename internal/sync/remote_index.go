package sync

import (
	"context"
	"fmt"
	"sync"

	"domus-rmm-sync/internal/models"
)

// RemoteIndex 单次运行内的远程设备清单缓存
// 清单只在第一次需要时拉取一次；已绑定设备走快路径时完全不触发拉取
type RemoteIndex struct {
	api RemoteAPI

	mu      sync.Mutex
	fetched bool
	devices []models.RemoteDevice
}

// NewRemoteIndex 创建远程设备清单缓存
func NewRemoteIndex(api RemoteAPI) *RemoteIndex {
	return &RemoteIndex{api: api}
}

// List 获取远程设备清单（惰性拉取，结果在本次运行内复用）
func (ix *RemoteIndex) List(ctx context.Context) ([]models.RemoteDevice, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.fetched {
		devices, err := ix.api.ListDevices(ctx)
		if err != nil {
			// 拉取失败不缓存，下个调用方可以重试
			return nil, fmt.Errorf("%w: %v", models.ErrRemoteFetchFailed, err)
		}
		ix.devices = devices
		ix.fetched = true
	}

	return ix.devices, nil
}
