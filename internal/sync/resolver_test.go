package sync

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

func boundDevice(deviceID, name, remoteID string) *models.Device {
	d := &models.Device{
		DeviceID:          deviceID,
		DeviceName:        name,
		MonitoringEnabled: true,
	}
	if remoteID != "" {
		d.RemoteDeviceID = sql.NullString{String: remoteID, Valid: true}
		d.RemoteSystemName = sql.NullString{String: name, Valid: true}
	}
	return d
}

func TestResolver_FastPathDoesNotConsultRemoteList(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore()
	resolver := NewResolver(store, true, zap.NewNop())

	device := boundDevice("dev-1", "JULIOPC", "rd-1")
	index := NewRemoteIndex(api)

	remoteID, err := resolver.Resolve(context.Background(), device, index, false)
	require.NoError(t, err)
	assert.Equal(t, "rd-1", remoteID)

	// 已绑定设备不触发远程清单拉取
	assert.Equal(t, 0, api.listCalls)
	assert.Equal(t, 0, store.bindingWrites)
}

func TestResolver_ExactMatchPersistsBinding(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-1"] = models.RemoteDevice{
		ID:         "rd-1",
		SystemName: "JULIOPC",
		Hostname:   "juliopc.local",
	}

	device := boundDevice("dev-1", "JULIOPC", "")
	store := newMemDeviceStore(device)
	resolver := NewResolver(store, true, zap.NewNop())

	remoteID, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), false)
	require.NoError(t, err)
	assert.Equal(t, "rd-1", remoteID)

	// 发现的绑定已回写（自愈），下个周期走快路径
	assert.Equal(t, 1, store.bindingWrites)
	persisted, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "rd-1", persisted.RemoteDeviceID.String)
	assert.Equal(t, "JULIOPC", persisted.RemoteSystemName.String)
	assert.Equal(t, "juliopc.local", persisted.RemoteHostname.String)
}

func TestResolver_ExactMatchIsCaseSensitive(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-1"] = models.RemoteDevice{ID: "rd-1", SystemName: "juliopc"}

	device := boundDevice("dev-1", "JULIOPC", "")
	store := newMemDeviceStore(device)

	// 模糊匹配关闭时大小写不同就解析失败
	resolver := NewResolver(store, false, zap.NewNop())
	_, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), false)
	assert.ErrorIs(t, err, models.ErrDeviceNotResolved)

	// 模糊匹配开启时按子串命中
	resolver = NewResolver(store, true, zap.NewNop())
	remoteID, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), false)
	require.NoError(t, err)
	assert.Equal(t, "rd-1", remoteID)
}

func TestResolver_FuzzySubstringBothDirections(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-9"] = models.RemoteDevice{ID: "rd-9", SystemName: "OFFICE-JULIOPC-01"}

	device := boundDevice("dev-1", "JulioPC", "")
	store := newMemDeviceStore(device)
	resolver := NewResolver(store, true, zap.NewNop())

	remoteID, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), false)
	require.NoError(t, err)
	assert.Equal(t, "rd-9", remoteID)
}

func TestResolver_NotResolved(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-1"] = models.RemoteDevice{ID: "rd-1", SystemName: "SOMETHING-ELSE"}

	device := boundDevice("dev-1", "JULIOPC", "")
	store := newMemDeviceStore(device)
	resolver := NewResolver(store, true, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), false)
	assert.ErrorIs(t, err, models.ErrDeviceNotResolved)
	assert.Equal(t, 0, store.bindingWrites)
}

func TestResolver_ForceRebindsBoundDevice(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-2"] = models.RemoteDevice{ID: "rd-2", SystemName: "JULIOPC"}

	// 设备带着过期绑定 rd-1，force 后重新匹配到 rd-2
	device := boundDevice("dev-1", "JULIOPC", "rd-1")
	store := newMemDeviceStore(device)
	resolver := NewResolver(store, true, zap.NewNop())

	remoteID, err := resolver.Resolve(context.Background(), device, NewRemoteIndex(api), true)
	require.NoError(t, err)
	assert.Equal(t, "rd-2", remoteID)
	assert.Equal(t, 1, api.listCalls)
	assert.Equal(t, 1, store.bindingWrites)
}

func TestRemoteIndex_FetchesOnce(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-1"] = models.RemoteDevice{ID: "rd-1", SystemName: "A"}

	index := NewRemoteIndex(api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		devices, err := index.List(ctx)
		require.NoError(t, err)
		assert.Len(t, devices, 1)
	}

	// 清单在单次运行内只拉取一次
	assert.Equal(t, 1, api.listCalls)
}
