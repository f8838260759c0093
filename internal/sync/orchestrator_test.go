package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

func newOrchestratorForTest(
	api *fakeRemoteAPI,
	store *memDeviceStore,
	alerts *memAlertStore,
	workers int,
	autoCreate bool,
) *Orchestrator {
	upserter := NewUpserter(alerts, &recordingNotifier{}, zap.NewNop())
	resolver := NewResolver(store, true, zap.NewNop())
	graph := &staticTenantGraph{tenants: map[string][]string{}}
	syncer := NewDeviceSyncer(api, store, upserter, graph, resolver, zap.NewNop())
	return NewOrchestrator(store, alerts, syncer, api, workers, autoCreate, 30, zap.NewNop())
}

func TestRun_MixedBatch(t *testing.T) {
	api := newFakeRemoteAPI()
	api.alerts["rd-1"] = []models.RemoteAlert{
		{ID: "rm-1", Status: "active", SeverityField: "high"},
	}
	api.alerts["rd-2"] = []models.RemoteAlert{
		{ID: "rm-2", Status: "active", SeverityField: "low"},
		{ID: "rm-3", Status: "resolved", SeverityField: "low"},
	}

	// rd-1、rd-2 已绑定，dev-3 无法解析，只能跳过
	store := newMemDeviceStore(
		boundDevice("dev-1", "ALPHA", "rd-1"),
		boundDevice("dev-2", "BRAVO", "rd-2"),
		boundDevice("dev-3", "GHOST", ""),
	)
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 2, false)

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.DevicesProcessed)
	assert.Equal(t, 1, summary.DevicesSkipped)
	assert.Equal(t, 0, summary.DevicesFailed)
	assert.Equal(t, 3, summary.AlertsSynced)
	assert.Empty(t, summary.Errors)
}

func TestRun_UnresolvedDeviceDoesNotFailBatch(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore(boundDevice("dev-1", "GHOST", ""))
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DevicesSkipped)
	assert.Equal(t, 0, summary.DevicesFailed)
	assert.Equal(t, 0, summary.AlertsSynced)
}

func TestRun_PerDeviceFailureIsolation(t *testing.T) {
	api := newFakeRemoteAPI()
	api.alertsErr = errors.New("gateway timeout")

	store := newMemDeviceStore(
		boundDevice("dev-1", "ALPHA", "rd-1"),
		boundDevice("dev-2", "BRAVO", "rd-2"),
	)
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err, "per-device failures must not fail the run")
	assert.Equal(t, 2, summary.DevicesProcessed)
	assert.Equal(t, 2, summary.DevicesFailed)
	assert.Len(t, summary.Errors, 2)
	for _, devErr := range summary.Errors {
		assert.ErrorIs(t, devErr.Err, models.ErrRemoteFetchFailed)
	}
}

func TestRun_EnumerationFailureIsInfrastructure(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore()
	store.listErr = errors.New("connection refused")
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	_, err := orch.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, models.ErrInfrastructure)
}

func TestRun_SingleDeviceScope(t *testing.T) {
	api := newFakeRemoteAPI()
	api.alerts["rd-1"] = []models.RemoteAlert{
		{ID: "rm-1", Status: "active", SeverityField: "high"},
	}

	store := newMemDeviceStore(
		boundDevice("dev-1", "ALPHA", "rd-1"),
		boundDevice("dev-2", "BRAVO", "rd-2"),
	)
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 2, false)

	summary, err := orch.Run(context.Background(), RunOptions{DeviceID: "dev-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DevicesProcessed)
	assert.Equal(t, 1, summary.AlertsSynced)
	// dev-2 的报警端点没有被触达
	assert.Equal(t, 1, api.alertsCalls)
}

func TestRun_SingleDeviceScopeUnknownID(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore()
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	_, err := orch.Run(context.Background(), RunOptions{DeviceID: "no-such-device"})
	assert.ErrorIs(t, err, models.ErrInfrastructure)
}

func TestRun_CleanupSweepsExpiredResolvedAlerts(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore()
	alerts := newMemAlertStore()

	old := time.Now().AddDate(0, 0, -31)
	recent := time.Now().AddDate(0, 0, -29)
	openAlert := &models.Alert{AlertID: "a-1", RemoteAlertID: "rm-1", Status: models.StatusOpen}
	expired := &models.Alert{AlertID: "a-2", RemoteAlertID: "rm-2", Status: models.StatusResolved, ResolvedAt: &old}
	retained := &models.Alert{AlertID: "a-3", RemoteAlertID: "rm-3", Status: models.StatusResolved, ResolvedAt: &recent}
	for _, a := range []*models.Alert{openAlert, expired, retained} {
		_, err := alerts.Insert(context.Background(), a)
		require.NoError(t, err)
	}

	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	summary, err := orch.Run(context.Background(), RunOptions{Cleanup: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.AlertsSwept)

	// 未解决的和保留期内的都还在
	assert.NotNil(t, alerts.get("rm-1"))
	assert.Nil(t, alerts.get("rm-2"))
	assert.NotNil(t, alerts.get("rm-3"))
}

func TestRun_AutoCreateFromRemoteInventory(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-9"] = models.RemoteDevice{ID: "rd-9", SystemName: "NEWBOX"}
	api.alerts["rd-9"] = []models.RemoteAlert{
		{ID: "rm-9", Status: "active", SeverityField: "high"},
	}

	store := newMemDeviceStore()
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, true)

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DevicesProcessed)
	assert.Equal(t, 1, summary.AlertsSynced)
	assert.NotNil(t, alerts.get("rm-9"))

	// 建档后的设备带着远程绑定，下个周期走快路径
	created, err := store.GetDevice(context.Background(), "auto-rd-9")
	require.NoError(t, err)
	assert.True(t, created.HasRemoteIdentity())
}

func TestRun_AutoCreateSkipsAlreadyBoundRemotes(t *testing.T) {
	api := newFakeRemoteAPI()
	api.devices["rd-1"] = models.RemoteDevice{ID: "rd-1", SystemName: "ALPHA"}

	store := newMemDeviceStore(boundDevice("dev-1", "ALPHA", "rd-1"))
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, true)

	summary, err := orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DevicesProcessed)
	_, err = store.GetDevice(context.Background(), "auto-rd-1")
	assert.Error(t, err, "already bound remote must not be re-created")
}

func TestRun_CancelledContextSkipsRemainingDevices(t *testing.T) {
	api := newFakeRemoteAPI()
	store := newMemDeviceStore(
		boundDevice("dev-1", "ALPHA", "rd-1"),
		boundDevice("dev-2", "BRAVO", "rd-2"),
	)
	alerts := newMemAlertStore()
	orch := newOrchestratorForTest(api, store, alerts, 1, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := orch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DevicesFailed)
	assert.Equal(t, 0, summary.AlertsSynced)
}
