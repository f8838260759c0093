package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"domus-rmm-sync/internal/models"
)

// fakeRemoteAPI is an in-memory RemoteAPI with per-endpoint call counters.
type fakeRemoteAPI struct {
	mu sync.Mutex

	devices map[string]models.RemoteDevice // keyed by remote id
	alerts  map[string][]models.RemoteAlert
	health  map[string]models.RemoteHealth

	listCalls   int
	alertsCalls int
	healthCalls int

	listErr   error
	alertsErr error
	healthErr error
}

func newFakeRemoteAPI() *fakeRemoteAPI {
	return &fakeRemoteAPI{
		devices: map[string]models.RemoteDevice{},
		alerts:  map[string][]models.RemoteAlert{},
		health:  map[string]models.RemoteHealth{},
	}
}

func (f *fakeRemoteAPI) ListDevices(ctx context.Context) ([]models.RemoteDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []models.RemoteDevice{}
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRemoteAPI) GetDeviceAlerts(ctx context.Context, remoteDeviceID string) ([]models.RemoteAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alertsCalls++
	if f.alertsErr != nil {
		return nil, f.alertsErr
	}
	return f.alerts[remoteDeviceID], nil
}

func (f *fakeRemoteAPI) GetDeviceHealth(ctx context.Context, remoteDeviceID string) (*models.RemoteHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	h, ok := f.health[remoteDeviceID]
	if !ok {
		h = models.RemoteHealth{Status: "unknown"}
	}
	return &h, nil
}

// memDeviceStore is an in-memory DeviceStore.
type memDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device

	bindingWrites int
	healthWrites  int
	listErr       error
}

func newMemDeviceStore(devices ...*models.Device) *memDeviceStore {
	s := &memDeviceStore{devices: map[string]*models.Device{}}
	for _, d := range devices {
		s.devices[d.DeviceID] = d
	}
	return s
}

func (s *memDeviceStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device not found: device_id=%s", deviceID)
	}
	copied := *d
	return &copied, nil
}

func (s *memDeviceStore) ListMonitoredDevices(ctx context.Context) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []*models.Device{}
	for _, d := range s.devices {
		if d.MonitoringEnabled {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memDeviceStore) UpdateRemoteBinding(ctx context.Context, deviceID string, binding models.RemoteBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}
	d.RemoteDeviceID.String = binding.RemoteDeviceID
	d.RemoteDeviceID.Valid = true
	d.RemoteSystemName.String = binding.RemoteSystemName
	d.RemoteSystemName.Valid = binding.RemoteSystemName != ""
	d.RemoteHostname.String = binding.RemoteHostname
	d.RemoteHostname.Valid = binding.RemoteHostname != ""
	s.bindingWrites++
	return nil
}

func (s *memDeviceStore) MergeHealth(ctx context.Context, deviceID string, snapshot models.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}
	d.Status = snapshot.Status
	d.IssuesCount = snapshot.IssuesCount
	d.Online = snapshot.Online
	if snapshot.LastSeenAt != nil {
		d.LastSeenAt.Time = *snapshot.LastSeenAt
		d.LastSeenAt.Valid = true
	}
	s.healthWrites++
	return nil
}

func (s *memDeviceStore) CreateFromRemote(ctx context.Context, remote models.RemoteDevice) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := remote.SystemName
	if name == "" {
		name = remote.Hostname
	}
	if name == "" {
		name = remote.ID
	}
	d := &models.Device{
		DeviceID:          "auto-" + remote.ID,
		DeviceName:        name,
		Status:            "unknown",
		MonitoringEnabled: true,
	}
	d.RemoteDeviceID.String = remote.ID
	d.RemoteDeviceID.Valid = true
	d.RemoteSystemName.String = name
	d.RemoteSystemName.Valid = true
	s.devices[d.DeviceID] = d
	copied := *d
	return &copied, nil
}

// memAlertStore is an in-memory AlertStore keyed by remote_alert_id.
type memAlertStore struct {
	mu       sync.Mutex
	byRemote map[string]*models.Alert

	inserts int
	updates int
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{byRemote: map[string]*models.Alert{}}
}

func (s *memAlertStore) get(remoteAlertID string) *models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRemote[remoteAlertID]
}

func (s *memAlertStore) GetByRemoteAlertID(ctx context.Context, remoteAlertID string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byRemote[remoteAlertID]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (s *memAlertStore) Insert(ctx context.Context, alert *models.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRemote[alert.RemoteAlertID]; exists {
		return false, nil
	}
	copied := *alert
	s.byRemote[alert.RemoteAlertID] = &copied
	s.inserts++
	return true, nil
}

func (s *memAlertStore) Update(ctx context.Context, alertID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byRemote {
		if a.AlertID != alertID {
			continue
		}
		for field, value := range updates {
			switch field {
			case "severity":
				a.Severity = models.Severity(value.(string))
			case "status":
				a.Status = models.AlertStatus(value.(string))
			case "title":
				a.Title = value.(string)
			case "description":
				a.Description = value.(string)
			case "raw_payload":
				a.RawPayload = value.([]byte)
			case "device_id":
				id := value.(string)
				a.DeviceID = &id
			case "acknowledged_at":
				t := value.(time.Time)
				a.AcknowledgedAt = &t
			case "resolved_at":
				t := value.(time.Time)
				a.ResolvedAt = &t
			default:
				return fmt.Errorf("field '%s' is not allowed to update", field)
			}
		}
		a.UpdatedAt = time.Now()
		s.updates++
		return nil
	}
	return fmt.Errorf("alert not found: alert_id=%s", alertID)
}

func (s *memAlertStore) SweepResolved(ctx context.Context, retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var deleted int64
	for key, a := range s.byRemote {
		if a.Status == models.StatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(s.byRemote, key)
			deleted++
		}
	}
	return deleted, nil
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.AlertStatusChange
}

func (n *recordingNotifier) PublishStatusChange(ctx context.Context, event models.AlertStatusChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }
