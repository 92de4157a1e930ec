package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
	"github.com/hvostenko/yaclimate/yandex"
)

type fakeFetcher struct {
	mu        sync.Mutex
	info      yandex.UserInfo
	infoErr   error
	devices   map[string]yandex.Device
	deviceErr map[string]error
	fetched   []string
}

func (f *fakeFetcher) UserInfo(context.Context) (yandex.UserInfo, error) {
	if f.infoErr != nil {
		return yandex.UserInfo{}, f.infoErr
	}
	return f.info, nil
}

func (f *fakeFetcher) Device(_ context.Context, id string) (yandex.Device, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()

	if err, ok := f.deviceErr[id]; ok {
		return yandex.Device{}, err
	}
	d, ok := f.devices[id]
	if !ok {
		return yandex.Device{}, fmt.Errorf("unknown device %s", id)
	}
	return d, nil
}

func climateDevice(id, name, roomID string, temp, hum, co2 float64) yandex.Device {
	prop := func(instance string, value float64) yandex.Property {
		return yandex.Property{
			Type:       "devices.properties.float",
			Parameters: yandex.PropertyParameters{Instance: instance},
			State:      &yandex.PropertyState{Instance: instance, Value: value},
		}
	}
	return yandex.Device{
		ID:   id,
		Name: name,
		Room: roomID,
		Type: "devices.types.other",
		Properties: []yandex.Property{
			prop(yandex.InstanceTemperature, temp),
			prop(yandex.InstanceHumidity, hum),
			prop(yandex.InstanceCO2, co2),
		},
	}
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []core.Snapshot
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Publish(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}
func (s *recordingSink) Collectors() []prometheus.Collector { return nil }
func (s *recordingSink) Dashboards() []core.Dashboard       { return nil }
func (s *recordingSink) Health() core.HealthStatus          { return core.HealthHealthy }
func (s *recordingSink) HealthMessage() string              { return "" }
func (s *recordingSink) Close() error                       { return nil }

func testPoller(fetcher Fetcher, sinks ...core.Sink) (*Poller, *Store) {
	store := NewStore()
	return New(fetcher, sinks, store, Options{}), store
}

func TestRunOncePerDeviceFailureIsIsolated(t *testing.T) {
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status: "ok",
			Devices: []yandex.Device{
				climateDevice("dev-1", "station a", "room-1", 21.5, 45, 600),
				climateDevice("dev-2", "station b", "room-1", 22.0, 50, 700),
			},
			Rooms: []yandex.Room{{ID: "room-1", Name: "Bedroom"}},
		},
		devices: map[string]yandex.Device{
			"dev-1": climateDevice("dev-1", "station a", "room-1", 21.5, 45, 600),
		},
		// 403 is non-retryable, so the test does not wait on backoff.
		deviceErr: map[string]error{
			"dev-2": yandex.StatusError{Status: 403, Body: "missing scope"},
		},
	}

	p, _ := testPoller(fetcher)
	snap := p.RunOnce(context.Background())

	if !snap.OK {
		t.Fatal("snapshot should be OK when discovery succeeds")
	}
	ok1 := snap.Devices["dev-1"]
	if !ok1.Available {
		t.Error("dev-1 should be available")
	}
	if ok1.Reading.Room != "Bedroom" {
		t.Errorf("dev-1 room = %q, want Bedroom", ok1.Reading.Room)
	}
	if ok1.Reading.Temperature == nil || *ok1.Reading.Temperature != 21.5 {
		t.Errorf("dev-1 temperature = %v, want 21.5", ok1.Reading.Temperature)
	}

	failed, present := snap.Devices["dev-2"]
	if !present {
		t.Fatal("dev-2 should still appear in the snapshot")
	}
	if failed.Available {
		t.Error("dev-2 should be unavailable")
	}
}

func TestRunOnceDiscoveryFailureRetainsReadings(t *testing.T) {
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status:  "ok",
			Devices: []yandex.Device{climateDevice("dev-1", "station", "room-1", 20, 40, 500)},
			Rooms:   []yandex.Room{{ID: "room-1", Name: "Office"}},
		},
		devices: map[string]yandex.Device{
			"dev-1": climateDevice("dev-1", "station", "room-1", 20, 40, 500),
		},
	}

	p, store := testPoller(fetcher)
	first := p.RunOnce(context.Background())
	if !first.Devices["dev-1"].Available {
		t.Fatal("setup: first cycle should succeed")
	}

	fetcher.infoErr = fmt.Errorf("dial tcp: connection refused")
	second := p.RunOnce(context.Background())

	if second.OK {
		t.Error("snapshot should not be OK after discovery failure")
	}
	state, present := second.Devices["dev-1"]
	if !present {
		t.Fatal("previously seen device should be retained")
	}
	if state.Available {
		t.Error("retained device should be unavailable")
	}
	if state.Reading.CO2 == nil || *state.Reading.CO2 != 500 {
		t.Errorf("retained CO2 = %v, want last known 500", state.Reading.CO2)
	}

	latest, ok := store.Latest()
	if !ok || latest.OK {
		t.Error("store should hold the degraded snapshot")
	}
}

func TestRunOncePinnedDeviceIDs(t *testing.T) {
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status: "ok",
			Devices: []yandex.Device{
				climateDevice("dev-1", "a", "", 20, 40, 500),
				climateDevice("dev-2", "b", "", 21, 41, 501),
			},
		},
		devices: map[string]yandex.Device{
			"dev-2": climateDevice("dev-2", "b", "", 21, 41, 501),
		},
	}

	store := NewStore()
	p := New(fetcher, nil, store, Options{DeviceIDs: []string{"dev-2"}})
	snap := p.RunOnce(context.Background())

	if len(snap.Devices) != 1 {
		t.Fatalf("snapshot has %d devices, want 1", len(snap.Devices))
	}
	if _, present := snap.Devices["dev-2"]; !present {
		t.Error("pinned device dev-2 missing")
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "dev-2" {
		t.Errorf("fetched %v, want only dev-2", fetcher.fetched)
	}
}

func TestRunOnceSkipsNonClimateDevices(t *testing.T) {
	lamp := yandex.Device{ID: "lamp-1", Name: "lamp", Type: "devices.types.light"}
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status: "ok",
			Devices: []yandex.Device{
				lamp,
				climateDevice("dev-1", "station", "", 20, 40, 500),
			},
		},
		devices: map[string]yandex.Device{
			"dev-1": climateDevice("dev-1", "station", "", 20, 40, 500),
		},
	}

	p, _ := testPoller(fetcher)
	snap := p.RunOnce(context.Background())

	if _, present := snap.Devices["lamp-1"]; present {
		t.Error("non-climate device should not be polled")
	}
	if _, present := snap.Devices["dev-1"]; !present {
		t.Error("climate module should be polled")
	}
}

func TestRunOnceDiscoversRoomListedDevices(t *testing.T) {
	// The flat device list can omit devices that a room references, so
	// room-sourced ids must be fetched and filtered by their state.
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status: "ok",
			Rooms: []yandex.Room{
				{ID: "room-1", Name: "Bedroom", Devices: []string{"dev-1", "lamp-1", "ghost-1"}},
			},
		},
		devices: map[string]yandex.Device{
			"dev-1":  climateDevice("dev-1", "station", "room-1", 21.5, 45, 600),
			"lamp-1": {ID: "lamp-1", Name: "lamp", Type: "devices.types.light"},
		},
		deviceErr: map[string]error{
			"ghost-1": yandex.StatusError{Status: 403, Body: "missing scope"},
		},
	}

	p, _ := testPoller(fetcher)
	snap := p.RunOnce(context.Background())

	state, present := snap.Devices["dev-1"]
	if !present || !state.Available {
		t.Fatalf("room-sourced climate module missing from snapshot: %v", snap.Devices)
	}
	if state.Reading.Room != "Bedroom" {
		t.Errorf("room = %q, want Bedroom", state.Reading.Room)
	}
	if _, present := snap.Devices["lamp-1"]; present {
		t.Error("room-sourced non-climate device should be excluded after its state is fetched")
	}
	if _, present := snap.Devices["ghost-1"]; present {
		t.Error("room-sourced id that never fetched should stay out of the snapshot")
	}
}

func TestRunOncePrefersFlatListProperties(t *testing.T) {
	// Devices present in the flat list are filtered there; only one state
	// fetch should happen, for the climate module.
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status: "ok",
			Devices: []yandex.Device{
				climateDevice("dev-1", "station", "room-1", 21.5, 45, 600),
				{ID: "lamp-1", Name: "lamp", Type: "devices.types.light"},
			},
			Rooms: []yandex.Room{
				{ID: "room-1", Name: "Bedroom", Devices: []string{"dev-1", "lamp-1"}},
			},
		},
		devices: map[string]yandex.Device{
			"dev-1": climateDevice("dev-1", "station", "room-1", 21.5, 45, 600),
		},
	}

	p, _ := testPoller(fetcher)
	snap := p.RunOnce(context.Background())

	if len(snap.Devices) != 1 {
		t.Fatalf("snapshot has %d devices, want 1", len(snap.Devices))
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "dev-1" {
		t.Errorf("fetched %v, want only dev-1", fetcher.fetched)
	}
}

func TestRunOncePublishesToSinks(t *testing.T) {
	fetcher := &fakeFetcher{
		info: yandex.UserInfo{
			Status:  "ok",
			Devices: []yandex.Device{climateDevice("dev-1", "station", "", 20, 40, 500)},
		},
		devices: map[string]yandex.Device{
			"dev-1": climateDevice("dev-1", "station", "", 20, 40, 500),
		},
	}

	sink := &recordingSink{}
	p, _ := testPoller(fetcher, sink)
	p.RunOnce(context.Background())

	if len(sink.snapshots) != 1 {
		t.Fatalf("sink received %d snapshots, want 1", len(sink.snapshots))
	}
	if !sink.snapshots[0].OK {
		t.Error("published snapshot should be OK")
	}
}
