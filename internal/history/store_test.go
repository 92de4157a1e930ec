package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hvostenko/yaclimate/internal/core"
	"github.com/hvostenko/yaclimate/yandex"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func f(v float64) *float64 { return &v }

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		at := now.Add(time.Duration(i) * time.Minute)
		if err := store.Record("dev-1", "station", "Office", at, f(20+float64(i)), f(40), f(600)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	measurements, err := store.Recent("dev-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(measurements) != 2 {
		t.Fatalf("got %d measurements, want 2", len(measurements))
	}
	if measurements[0].Temperature == nil || *measurements[0].Temperature != 22 {
		t.Errorf("newest temperature = %v, want 22", measurements[0].Temperature)
	}
}

func TestRecordUpdatesDeviceMetadata(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	if err := store.Record("dev-1", "old name", "Hall", now, f(20), nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Record("dev-1", "new name", "Office", now.Add(time.Minute), f(21), nil, nil); err != nil {
		t.Fatal(err)
	}

	var devices []Device
	if err := store.db.Find(&devices).Error; err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d device rows, want 1", len(devices))
	}
	if devices[0].Name != "new name" || devices[0].Room != "Office" {
		t.Errorf("device = %q in %q, want renamed row", devices[0].Name, devices[0].Room)
	}
}

func TestPruneDeletesOldMeasurements(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	if err := store.Record("dev-1", "station", "", now.Add(-48*time.Hour), f(20), nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Record("dev-1", "station", "", now, f(21), nil, nil); err != nil {
		t.Fatal(err)
	}

	pruned, err := store.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d rows, want 1", pruned)
	}

	measurements, err := store.Recent("dev-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(measurements) != 1 {
		t.Errorf("got %d measurements after prune, want 1", len(measurements))
	}
}

func TestSinkSkipsUnavailableDevices(t *testing.T) {
	store := openTestStore(t)
	sink := NewSink(store, 24*time.Hour)

	snap := core.Snapshot{
		OK:      true,
		TakenAt: time.Now(),
		Devices: map[string]core.DeviceState{
			"dev-1": {
				Reading:   yandex.Reading{DeviceID: "dev-1", Name: "a", Temperature: f(21)},
				Available: true,
			},
			"dev-2": {
				Reading:   yandex.Reading{DeviceID: "dev-2", Name: "b", Temperature: f(22)},
				Available: false,
			},
		},
	}
	if err := sink.Publish(context.Background(), snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if _, err := store.Recent("dev-1", 1); err != nil {
		t.Errorf("dev-1 should be recorded: %v", err)
	}
	if _, err := store.Recent("dev-2", 1); err == nil {
		t.Error("dev-2 should not be recorded while unavailable")
	}
}
