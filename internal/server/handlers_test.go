package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
	"github.com/hvostenko/yaclimate/yandex"
)

type staticSource struct {
	snapshot core.Snapshot
	set      bool
}

func (s staticSource) Latest() (core.Snapshot, bool) { return s.snapshot, s.set }

type healthSink struct {
	name    string
	status  core.HealthStatus
	message string
}

func (s healthSink) Name() string                            { return s.name }
func (s healthSink) Publish(context.Context, core.Snapshot) error { return nil }
func (s healthSink) Collectors() []prometheus.Collector      { return nil }
func (s healthSink) Dashboards() []core.Dashboard            { return nil }
func (s healthSink) Health() core.HealthStatus               { return s.status }
func (s healthSink) HealthMessage() string                   { return s.message }
func (s healthSink) Close() error                            { return nil }

func TestSnapshotHandlerBeforeFirstCycle(t *testing.T) {
	handler := SnapshotHandler(staticSource{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices.json", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSnapshotHandlerServesDevicesAndSinkHealth(t *testing.T) {
	temp := 21.5
	source := staticSource{
		set: true,
		snapshot: core.Snapshot{
			OK:      true,
			TakenAt: time.Now(),
			Devices: map[string]core.DeviceState{
				"dev-1": {
					Reading:   yandex.Reading{DeviceID: "dev-1", Name: "station", Temperature: &temp},
					Available: true,
				},
			},
		},
	}
	sinks := []core.Sink{healthSink{name: "mqtt", status: core.HealthDegraded, message: "reconnecting"}}

	rec := httptest.NewRecorder()
	SnapshotHandler(source, sinks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		OK      bool `json:"ok"`
		Devices map[string]struct {
			Available bool `json:"available"`
			Reading   struct {
				Temperature *float64 `json:"temperature"`
			} `json:"reading"`
		} `json:"devices"`
		Sinks map[string]struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"sinks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !body.OK {
		t.Error("ok should be true")
	}
	dev, present := body.Devices["dev-1"]
	if !present || !dev.Available {
		t.Errorf("dev-1 missing or unavailable: %+v", body.Devices)
	}
	if dev.Reading.Temperature == nil || *dev.Reading.Temperature != 21.5 {
		t.Errorf("temperature = %v, want 21.5", dev.Reading.Temperature)
	}
	if body.Sinks["mqtt"].Status != string(core.HealthDegraded) {
		t.Errorf("mqtt sink status = %q, want DEGRADED", body.Sinks["mqtt"].Status)
	}
}

func TestDashboardsHandler(t *testing.T) {
	dashboards := map[string][]byte{
		"/dashboards/core/climate.json": []byte(`{"title":"climate"}`),
	}
	handler := DashboardsHandler(dashboards)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/core/climate.json", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("known dashboard status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/missing.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown dashboard status = %d, want 404", rec.Code)
	}
}
