package core

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type stubSink struct {
	name       string
	dashboards []Dashboard
}

func (s stubSink) Name() string                           { return s.name }
func (s stubSink) Publish(context.Context, Snapshot) error { return nil }
func (s stubSink) Collectors() []prometheus.Collector     { return nil }
func (s stubSink) Dashboards() []Dashboard                { return s.dashboards }
func (s stubSink) Health() HealthStatus                   { return HealthHealthy }
func (s stubSink) HealthMessage() string                  { return "" }
func (s stubSink) Close() error                           { return nil }

func TestValidateSinks(t *testing.T) {
	cases := []struct {
		name    string
		sinks   []Sink
		wantErr bool
	}{
		{"ok", []Sink{stubSink{name: "mqtt"}, stubSink{name: "history"}}, false},
		{"empty name", []Sink{stubSink{}}, true},
		{"bad name", []Sink{stubSink{name: "MQTT-sink"}}, true},
		{"duplicate", []Sink{stubSink{name: "mqtt"}, stubSink{name: "mqtt"}}, true},
	}

	for _, tc := range cases {
		err := ValidateSinks(tc.sinks)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%t", tc.name, err, tc.wantErr)
		}
	}
}

func TestDashboardsMap(t *testing.T) {
	sink := stubSink{
		name:       "mqtt",
		dashboards: []Dashboard{{Name: "overview", JSON: []byte("{}")}},
	}

	dashboards := DashboardsMap([]Sink{sink}, Dashboard{Name: "climate", JSON: []byte("{}")})

	if _, ok := dashboards["/dashboards/mqtt/overview.json"]; !ok {
		t.Fatalf("missing sink dashboard path, got %v", keys(dashboards))
	}
	if _, ok := dashboards["/dashboards/core/climate.json"]; !ok {
		t.Fatalf("missing core dashboard path, got %v", keys(dashboards))
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
