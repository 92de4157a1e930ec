package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/yandex"
)

// HealthStatus represents sink health states for the snapshot endpoint.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by a component.
type Dashboard struct {
	Name string
	JSON []byte
}

// DeviceState is one device's outcome for a poll cycle. Reading holds the
// last successfully mapped values even while the device is unavailable.
type DeviceState struct {
	Reading   yandex.Reading `json:"reading"`
	Available bool           `json:"available"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Snapshot is the result of one poll cycle, fanned out to every sink.
// OK is false when discovery itself failed.
type Snapshot struct {
	Devices map[string]DeviceState `json:"devices"`
	OK      bool                   `json:"ok"`
	TakenAt time.Time              `json:"taken_at"`
}

// Sink receives each poll snapshot. Implementations must tolerate repeated
// snapshots for the same cycle outcome and report their own health.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snapshot Snapshot) error
	Collectors() []prometheus.Collector
	Dashboards() []Dashboard
	Health() HealthStatus
	HealthMessage() string
	Close() error
}
