// Package influx forwards climate readings to an InfluxDB v2 bucket for
// long-range dashboards beyond Prometheus retention.
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
)

const (
	measurementName = "climate"
	pingTimeout     = 5 * time.Second
)

// Writer is the slice of the InfluxDB blocking write API the sink needs.
type Writer interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes one point per available device per cycle.
type Sink struct {
	writer Writer
	close  func()

	mu        sync.Mutex
	healthMsg string

	pointsTotal prometheus.Counter
	errorsTotal prometheus.Counter
}

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Connect creates the client, verifies connectivity with a ping, and returns
// the sink.
func Connect(cfg Config) (*Sink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb server not healthy")
	}

	sink := NewSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
	sink.close = client.Close
	return sink, nil
}

func NewSink(writer Writer) *Sink {
	return &Sink{
		writer: writer,
		pointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yaclimate_influx_points_total",
			Help: "Points written to InfluxDB.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yaclimate_influx_errors_total",
			Help: "InfluxDB write failures.",
		}),
	}
}

func (s *Sink) Name() string { return "influx" }

func (s *Sink) Publish(ctx context.Context, snapshot core.Snapshot) error {
	var points []*write.Point
	for id, state := range snapshot.Devices {
		if !state.Available {
			continue
		}
		r := state.Reading

		fields := make(map[string]any, 3)
		if r.Temperature != nil {
			fields["temperature"] = *r.Temperature
		}
		if r.Humidity != nil {
			fields["humidity"] = *r.Humidity
		}
		if r.CO2 != nil {
			fields["co2"] = *r.CO2
		}
		if len(fields) == 0 {
			continue
		}

		points = append(points, write.NewPoint(
			measurementName,
			map[string]string{
				"device_id": id,
				"name":      r.Name,
				"room":      r.Room,
			},
			fields,
			snapshot.TakenAt,
		))
	}

	if len(points) == 0 {
		return nil
	}

	err := s.writer.WritePoint(ctx, points...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errorsTotal.Inc()
		s.healthMsg = err.Error()
		return fmt.Errorf("influxdb write: %w", err)
	}
	s.pointsTotal.Add(float64(len(points)))
	s.healthMsg = ""
	return nil
}

func (s *Sink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.pointsTotal, s.errorsTotal}
}

func (s *Sink) Dashboards() []core.Dashboard { return nil }

func (s *Sink) Health() core.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthMsg != "" {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (s *Sink) HealthMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthMsg
}

func (s *Sink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
