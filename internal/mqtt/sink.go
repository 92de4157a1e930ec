package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Sink publishes snapshots as Home Assistant discovery configs plus retained
// state and availability messages.
type Sink struct {
	client             Client
	topics             Topics
	includeLastUpdated bool

	mu sync.Mutex
	// announced maps device id to the label its discovery configs were
	// built with; a label change forces a re-announce.
	announced map[string]string
	healthMsg string

	publishedTotal *prometheus.CounterVec
	errorsTotal    prometheus.Counter
}

type SinkConfig struct {
	Topics             Topics
	IncludeLastUpdated bool
}

func NewSink(client Client, cfg SinkConfig) *Sink {
	return &Sink{
		client:             client,
		topics:             cfg.Topics,
		includeLastUpdated: cfg.IncludeLastUpdated,
		announced:          make(map[string]string),
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yaclimate_mqtt_published_total",
			Help: "MQTT messages published by type.",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yaclimate_mqtt_errors_total",
			Help: "MQTT publish failures.",
		}),
	}
}

// ResetAnnouncements forces discovery configs to be re-published on the next
// snapshot. Wire it to the client's OnConnect so a broker restart does not
// lose entity configs.
func (s *Sink) ResetAnnouncements() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = make(map[string]string)
}

func (s *Sink) Name() string { return "mqtt" }

func (s *Sink) Publish(_ context.Context, snapshot core.Snapshot) error {
	// Deterministic order keeps logs and broker traces readable.
	ids := make([]string, 0, len(snapshot.Devices))
	for id := range snapshot.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if err := s.publishDevice(id, snapshot.Devices[id]); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	if firstErr != nil {
		s.healthMsg = firstErr.Error()
	} else {
		s.healthMsg = ""
	}
	s.mu.Unlock()
	return firstErr
}

func (s *Sink) publishDevice(id string, state core.DeviceState) error {
	if err := s.announce(id, state); err != nil {
		return err
	}

	availability := payloadOffline
	if state.Available {
		availability = payloadOnline
	}
	if err := s.publish(s.topics.Availability(id), true, []byte(availability), "availability"); err != nil {
		return err
	}

	if !state.Available {
		// Keep the last retained state so HA shows stale values as
		// unavailable instead of unknown.
		return nil
	}

	payload, err := json.Marshal(state.Reading)
	if err != nil {
		return fmt.Errorf("marshal state for %s: %w", id, err)
	}
	return s.publish(s.topics.State(id), true, payload, "state")
}

func (s *Sink) announce(id string, state core.DeviceState) error {
	label := state.Reading.Label()
	s.mu.Lock()
	current := s.announced[id]
	s.mu.Unlock()
	if current == label {
		return nil
	}

	payloads, err := discoveryPayloads(s.topics, state.Reading, s.includeLastUpdated)
	if err != nil {
		return err
	}
	for topic, payload := range payloads {
		if err := s.publish(topic, true, payload, "discovery"); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.announced[id] = label
	s.mu.Unlock()
	return nil
}

func (s *Sink) publish(topic string, retained bool, payload []byte, kind string) error {
	if err := s.client.Publish(topic, retained, payload); err != nil {
		s.errorsTotal.Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	s.publishedTotal.WithLabelValues(kind).Inc()
	return nil
}

func (s *Sink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.publishedTotal, s.errorsTotal}
}

func (s *Sink) Dashboards() []core.Dashboard { return nil }

func (s *Sink) Health() core.HealthStatus {
	if !s.client.Connected() {
		return core.HealthError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthMsg != "" {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (s *Sink) HealthMessage() string {
	if !s.client.Connected() {
		return "broker connection lost"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthMsg
}

// Close marks every announced device offline and disconnects.
func (s *Sink) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.announced))
	for id := range s.announced {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.client.Publish(s.topics.Availability(id), true, []byte(payloadOffline))
	}
	s.client.Close()
	return nil
}
