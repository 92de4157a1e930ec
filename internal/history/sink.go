package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
)

// Sink records each cycle's available readings and prunes expired rows.
type Sink struct {
	store     *Store
	retention time.Duration

	mu        sync.Mutex
	healthMsg string
	lastPrune time.Time

	rowsTotal   prometheus.Counter
	prunedTotal prometheus.Counter
}

const pruneEvery = time.Hour

func NewSink(store *Store, retention time.Duration) *Sink {
	return &Sink{
		store:     store,
		retention: retention,
		rowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yaclimate_history_rows_total",
			Help: "Measurements persisted to the history database.",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yaclimate_history_pruned_total",
			Help: "Measurements deleted by retention pruning.",
		}),
	}
}

func (s *Sink) Name() string { return "history" }

func (s *Sink) Publish(_ context.Context, snapshot core.Snapshot) error {
	var firstErr error
	for id, state := range snapshot.Devices {
		if !state.Available {
			continue
		}
		r := state.Reading
		err := s.store.Record(id, r.Name, r.Room, snapshot.TakenAt, r.Temperature, r.Humidity, r.CO2)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.rowsTotal.Inc()
	}

	if err := s.maybePrune(snapshot.TakenAt); err != nil && firstErr == nil {
		firstErr = err
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

func (s *Sink) maybePrune(now time.Time) error {
	if s.retention <= 0 {
		return nil
	}
	s.mu.Lock()
	due := now.Sub(s.lastPrune) >= pruneEvery
	if due {
		s.lastPrune = now
	}
	s.mu.Unlock()
	if !due {
		return nil
	}

	pruned, err := s.store.Prune(now.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("retention prune: %w", err)
	}
	s.prunedTotal.Add(float64(pruned))
	return nil
}

func (s *Sink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.rowsTotal, s.prunedTotal}
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
	return s.store.Close()
}
