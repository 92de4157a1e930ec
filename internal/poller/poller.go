// Package poller runs the periodic Yandex polling cycle and fans results
// out to sinks: discovery via user/info, then one state fetch per device.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
	"github.com/hvostenko/yaclimate/yandex"
)

const deviceFetchRetries = 2

// Fetcher is the slice of the API client the poller needs.
type Fetcher interface {
	UserInfo(ctx context.Context) (yandex.UserInfo, error)
	Device(ctx context.Context, deviceID string) (yandex.Device, error)
}

type Options struct {
	// Interval between cycle starts.
	Interval time.Duration
	// DeviceIDs pins the poll targets. Empty means poll every climate
	// module found during discovery.
	DeviceIDs []string
	Logger    *slog.Logger
}

type Poller struct {
	fetcher   Fetcher
	sinks     []core.Sink
	store     *Store
	metrics   *metrics
	interval  time.Duration
	deviceIDs []string
	logger    *slog.Logger
}

func New(fetcher Fetcher, sinks []core.Sink, store *Store, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher:   fetcher,
		sinks:     sinks,
		store:     store,
		metrics:   newMetrics(),
		interval:  opts.Interval,
		deviceIDs: opts.DeviceIDs,
		logger:    logger.With("component", "poller"),
	}
}

func (p *Poller) Collectors() []prometheus.Collector {
	return p.metrics.collectors()
}

// Run polls immediately, then on every interval tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single cycle and publishes the snapshot.
func (p *Poller) RunOnce(ctx context.Context) core.Snapshot {
	start := time.Now()
	snapshot := p.cycle(ctx)
	p.metrics.pollDuration.Set(time.Since(start).Seconds())

	result := "success"
	if !snapshot.OK {
		result = "discovery_failure"
	}
	p.metrics.pollsTotal.WithLabelValues(result).Inc()
	p.metrics.observe(snapshot)

	p.store.Set(snapshot)
	p.publish(ctx, snapshot)
	return snapshot
}

func (p *Poller) cycle(ctx context.Context) core.Snapshot {
	now := time.Now()

	info, err := p.fetcher.UserInfo(ctx)
	if err != nil {
		p.logger.Error("discovery failed", "error", err)
		return p.degradedSnapshot(now)
	}

	rooms := info.RoomNames()
	targets := p.targets(info)

	states := make(map[string]core.DeviceState, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt pollTarget) {
			defer wg.Done()
			state, keep := p.fetchDevice(ctx, tgt, rooms, now)
			if !keep {
				return
			}
			mu.Lock()
			states[tgt.id] = state
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	return core.Snapshot{Devices: states, OK: true, TakenAt: now}
}

// pollTarget is one device to fetch this cycle. probe marks ids that only
// appeared in a room's device array: the flat list carries no properties for
// them, so the fetched state decides whether they are climate modules.
type pollTarget struct {
	id    string
	probe bool
}

// targets picks the devices to poll: the configured pin list, or every
// climate module visible in the account. Ids are collected from the flat
// device list plus each room's device array, since rooms can reference
// devices the flat list omits.
func (p *Poller) targets(info yandex.UserInfo) []pollTarget {
	if len(p.deviceIDs) > 0 {
		targets := make([]pollTarget, 0, len(p.deviceIDs))
		for _, id := range p.deviceIDs {
			targets = append(targets, pollTarget{id: id})
		}
		return targets
	}

	flat := make(map[string]yandex.Device, len(info.Devices))
	for _, d := range info.Devices {
		flat[d.ID] = d
	}

	var targets []pollTarget
	for _, id := range info.DeviceIDs() {
		device, listed := flat[id]
		switch {
		case !listed:
			targets = append(targets, pollTarget{id: id, probe: true})
		case yandex.IsClimateModule(device):
			targets = append(targets, pollTarget{id: id})
		}
	}
	return targets
}

func (p *Poller) fetchDevice(ctx context.Context, tgt pollTarget, rooms map[string]string, now time.Time) (core.DeviceState, bool) {
	var device yandex.Device

	operation := func() error {
		var err error
		device, err = p.fetcher.Device(ctx, tgt.id)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), deviceFetchRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		p.logger.Warn("device fetch failed", "device_id", tgt.id, "error", err)
		if tgt.probe {
			// An unconfirmed room-sourced id stays out of the snapshot
			// unless an earlier cycle already proved it is a climate
			// module.
			if prev, ok := p.previousState(tgt.id); ok {
				prev.Available = false
				return prev, true
			}
			return core.DeviceState{}, false
		}
		return p.staleState(tgt.id), true
	}

	if tgt.probe && !yandex.IsClimateModule(device) {
		return core.DeviceState{}, false
	}

	roomName := rooms[device.Room]
	return core.DeviceState{
		Reading:   yandex.NewReading(device, roomName),
		Available: true,
		FetchedAt: now,
	}, true
}

func (p *Poller) previousState(id string) (core.DeviceState, bool) {
	prev, ok := p.store.Latest()
	if !ok {
		return core.DeviceState{}, false
	}
	state, ok := prev.Devices[id]
	return state, ok
}

// staleState carries the previous reading forward with availability cleared,
// so sinks keep showing the last known values.
func (p *Poller) staleState(id string) core.DeviceState {
	if state, ok := p.previousState(id); ok {
		state.Available = false
		return state
	}
	return core.DeviceState{
		Reading:   yandex.Reading{DeviceID: id, Name: id},
		Available: false,
	}
}

// degradedSnapshot marks every previously known device unavailable while
// retaining its last reading.
func (p *Poller) degradedSnapshot(now time.Time) core.Snapshot {
	states := make(map[string]core.DeviceState)
	if prev, ok := p.store.Latest(); ok {
		for id, state := range prev.Devices {
			state.Available = false
			states[id] = state
		}
	}
	return core.Snapshot{Devices: states, OK: false, TakenAt: now}
}

func (p *Poller) publish(ctx context.Context, snapshot core.Snapshot) {
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, snapshot); err != nil {
			p.logger.Error("sink publish failed", "sink", sink.Name(), "error", err)
		}
	}
}

// retryable reports whether a fetch error is worth retrying. Auth failures
// are not: the token will not fix itself between attempts.
func retryable(err error) bool {
	var statusErr yandex.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status != 401 && statusErr.Status != 403
	}
	return true
}
