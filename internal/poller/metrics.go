package poller

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvostenko/yaclimate/internal/core"
)

var deviceLabels = []string{"device_id", "name", "room"}

type metrics struct {
	temperature   *prometheus.GaugeVec
	humidity      *prometheus.GaugeVec
	co2           *prometheus.GaugeVec
	lastUpdate    *prometheus.GaugeVec
	available     *prometheus.GaugeVec
	pollsTotal    *prometheus.CounterVec
	pollDuration  prometheus.Gauge
	devicesPolled prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yaclimate_temperature_celsius",
			Help: "Last reported temperature per device.",
		}, deviceLabels),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yaclimate_humidity_percent",
			Help: "Last reported relative humidity per device.",
		}, deviceLabels),
		co2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yaclimate_co2_ppm",
			Help: "Last reported CO2 concentration per device.",
		}, deviceLabels),
		lastUpdate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yaclimate_last_update_timestamp_seconds",
			Help: "Vendor-reported time of the newest property sample.",
		}, deviceLabels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yaclimate_device_available",
			Help: "1 when the last per-device fetch succeeded.",
		}, deviceLabels),
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yaclimate_polls_total",
			Help: "Poll cycles by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yaclimate_poll_duration_seconds",
			Help: "Duration of the most recent poll cycle.",
		}),
		devicesPolled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yaclimate_devices_polled",
			Help: "Climate modules targeted by the most recent cycle.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.temperature, m.humidity, m.co2, m.lastUpdate, m.available,
		m.pollsTotal, m.pollDuration, m.devicesPolled,
	}
}

// observe replaces all per-device series with the snapshot's state. Resetting
// first drops series for devices that left the account.
func (m *metrics) observe(snapshot core.Snapshot) {
	m.temperature.Reset()
	m.humidity.Reset()
	m.co2.Reset()
	m.lastUpdate.Reset()
	m.available.Reset()

	for id, state := range snapshot.Devices {
		r := state.Reading
		labels := prometheus.Labels{"device_id": id, "name": r.Name, "room": r.Room}

		if r.Temperature != nil {
			m.temperature.With(labels).Set(*r.Temperature)
		}
		if r.Humidity != nil {
			m.humidity.With(labels).Set(*r.Humidity)
		}
		if r.CO2 != nil {
			m.co2.With(labels).Set(*r.CO2)
		}
		if r.LastUpdated != nil {
			m.lastUpdate.With(labels).Set(float64(r.LastUpdated.Unix()))
		}

		availability := 0.0
		if state.Available {
			availability = 1.0
		}
		m.available.With(labels).Set(availability)
	}

	m.devicesPolled.Set(float64(len(snapshot.Devices)))
}
