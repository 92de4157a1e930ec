package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from sink collectors plus any extras.
func MetricsRegistry(sinks []Sink, extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, sink := range sinks {
		for _, collector := range sink.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range extra {
		registry.MustRegister(collector)
	}

	return registry
}
