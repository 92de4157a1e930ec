package yandex

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "yaclimate_api_requests_total",
		Help: "Yandex IoT API requests by endpoint and outcome",
	},
	[]string{"endpoint", "code"},
)

// MetricsCollectors returns collectors for the API client.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{requestsTotal}
}

func observeRequest(path, code string) {
	endpoint := path
	if strings.HasPrefix(path, "/devices/") {
		endpoint = "/devices/{id}"
	}
	requestsTotal.WithLabelValues(endpoint, code).Inc()
}
