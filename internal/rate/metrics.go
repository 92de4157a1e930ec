package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	blockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaclimate_rate_blocked_total",
			Help: "Requests blocked by the local rate guard",
		},
		[]string{"provider", "reason"},
	)
	cooldownActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yaclimate_rate_cooldown_active",
			Help: "1 while a server-imposed cooldown is in effect",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the rate guard.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{blockedTotal, cooldownActive}
}
