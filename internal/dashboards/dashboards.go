// Package dashboards embeds the Grafana dashboards shipped with the daemon.
package dashboards

import (
	_ "embed"

	"github.com/hvostenko/yaclimate/internal/core"
)

//go:embed climate.json
var climateJSON []byte

// Climate is the stock overview dashboard over the poller's metrics.
func Climate() core.Dashboard {
	return core.Dashboard{Name: "climate", JSON: climateJSON}
}
