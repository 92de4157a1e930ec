package server

import (
	"encoding/json"
	"net/http"

	"github.com/hvostenko/yaclimate/internal/core"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SnapshotSource exposes the latest poll snapshot.
type SnapshotSource interface {
	Latest() (core.Snapshot, bool)
}

type sinkHealth struct {
	Status  core.HealthStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

type snapshotResponse struct {
	core.Snapshot
	Sinks map[string]sinkHealth `json:"sinks"`
}

// SnapshotHandler serves the latest snapshot plus per-sink health as JSON.
// Returns 503 until the first poll cycle has completed.
func SnapshotHandler(source SnapshotSource, sinks []core.Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		snapshot, ok := source.Latest()
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}

		resp := snapshotResponse{
			Snapshot: snapshot,
			Sinks:    make(map[string]sinkHealth, len(sinks)),
		}
		for _, sink := range sinks {
			resp.Sinks[sink.Name()] = sinkHealth{
				Status:  sink.Health(),
				Message: sink.HealthMessage(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// NewMux wires the full HTTP surface.
func NewMux(registry http.Handler, source SnapshotSource, sinks []core.Sink, dashboards map[string][]byte) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.Handle("/metrics", registry)
	mux.Handle("/devices.json", SnapshotHandler(source, sinks))
	mux.Handle("/dashboards/", DashboardsHandler(dashboards))
	return mux
}
