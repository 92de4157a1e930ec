package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DashboardsMap materializes dashboard content to URL paths.
func DashboardsMap(sinks []Sink, extra ...Dashboard) map[string][]byte {
	result := make(map[string][]byte)
	add := func(owner string, dash Dashboard) {
		result["/dashboards/"+owner+"/"+dash.Name+".json"] = dash.JSON
	}
	for _, sink := range sinks {
		for _, dash := range sink.Dashboards() {
			add(sink.Name(), dash)
		}
	}
	for _, dash := range extra {
		add("core", dash)
	}
	return result
}

// WriteDashboards writes dashboards to disk for Grafana provisioning.
func WriteDashboards(dir string, sinks []Sink, extra ...Dashboard) error {
	if dir == "" {
		return nil
	}

	write := func(owner string, dash Dashboard) error {
		ownerDir := filepath.Join(dir, owner)
		if err := os.MkdirAll(ownerDir, 0o755); err != nil {
			return fmt.Errorf("create dashboard dir: %w", err)
		}
		path := filepath.Join(ownerDir, dash.Name+".json")
		if err := os.WriteFile(path, dash.JSON, 0o644); err != nil {
			return fmt.Errorf("write dashboard %s: %w", path, err)
		}
		return nil
	}

	for _, sink := range sinks {
		for _, dash := range sink.Dashboards() {
			if err := write(sink.Name(), dash); err != nil {
				return err
			}
		}
	}
	for _, dash := range extra {
		if err := write("core", dash); err != nil {
			return err
		}
	}
	return nil
}
