package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
yandex:
  token: "y0_secret"
mqtt:
  broker: "tcp://localhost:1883"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Core.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("http_addr = %q, want default", cfg.Core.HTTPAddr)
	}
	if cfg.Core.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Errorf("poll_interval_seconds = %d, want %d", cfg.Core.PollIntervalSeconds, DefaultPollIntervalSeconds)
	}
	if cfg.MQTT.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Errorf("discovery_prefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, DefaultDiscoveryPrefix)
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("topic_prefix = %q, want %q", cfg.MQTT.TopicPrefix, DefaultTopicPrefix)
	}
	if !cfg.Yandex.LastUpdatedEnabled() {
		t.Error("last_updated should default to enabled")
	}
}

func TestLoadRejectsPollIntervalOutOfRange(t *testing.T) {
	for _, interval := range []int{10, 7200} {
		path := writeConfig(t, `
schema_version: 1
core:
  poll_interval_seconds: `+strconv.Itoa(interval)+`
yandex:
  token: "y0_secret"
`)
		if _, err := Load(path); err == nil {
			t.Errorf("interval %d: expected error", interval)
		}
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without token or bootstrap")
	}
}

func TestLoadRejectsTokenAndBootstrap(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
yandex:
  token: "y0_secret"
  bootstrap_file: "/etc/yaclimate/bootstrap.json"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for token + bootstrap_file")
	}
}

func TestRawTokenFromFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("  y0_file_token\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := YandexConfig{TokenFile: tokenPath}
	token, err := cfg.RawToken()
	if err != nil {
		t.Fatalf("RawToken: %v", err)
	}
	if token != "y0_file_token" {
		t.Errorf("token = %q, want trimmed file contents", token)
	}
}

func TestValidateInfluxRequiresFields(t *testing.T) {
	path := writeConfig(t, `
schema_version: 1
yandex:
  token: "y0_secret"
influx:
  url: "http://localhost:8086"
  org: "home"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for incomplete influx section")
	}
}
