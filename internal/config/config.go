package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion = 1
	DefaultPath   = "/etc/yaclimate/config.yaml"

	DefaultHTTPAddr            = "0.0.0.0:8080"
	DefaultPollIntervalSeconds = 120
	DefaultStatePath           = "/var/lib/yaclimate/oauth/yandex.json"
	DefaultOAuthPrefix         = "yaclimate/oauth"
	DefaultOAuthRefreshSeconds = 600
	DefaultRatePerMinute       = 60
	DefaultDiscoveryPrefix     = "homeassistant"
	DefaultTopicPrefix         = "yaclimate"
	DefaultMQTTClientID        = "yaclimate"
	DefaultRetentionDays       = 30

	// Poll interval bounds match the vendor-recommended polling window.
	MinPollIntervalSeconds = 30
	MaxPollIntervalSeconds = 3600
)

type Config struct {
	SchemaVersion int            `yaml:"schema_version"`
	Core          CoreConfig     `yaml:"core"`
	Yandex        YandexConfig   `yaml:"yandex"`
	OAuth         *OAuthConfig   `yaml:"oauth"`
	Rate          RateConfig     `yaml:"rate"`
	MQTT          *MQTTConfig    `yaml:"mqtt"`
	Influx        *InfluxConfig  `yaml:"influx"`
	History       *HistoryConfig `yaml:"history"`
}

type CoreConfig struct {
	HTTPAddr            string `yaml:"http_addr"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	DashboardDir        string `yaml:"dashboard_dir"`
}

func (c CoreConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

type YandexConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Token             string   `yaml:"token"`
	TokenFile         string   `yaml:"token_file"`
	BootstrapFile     string   `yaml:"bootstrap_file"`
	StatePath         string   `yaml:"state_path"`
	DeviceIDs         []string `yaml:"device_ids"`
	EnableLastUpdated *bool    `yaml:"enable_last_updated"`
}

// RawToken resolves the static token from the inline value or token file.
func (c YandexConfig) RawToken() (string, error) {
	if strings.TrimSpace(c.Token) != "" {
		return c.Token, nil
	}
	if c.TokenFile == "" {
		return "", fmt.Errorf("no token configured")
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// StaticMode reports whether the pasted-token mode is configured, as opposed
// to the OAuth refresh flow.
func (c YandexConfig) StaticMode() bool {
	return strings.TrimSpace(c.Token) != "" || c.TokenFile != ""
}

func (c YandexConfig) LastUpdatedEnabled() bool {
	return c.EnableLastUpdated == nil || *c.EnableLastUpdated
}

type OAuthConfig struct {
	BlobEndpoint           string `yaml:"blob_endpoint"`
	BlobBucket             string `yaml:"blob_bucket"`
	BlobPrefix             string `yaml:"blob_prefix"`
	BlobRegion             string `yaml:"blob_region"`
	BlobAccessKeyFile      string `yaml:"blob_access_key_file"`
	BlobSecretKeyFile      string `yaml:"blob_secret_key_file"`
	RefreshEnabled         *bool  `yaml:"refresh_enabled"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
}

func (c *OAuthConfig) RefreshInterval() time.Duration {
	if c == nil {
		return time.Duration(DefaultOAuthRefreshSeconds) * time.Second
	}
	if c.RefreshEnabled != nil && !*c.RefreshEnabled {
		return 0
	}
	if c.RefreshIntervalSeconds > 0 {
		return time.Duration(c.RefreshIntervalSeconds) * time.Second
	}
	return time.Duration(DefaultOAuthRefreshSeconds) * time.Second
}

func (c *OAuthConfig) BlobConfigured() bool {
	return c != nil && c.BlobEndpoint != "" && c.BlobBucket != ""
}

type RateConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerDay    int `yaml:"per_day"`
}

type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	PasswordFile    string `yaml:"password_file"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

func (c MQTTConfig) Password() (string, error) {
	if c.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read mqtt password file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type InfluxConfig struct {
	URL       string `yaml:"url"`
	TokenFile string `yaml:"token_file"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
}

func (c InfluxConfig) Token() (string, error) {
	if c.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read influx token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.PollIntervalSeconds == 0 {
		cfg.Core.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Yandex.StatePath == "" {
		cfg.Yandex.StatePath = DefaultStatePath
	}
	if cfg.OAuth != nil && cfg.OAuth.BlobPrefix == "" {
		cfg.OAuth.BlobPrefix = DefaultOAuthPrefix
	}
	if cfg.Rate.PerMinute == 0 {
		cfg.Rate.PerMinute = DefaultRatePerMinute
	}
	if cfg.MQTT != nil {
		if cfg.MQTT.DiscoveryPrefix == "" {
			cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultTopicPrefix
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = DefaultMQTTClientID
		}
	}
	if cfg.History != nil && cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = DefaultRetentionDays
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.PollIntervalSeconds < MinPollIntervalSeconds || cfg.Core.PollIntervalSeconds > MaxPollIntervalSeconds {
		return fmt.Errorf("core.poll_interval_seconds must be within [%d, %d]",
			MinPollIntervalSeconds, MaxPollIntervalSeconds)
	}

	staticMode := cfg.Yandex.StaticMode()
	if !staticMode && cfg.Yandex.BootstrapFile == "" {
		return fmt.Errorf("yandex.token, yandex.token_file, or yandex.bootstrap_file is required")
	}
	if staticMode && cfg.Yandex.BootstrapFile != "" {
		return fmt.Errorf("yandex.token and yandex.bootstrap_file are mutually exclusive")
	}
	if !staticMode && !filepath.IsAbs(cfg.Yandex.StatePath) {
		return fmt.Errorf("yandex.state_path must be absolute")
	}

	if cfg.OAuth.BlobConfigured() {
		if cfg.OAuth.BlobAccessKeyFile == "" {
			return fmt.Errorf("oauth.blob_access_key_file is required")
		}
		if cfg.OAuth.BlobSecretKeyFile == "" {
			return fmt.Errorf("oauth.blob_secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.Influx != nil {
		if cfg.Influx.URL == "" {
			return fmt.Errorf("influx.url is required")
		}
		if cfg.Influx.Org == "" || cfg.Influx.Bucket == "" {
			return fmt.Errorf("influx.org and influx.bucket are required")
		}
		if cfg.Influx.TokenFile == "" {
			return fmt.Errorf("influx.token_file is required")
		}
	}
	if cfg.History != nil && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}

	return nil
}
