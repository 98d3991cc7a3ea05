package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the TOML configuration file structure.
type TOMLConfig struct {
	HTTP     TOMLHTTPConfig     `toml:"http"`
	Store    TOMLStoreConfig    `toml:"store"`
	Peer     TOMLPeerConfig     `toml:"peer"`
	Retry    TOMLRetryConfig    `toml:"retry"`
	Watchdog TOMLWatchdogConfig `toml:"watchdog"`
	Devices  TOMLDevicesConfig  `toml:"devices"`

	SharedSecret string `toml:"shared_secret"`
	DevMode      bool   `toml:"dev_mode"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML.
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLStoreConfig represents store configuration in TOML.
type TOMLStoreConfig struct {
	Path string `toml:"path"`
}

// TOMLPeerConfig represents peer configuration in TOML.
type TOMLPeerConfig struct {
	BaseURL        string `toml:"base_url"`
	HealthPath     string `toml:"health_path"`
	WatchdogHost   string `toml:"watchdog_host"`
	TLSVerify      bool   `toml:"tls_verify"`
	HTTPTimeout    string `toml:"http_timeout"`
	OutboundSecret string `toml:"outbound_shared_secret"`
}

// TOMLRetryConfig represents retry configuration in TOML.
type TOMLRetryConfig struct {
	BaseSeconds int `toml:"base_s"`
	CapSeconds  int `toml:"cap_s"`
}

// TOMLWatchdogConfig represents watchdog configuration in TOML.
type TOMLWatchdogConfig struct {
	IntervalSeconds int  `toml:"interval_s"`
	TimeoutSeconds  int  `toml:"timeout_s"`
	DownAfter       int  `toml:"down_after"`
	PingEnabled     bool `toml:"ping_enabled"`
}

// TOMLDevicesConfig represents per-channel device configuration in TOML.
type TOMLDevicesConfig struct {
	ESPPLC TOMLDeviceConfig `toml:"esp_plc"`
	VJ3350 TOMLDeviceConfig `toml:"vj3350"`
	VJ6530 TOMLDeviceConfig `toml:"vj6530"`
}

// TOMLDeviceConfig represents a single channel's TOML configuration.
type TOMLDeviceConfig struct {
	DefaultValue string `toml:"default_value"`
}

// ConfigPaths lists the paths to search for a config file.
var ConfigPaths = []string{
	"config.toml",
	"databridge.toml",
	"./config/config.toml",
	"/etc/databridge/config.toml",
}

// LoadFromFile loads configuration from a TOML file.
func LoadFromFile(path string) (*Config, error) {
	var tomlCfg TOMLConfig

	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return tomlConfigToConfig(&tomlCfg)
}

// LoadWithFile loads configuration from a file first, then overrides with env vars.
func LoadWithFile() (*Config, error) {
	// Start with defaults from environment
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// Check for explicit config file path
	configPath := os.Getenv("DATABRIDGE_CONFIG")
	if configPath == "" {
		// Search for config file in standard locations
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	// If no config file found, just use env vars
	if configPath == "" {
		return cfg, nil
	}

	// Load from file
	fileCfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	// Merge: file config as base, env vars override
	return mergeConfigs(fileCfg, cfg), nil
}

// tomlConfigToConfig converts a TOMLConfig to the internal Config struct.
func tomlConfigToConfig(tc *TOMLConfig) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        tc.HTTP.Port,
			CORSOrigins: tc.HTTP.CORSOrigins,
		},
		Store: StoreConfig{
			Path: tc.Store.Path,
		},
		Peer: PeerConfig{
			BaseURL:        tc.Peer.BaseURL,
			HealthPath:     tc.Peer.HealthPath,
			WatchdogHost:   tc.Peer.WatchdogHost,
			TLSVerify:      tc.Peer.TLSVerify,
			OutboundSecret: tc.Peer.OutboundSecret,
		},
		Retry: RetryConfig{
			BaseSeconds: tc.Retry.BaseSeconds,
			CapSeconds:  tc.Retry.CapSeconds,
		},
		Watchdog: WatchdogConfig{
			IntervalSeconds: tc.Watchdog.IntervalSeconds,
			TimeoutSeconds:  tc.Watchdog.TimeoutSeconds,
			DownAfter:       tc.Watchdog.DownAfter,
			PingEnabled:     tc.Watchdog.PingEnabled,
		},
		Devices: DevicesConfig{
			ESPPLC: DeviceConfig{DefaultValue: tc.Devices.ESPPLC.DefaultValue},
			VJ3350: DeviceConfig{DefaultValue: tc.Devices.VJ3350.DefaultValue},
			VJ6530: DeviceConfig{DefaultValue: tc.Devices.VJ6530.DefaultValue},
		},
		SharedSecret: tc.SharedSecret,
		DevMode:      tc.DevMode,
	}

	if tc.Peer.HTTPTimeout != "" {
		if d, err := time.ParseDuration(tc.Peer.HTTPTimeout); err == nil {
			cfg.Peer.HTTPTimeout = d
		}
	}

	return cfg, nil
}

// mergeConfigs merges two configs, with override taking precedence for values
// that are non-zero and differ from Load's built-in defaults. Peer.TLSVerify,
// Peer.HTTPTimeout, Watchdog.TimeoutSeconds, Watchdog.PingEnabled and the
// Devices defaults are not merged: they always come from base.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.HTTP.Port != 0 && override.HTTP.Port != 8080 {
		result.HTTP.Port = override.HTTP.Port
	}
	if len(override.HTTP.CORSOrigins) > 0 {
		result.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	if override.Store.Path != "" && override.Store.Path != "./data/databridge.db" {
		result.Store.Path = override.Store.Path
	}

	if override.Peer.BaseURL != "" && override.Peer.BaseURL != "http://localhost:9000" {
		result.Peer.BaseURL = override.Peer.BaseURL
	}
	if override.Peer.HealthPath != "" && override.Peer.HealthPath != "/health" {
		result.Peer.HealthPath = override.Peer.HealthPath
	}
	if override.Peer.WatchdogHost != "" {
		result.Peer.WatchdogHost = override.Peer.WatchdogHost
	}
	if override.Peer.OutboundSecret != "" {
		result.Peer.OutboundSecret = override.Peer.OutboundSecret
	}

	if override.Retry.BaseSeconds != 0 && override.Retry.BaseSeconds != 2 {
		result.Retry.BaseSeconds = override.Retry.BaseSeconds
	}
	if override.Retry.CapSeconds != 0 && override.Retry.CapSeconds != 300 {
		result.Retry.CapSeconds = override.Retry.CapSeconds
	}

	if override.Watchdog.IntervalSeconds != 0 && override.Watchdog.IntervalSeconds != 5 {
		result.Watchdog.IntervalSeconds = override.Watchdog.IntervalSeconds
	}
	if override.Watchdog.DownAfter != 0 && override.Watchdog.DownAfter != 3 {
		result.Watchdog.DownAfter = override.Watchdog.DownAfter
	}

	if override.SharedSecret != "" {
		result.SharedSecret = override.SharedSecret
	}
	if override.DevMode {
		result.DevMode = true
	}

	return &result
}

// WriteExampleConfig writes an example configuration file to path.
func WriteExampleConfig(path string) error {
	example := `# databridge configuration
# Environment variables override these settings

shared_secret = ""
dev_mode = false

[http]
port = 8080
cors_origins = []

[store]
path = "./data/databridge.db"

[peer]
base_url = "http://shopfloor-host.local:9000"
health_path = "/health"
watchdog_host = "shopfloor-host.local"
tls_verify = true
http_timeout = "10s"
outbound_shared_secret = ""

[retry]
base_s = 2
cap_s = 300

[watchdog]
interval_s = 5
timeout_s = 3
down_after = 3
ping_enabled = false

[devices.esp_plc]
default_value = "0"

[devices.vj3350]
default_value = "0"

[devices.vj6530]
default_value = "0"
`

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
