package obs

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigPath is the relative path for the observability server config
// inside a gt workspace, matching rig.ManifestPath's convention.
const ConfigPath = ".gt/observe.toml"

// ConfigVersion is the current supported config schema version.
const ConfigVersion = 1

// Config holds the tunables for the polling/backoff/rule-engine pipeline.
// Struct-tagged for BurntSushi/toml the same way rig.Manifest is.
type Config struct {
	Version int `toml:"version"`

	Server struct {
		Port            int `toml:"port"`
		RequestTimeoutS int `toml:"request_timeout_s"`
	} `toml:"server"`

	Poll struct {
		BaseIntervalMs int `toml:"base_interval_ms"`
		MaxIntervalMs  int `toml:"max_interval_ms"`
		Workers        int `toml:"workers"`
		KillGraceMs    int `toml:"kill_grace_ms"`
	} `toml:"poll"`

	History struct {
		EventCap      int `toml:"event_cap"`
		AgentHistCap  int `toml:"agent_history_cap"`
		MetricRetentionH int `toml:"metric_retention_h"`
	} `toml:"history"`

	Patterns struct {
		SystemicThreshold int `toml:"systemic_threshold"`
		ExampleRingSize   int `toml:"example_ring_size"`
		EvictionAgeH      int `toml:"eviction_age_h"`
	} `toml:"patterns"`

	Hub struct {
		CentralChannelCap int `toml:"central_channel_cap"`
		SessionQueueSize  int `toml:"session_queue_size"`
	} `toml:"hub"`

	Alerts struct {
		RingSize int `toml:"ring_size"`
	} `toml:"alerts"`

	Invoker struct {
		GtPath     string `toml:"gt_path"`
		TimeoutMs  int    `toml:"timeout_ms"`
	} `toml:"invoker"`

	Telemetry struct {
		Enabled        bool   `toml:"enabled"`
		OTLPEndpoint   string `toml:"otlp_endpoint"`
	} `toml:"telemetry"`

	StateDir string `toml:"state_dir"`
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	var c Config
	c.Version = ConfigVersion
	c.Server.Port = 8080
	c.Server.RequestTimeoutS = 10
	c.Poll.BaseIntervalMs = 2000
	c.Poll.MaxIntervalMs = 60000
	c.Poll.Workers = 8
	c.Poll.KillGraceMs = 500
	c.History.EventCap = 5000
	c.History.AgentHistCap = 200
	c.History.MetricRetentionH = 48
	c.Patterns.SystemicThreshold = 5
	c.Patterns.ExampleRingSize = 5
	c.Patterns.EvictionAgeH = 24
	c.Hub.CentralChannelCap = 1024
	c.Hub.SessionQueueSize = 256
	c.Alerts.RingSize = 1000
	c.Invoker.GtPath = "gt"
	c.Invoker.TimeoutMs = 10000
	c.StateDir = ".gt/observe"
	return c
}

// LoadConfig reads and parses the config at path, layering it over
// DefaultConfig. Returns defaults if the file is not present, matching
// rig.LoadManifest's "(nil, nil) if absent" convention adapted to a
// value type with defaults rather than a nil pointer.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate ensures the config uses a supported schema version.
func (c Config) Validate() error {
	if c.Version != 0 && c.Version != ConfigVersion {
		return fmt.Errorf("unsupported observe config version %d (expected %d)", c.Version, ConfigVersion)
	}
	return nil
}

func (c Config) pollBaseInterval() time.Duration {
	return time.Duration(c.Poll.BaseIntervalMs) * time.Millisecond
}

func (c Config) requestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutS) * time.Second
}
