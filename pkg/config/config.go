package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends selectable through the "backend" key.
const (
	BackendMemory = "memory"
	BackendRaft   = "raft"
)

type Config struct {
	Prompt  string     `yaml:"prompt"`
	Backend string     `yaml:"backend"`
	Log     LogConfig  `yaml:"log"`
	Raft    RaftConfig `yaml:"raft"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
}

// RaftConfig tunes the in-process raft node used by the raft backend.
// Durations accept Go duration strings such as "100ms".
type RaftConfig struct {
	NodeID             string        `yaml:"node_id"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout    time.Duration `yaml:"election_timeout"`
	LeaderLeaseTimeout time.Duration `yaml:"leader_lease_timeout"`
	CommitTimeout      time.Duration `yaml:"commit_timeout"`
	ApplyTimeout       time.Duration `yaml:"apply_timeout"`
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file if path is provided,
// then applies environment variable overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			// If path was explicitly provided but file doesn't exist, return error
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every zero field.
func (c *Config) SetDefaults() {
	if c.Prompt == "" {
		c.Prompt = "safina> "
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stderr"}
	}

	r := &c.Raft
	if r.NodeID == "" {
		r.NodeID = "safina-1"
	}
	if r.HeartbeatTimeout == 0 {
		r.HeartbeatTimeout = 100 * time.Millisecond
	}
	if r.ElectionTimeout == 0 {
		r.ElectionTimeout = 100 * time.Millisecond
	}
	if r.LeaderLeaseTimeout == 0 {
		r.LeaderLeaseTimeout = 50 * time.Millisecond
	}
	if r.CommitTimeout == 0 {
		r.CommitTimeout = 10 * time.Millisecond
	}
	if r.ApplyTimeout == 0 {
		r.ApplyTimeout = 5 * time.Second
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRaft:
	default:
		return fmt.Errorf("invalid backend %q (want %q or %q)", c.Backend, BackendMemory, BackendRaft)
	}

	switch c.Log.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log encoding %q (want console or json)", c.Log.Encoding)
	}

	if c.Backend == BackendRaft {
		return c.Raft.Validate()
	}
	return nil
}

// Validate checks the raft timings against the constraints raft enforces.
func (r RaftConfig) Validate() error {
	if r.LeaderLeaseTimeout > r.HeartbeatTimeout {
		return fmt.Errorf("raft leader_lease_timeout (%s) must not exceed heartbeat_timeout (%s)", r.LeaderLeaseTimeout, r.HeartbeatTimeout)
	}
	if r.ElectionTimeout < r.HeartbeatTimeout {
		return fmt.Errorf("raft election_timeout (%s) must be at least heartbeat_timeout (%s)", r.ElectionTimeout, r.HeartbeatTimeout)
	}
	if r.ApplyTimeout <= 0 {
		return fmt.Errorf("raft apply_timeout must be positive")
	}
	return nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAFINA_PROMPT"); v != "" {
		cfg.Prompt = v
	}
	if v := os.Getenv("SAFINA_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SAFINA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SAFINA_LOG_ENCODING"); v != "" {
		cfg.Log.Encoding = v
	}
	if v := os.Getenv("SAFINA_NODE_ID"); v != "" {
		cfg.Raft.NodeID = v
	}
}
