// Package config loads the workspace configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config.yml can spell intervals as "1s"
// or "5m"; yaml.v3 has no native duration decoding.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds workspace-level settings loaded from config.yml.
type Config struct {
	Model         ModelConfig  `yaml:"model"`
	Server        ServerConfig `yaml:"server"`
	Daemon        DaemonConfig `yaml:"daemon"`
	Notifications bool         `yaml:"notifications"`
	Bounds        BoundsConfig `yaml:"bounds"`
}

// ModelConfig selects the external model and where its key comes from.
type ModelConfig struct {
	Adapter   string `yaml:"adapter"`
	Name      string `yaml:"name"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ServerConfig configures the read-only integration API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DaemonConfig configures the background job loop.
type DaemonConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	LeaseFor     Duration `yaml:"lease_for"`
}

// BoundsConfig overrides draft schema limits. Zero values keep defaults.
type BoundsConfig struct {
	MaxOutcomes     int `yaml:"max_outcomes"`
	MaxDeliverables int `yaml:"max_deliverables"`
	MaxActions      int `yaml:"max_actions"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Adapter:   "genai",
			Name:      "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:7430",
		},
		Daemon: DaemonConfig{
			PollInterval: Duration(1 * time.Second),
			LeaseFor:     Duration(5 * time.Minute),
		},
		Notifications: false,
	}
}

// Load reads config.yml from the given path, falling back to defaults when
// the file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes the config to path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c Config) validate() error {
	switch c.Model.Adapter {
	case "", "genai", "mock":
	default:
		return fmt.Errorf("unknown model adapter: %s", c.Model.Adapter)
	}
	if c.Daemon.PollInterval < 0 {
		return fmt.Errorf("daemon poll_interval must be positive")
	}
	if c.Daemon.LeaseFor < 0 {
		return fmt.Errorf("daemon lease_for must be positive")
	}
	return nil
}
