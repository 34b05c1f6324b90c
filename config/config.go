// Package config loads the service configuration from an optional YAML file
// with environment variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ServerConfig configures the HTTP intake.
type ServerConfig struct {
	Addr               string `koanf:"addr"`
	MaxConcurrentCases int    `koanf:"max_concurrent_cases"`
}

// ModelConfig selects the LLM provider and per-role model names.
type ModelConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `koanf:"provider"`
	// TriageModel handles classification and verification.
	TriageModel string `koanf:"triage_model"`
	// PlanModel handles action plans, summaries and appointment notes.
	PlanModel string `koanf:"plan_model"`
}

// HistoryConfig configures the prior-case store.
type HistoryConfig struct {
	Path string `koanf:"path"`
	TopK int    `koanf:"top_k"`
}

// DataConfig points at the read-only resource snapshots.
type DataConfig struct {
	AvailabilityPath string `koanf:"availability_path"`
	HospitalsPath    string `koanf:"hospitals_path"`
}

// GatewayConfig configures the agent backend bootstrap. An empty Origin
// disables the bootstrap and the client runs without credentials.
type GatewayConfig struct {
	Origin   string `koanf:"origin"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// ClientConfig configures the remote invocation client.
type ClientConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Model   ModelConfig   `koanf:"model"`
	History HistoryConfig `koanf:"history"`
	Data    DataConfig    `koanf:"data"`
	Gateway GatewayConfig `koanf:"gateway"`
	Client  ClientConfig  `koanf:"client"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			MaxConcurrentCases: 8,
		},
		Model: ModelConfig{
			Provider: "openai",
		},
		History: HistoryConfig{
			Path: "data/case_history.db",
			TopK: 3,
		},
		Data: DataConfig{
			AvailabilityPath: "data/resource_availability.json",
			HospitalsPath:    "data/hospital_details.json",
		},
		Client: ClientConfig{
			TimeoutSeconds: 60,
		},
	}
}

// Load reads configuration from path (skipped when empty or missing) and
// applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			k := koanf.New(".")
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
			if err := k.Unmarshal("", &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "TRIAGEMESH_ADDR")
	setInt(&cfg.Server.MaxConcurrentCases, "TRIAGEMESH_MAX_CONCURRENT_CASES")
	setString(&cfg.Model.Provider, "TRIAGEMESH_MODEL_PROVIDER")
	setString(&cfg.Model.TriageModel, "TRIAGEMESH_TRIAGE_MODEL")
	setString(&cfg.Model.PlanModel, "TRIAGEMESH_PLAN_MODEL")
	setString(&cfg.History.Path, "TRIAGEMESH_HISTORY_PATH")
	setInt(&cfg.History.TopK, "TRIAGEMESH_HISTORY_TOP_K")
	setString(&cfg.Data.AvailabilityPath, "TRIAGEMESH_AVAILABILITY_PATH")
	setString(&cfg.Data.HospitalsPath, "TRIAGEMESH_HOSPITALS_PATH")
	setString(&cfg.Gateway.Origin, "TRIAGEMESH_GATEWAY_ORIGIN")
	setString(&cfg.Gateway.Username, "TRIAGEMESH_GATEWAY_USERNAME")
	setString(&cfg.Gateway.Password, "TRIAGEMESH_GATEWAY_PASSWORD")
	setInt(&cfg.Client.TimeoutSeconds, "TRIAGEMESH_CLIENT_TIMEOUT_SECONDS")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxConcurrentCases < 1 {
		return fmt.Errorf("server.max_concurrent_cases must be at least 1")
	}
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider must be openai or anthropic, got %q", c.Model.Provider)
	}
	if c.History.TopK < 1 {
		return fmt.Errorf("history.top_k must be at least 1")
	}
	if c.Client.TimeoutSeconds < 1 {
		return fmt.Errorf("client.timeout_seconds must be at least 1")
	}
	if c.Gateway.Origin != "" && (c.Gateway.Username == "" || c.Gateway.Password == "") {
		return fmt.Errorf("gateway.username and gateway.password are required when gateway.origin is set")
	}
	return nil
}
