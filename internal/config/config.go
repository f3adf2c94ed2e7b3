package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr  string          `json:"httpAddr" yaml:"httpAddr"`
	Publisher PublisherConfig `json:"publisher" yaml:"publisher"`
	Email     EmailConfig     `json:"email" yaml:"email"`
	Delivery  DeliveryConfig  `json:"delivery" yaml:"delivery"`
}

// PublisherConfig declares the credentials allowed to publish issues. The
// username doubles as the idempotency owner for commands it submits.
type PublisherConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// EmailConfig configures the outbound email provider.
type EmailConfig struct {
	// Endpoint is the provider's send URL, e.g. https://api.example.com/email.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// ServerToken authenticates mailroom against the provider.
	ServerToken string `json:"serverToken" yaml:"serverToken"`
	// From is the sender address stamped on every issue.
	From string `json:"from" yaml:"from"`
	// TimeoutMs bounds a single send round trip.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`
}

// DeliveryConfig tunes the dispatcher and the delivery task queue. All
// retry/lease policy lives here rather than in code.
type DeliveryConfig struct {
	Workers          int `json:"workers" yaml:"workers"`
	MaxAttempts      int `json:"maxAttempts" yaml:"maxAttempts"`
	BackoffBaseMs    int `json:"backoffBaseMs" yaml:"backoffBaseMs"`
	BackoffCapMs     int `json:"backoffCapMs" yaml:"backoffCapMs"`
	LeaseMs          int `json:"leaseMs" yaml:"leaseMs"`
	IdleIntervalMs   int `json:"idleIntervalMs" yaml:"idleIntervalMs"`
	RatePerSec       int `json:"ratePerSec" yaml:"ratePerSec"`
	SweepIntervalMs  int `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
	CompletedRetain  int `json:"completedRetain" yaml:"completedRetain"`
	CompletedMaxAgeH int `json:"completedMaxAgeH" yaml:"completedMaxAgeH"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Email: EmailConfig{
			TimeoutMs: 10_000,
		},
		Delivery: DeliveryConfig{
			Workers:          4,
			MaxAttempts:      5,
			BackoffBaseMs:    1_000,
			BackoffCapMs:     60_000,
			LeaseMs:          30_000,
			IdleIntervalMs:   1_000,
			RatePerSec:       10,
			SweepIntervalMs:  2_000,
			CompletedRetain:  1000,
			CompletedMaxAgeH: 24,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
