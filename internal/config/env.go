package config

import (
	"os"
	"strconv"
)

// FromEnv overlays MAILROOM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("MAILROOM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MAILROOM_PUBLISHER_USERNAME"); v != "" {
		cfg.Publisher.Username = v
	}
	if v := os.Getenv("MAILROOM_PUBLISHER_PASSWORD"); v != "" {
		cfg.Publisher.Password = v
	}
	if v := os.Getenv("MAILROOM_EMAIL_ENDPOINT"); v != "" {
		cfg.Email.Endpoint = v
	}
	if v := os.Getenv("MAILROOM_EMAIL_SERVER_TOKEN"); v != "" {
		cfg.Email.ServerToken = v
	}
	if v := os.Getenv("MAILROOM_EMAIL_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := os.Getenv("MAILROOM_EMAIL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Email.TimeoutMs = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.Workers = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.MaxAttempts = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_BACKOFF_BASE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.BackoffBaseMs = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_BACKOFF_CAP_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.BackoffCapMs = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_LEASE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.LeaseMs = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_IDLE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.IdleIntervalMs = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_RATE_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.RatePerSec = n
		}
	}
	if v := os.Getenv("MAILROOM_DELIVERY_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.SweepIntervalMs = n
		}
	}
}
