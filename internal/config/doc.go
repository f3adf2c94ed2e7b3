// Package config provides loading and environment overlay for mailroom
// runtime configuration. It exposes a Default() baseline, file loading
// (JSON or YAML by extension), and a MAILROOM_* env overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/mailroom.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
