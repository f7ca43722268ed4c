// Package config loads stump's runtime configuration, adapted from
// the teacher's internal/config.Config (a flat struct plus an
// env/envInt fallback-default pattern) onto github.com/spf13/viper so
// a config file at $STUMP_CONFIG_DIR/config.yaml and environment
// variables both bind onto the same struct, the way nabbar/golib's
// viper-backed packages do throughout the pack.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every tunable spec.md §6 names plus the ambient
// settings (port, JWT secret, Redis address) the HTTP/auth/jobs
// layers need.
type Config struct {
	ConfigDir        string `mapstructure:"config_dir"`
	ScanWorkers      int    `mapstructure:"scan_workers"`
	ProbeTimeoutSecs int    `mapstructure:"probe_timeout_secs"`
	Port             int    `mapstructure:"port"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	RedisAddr        string `mapstructure:"redis_addr"`
}

// DBPath returns the SQLite file location spec.md §6 specifies:
// <config>/stump.db.
func (c *Config) DBPath() string {
	return filepath.Join(c.ConfigDir, "stump.db")
}

// Load binds STUMP_-prefixed environment variables and an optional
// config.yaml under the resolved config dir, applying spec.md §6's
// defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STUMP")
	v.AutomaticEnv()

	defaultConfigDir := filepath.Join(homeDir(), ".stump")
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("scan_workers", 4)
	v.SetDefault("probe_timeout_secs", 60)
	v.SetDefault("port", 8080)
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("redis_addr", "localhost:6379")

	_ = v.BindEnv("config_dir", "STUMP_CONFIG_DIR")
	_ = v.BindEnv("scan_workers", "STUMP_SCAN_WORKERS")
	_ = v.BindEnv("probe_timeout_secs", "STUMP_PROBE_TIMEOUT_SECS")
	_ = v.BindEnv("port", "STUMP_PORT")
	_ = v.BindEnv("jwt_secret", "STUMP_JWT_SECRET")
	_ = v.BindEnv("redis_addr", "STUMP_REDIS_ADDR")

	cfg := &Config{
		ConfigDir:        v.GetString("config_dir"),
		ScanWorkers:      v.GetInt("scan_workers"),
		ProbeTimeoutSecs: v.GetInt("probe_timeout_secs"),
		Port:             v.GetInt("port"),
		JWTSecret:        v.GetString("jwt_secret"),
		RedisAddr:        v.GetString("redis_addr"),
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cfg.ConfigDir)
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}
