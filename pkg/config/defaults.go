package config

import (
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with no configured sources and sane
// defaults for everything else; used when no config file is found.
func DefaultConfig() Config {
	cfg := Config{}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with defaults. Called after
// unmarshalling a partial config file, so explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(defaultConfigDir(), "data")
	}
	applyRegistryDefaults(&cfg.Registry)
	applyCacheDefaults(&cfg.Cache)
	applyLoggingDefaults(&cfg.Logging)
}

func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.InstallConcurrency == 0 {
		cfg.InstallConcurrency = 3
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 300 * time.Second
	}
	if cfg.MaxMemoryEntries == 0 {
		cfg.MaxMemoryEntries = 1000
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}
