// Package config loads the typed configuration for a quellehost process:
// configured extension sources, the install directory, Caching Executor
// tuning, and logging. Sources are layered in the same order the teacher's
// own config package uses:
//
//  1. Environment variables (QUELLE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nacht-org/quelle-sub001/internal/bytesize"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the root configuration for a quellehost process.
type Config struct {
	// DataDir is the root directory installed extensions, the content
	// store, and the on-disk cache tier live under, unless a sub-config
	// overrides its own path.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`

	// Sources are the configured Extension Registry backends, searched and
	// installed from in priority order.
	Sources []registry.ExtensionSource `mapstructure:"sources" yaml:"sources" validate:"dive"`

	// Registry tunes the Registry Manager's own behavior.
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Cache tunes the Caching HTTP Executor.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// RegistryConfig holds Registry Manager settings. These fields are loaded,
// defaulted and validated, but registry.Manager does not read them: it
// uses its own fixed install bound (3) and per-source search timeout (10s),
// and no provider reads GitRateLimitPerSecond.
type RegistryConfig struct {
	// InstallConcurrency is the number of installs to run at once.
	InstallConcurrency int `mapstructure:"install_concurrency" yaml:"install_concurrency" validate:"gte=0"`

	// SearchTimeout is how long a single source is given to answer a
	// search_all_stores fan-out.
	SearchTimeout time.Duration `mapstructure:"search_timeout" yaml:"search_timeout" validate:"gte=0"`

	// GitRateLimitPerSecond is a rate for outbound Git/GitHub provider
	// fetches.
	GitRateLimitPerSecond float64 `mapstructure:"git_rate_limit_per_second" yaml:"git_rate_limit_per_second" validate:"gte=0"`
}

// CacheConfig tunes the Caching HTTP Executor.
type CacheConfig struct {
	// DefaultTTL is how long a freshly-cached response stays valid.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" validate:"gt=0"`

	// MaxMemoryEntries bounds the in-memory cache tier.
	MaxMemoryEntries int `mapstructure:"max_memory_entries" yaml:"max_memory_entries" validate:"gt=0"`

	// MaxDiskSize is a size for the on-disk cache tier, expressed as a
	// human-readable size ("500Mi", "2Gi"). The Caching Executor does not
	// read it: the on-disk tier has no size bound and is enabled by Dir
	// alone.
	MaxDiskSize bytesize.ByteSize `mapstructure:"max_disk_size" yaml:"max_disk_size"`

	// Dir, if non-empty, enables the on-disk cache tier at this path.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// Load reads configuration from file, environment, and defaults, then
// validates the result. An empty configPath searches the default location;
// a missing config file is not an error, since defaults alone are usable.
// Environment variables override only keys present in the config file;
// when no config file is found, Load returns DefaultConfig() as is and the
// environment is not consulted.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "read_config_file", err)
	}

	if !found {
		cfg := DefaultConfig()
		return &cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, quelleerr.Wrap(quelleerr.Serialization, "unmarshal_config", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg's struct tags and a handful of cross-field
// invariants validator alone cannot express.
func Validate(cfg *Config) *quelleerr.Error {
	var issues []quelleerr.Issue

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				issues = append(issues, quelleerr.Issue{
					Severity: quelleerr.SeverityError,
					Message:  fe.Error(),
					Field:    fe.Namespace(),
				})
			}
		} else {
			issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityCritical, Message: err.Error()})
		}
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if seen[src.Name] {
			issues = append(issues, quelleerr.Issue{
				Severity: quelleerr.SeverityError,
				Message:  fmt.Sprintf("duplicate source name %q", src.Name),
				Field:    "sources",
			})
		}
		seen[src.Name] = true

		switch src.Kind {
		case registry.StoreLocal:
			if src.Local == nil || src.Local.Path == "" {
				issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityError, Message: "local source missing path", Field: "sources." + src.Name})
			}
		case registry.StoreGit:
			if src.Git == nil || src.Git.URL == "" {
				issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityError, Message: "git source missing url", Field: "sources." + src.Name})
			}
		case registry.StoreGitHub:
			if src.GitHub == nil || src.GitHub.Owner == "" || src.GitHub.Repo == "" {
				issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityError, Message: "github source missing owner/repo", Field: "sources." + src.Name})
			}
		default:
			issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityError, Message: fmt.Sprintf("unknown source kind %q", src.Kind), Field: "sources." + src.Name})
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return quelleerr.New(quelleerr.ValidationFailed, "validate_config").WithIssues(issues)
}

// SaveConfig writes cfg as YAML to path with owner-only permissions, since
// source auth tokens may be embedded in it.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "mkdir_config_dir", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "marshal_config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_config_file", err)
	}
	return nil
}

// setupViper wires environment variable and config-file discovery.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("QUELLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook lets config files use human-readable sizes like "1Gi"
// or "500Mi" for any bytesize.ByteSize field.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quelle")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "quelle")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
