// Package config loads platform configuration from an optional YAML
// file and RELIABILITY_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/llm-reliability/internal/drift"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
	"github.com/tjfontaine/llm-reliability/internal/telemetry"
)

const envPrefix = "RELIABILITY_"

type Config struct {
	Server     ServerConfig                `koanf:"server"`
	Storage    StorageConfig               `koanf:"storage"`
	Validation ValidationConfig            `koanf:"validation"`
	Drift      drift.Config                `koanf:"drift"`
	Alerting   AlertingConfig              `koanf:"alerting"`
	Monitor    MonitorConfig               `koanf:"monitor"`
	Telemetry  telemetry.Config            `koanf:"telemetry"`
	Invariants map[string]invariant.Config `koanf:"invariants"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type ValidationConfig struct {
	MaxParallel    int           `koanf:"max_parallel"`
	DefaultTimeout time.Duration `koanf:"default_timeout"`
}

type AlertingConfig struct {
	Publisher    string `koanf:"publisher"` // log, redis
	RedisURL     string `koanf:"redis_url"`
	RedisChannel string `koanf:"redis_channel"`
}

// MonitorConfig lists the applications the drift scheduler watches.
type MonitorConfig struct {
	Applications []string `koanf:"applications"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configPath (skipped when empty or missing) then overlays
// environment variables. RELIABILITY_SERVER__PORT=9000 sets
// server.port.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Alerting.RedisURL = substituteEnvVars(cfg.Alerting.RedisURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                8090,
		"storage.type":               "sqlite",
		"storage.sqlite.path":        "reliability.db",
		"validation.max_parallel":    10,
		"validation.default_timeout": "5s",
		"alerting.publisher":         "log",
		"alerting.redis_channel":     "reliability.drift_alerts",
		"telemetry.enabled":          telemetry.DefaultConfig().Enabled,
		"telemetry.pretty_print":     telemetry.DefaultConfig().PrettyPrint,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
	dd := drift.DefaultConfig()
	driftDefaults := map[string]any{
		"drift.enabled":                          true,
		"drift.detection_interval":               dd.DetectionInterval.String(),
		"drift.baseline_window":                  dd.BaselineWindow.String(),
		"drift.comparison_window":                dd.ComparisonWindow.String(),
		"drift.min_samples_required":             dd.MinSamplesRequired,
		"drift.kl_divergence_threshold":          dd.KLThreshold,
		"drift.js_divergence_threshold":          dd.JSThreshold,
		"drift.cosine_distance_threshold":        dd.CosineThreshold,
		"drift.response_length_change_threshold": dd.LengthThreshold,
		"drift.latency_change_threshold":         dd.LatencyThreshold,
		"drift.cost_change_threshold":            dd.CostThreshold,
		"drift.max_samples_per_window":           dd.MaxSamplesPerWindow,
	}
	for key, value := range driftDefaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path required for sqlite storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.Alerting.Publisher {
	case "log":
	case "redis":
		if c.Alerting.RedisURL == "" {
			return fmt.Errorf("alerting.redis_url required for redis publisher")
		}
	default:
		return fmt.Errorf("unknown alerting.publisher %q", c.Alerting.Publisher)
	}
	if c.Validation.MaxParallel <= 0 {
		return fmt.Errorf("validation.max_parallel must be positive")
	}
	for id, cfg := range c.Invariants {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invariants.%s: %w", id, err)
		}
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
