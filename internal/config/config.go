// Package config loads hostprobe settings: defaults, then an optional YAML file, then
// HOSTPROBE_* environment overrides. Command-line flags are applied by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config carries runtime options for hostprobe.
type Config struct {
	Server           ServerConfig  `yaml:"server"`
	Sampler          SamplerConfig `yaml:"sampler"`
	Collect          CollectConfig `yaml:"collect"`
	Watch            WatchConfig   `yaml:"watch"`
	Logging          LoggingConfig `yaml:"logging"`
	RequireElevation bool          `yaml:"require_elevation"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=1s"`
	RateLimit       float64       `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst" validate:"min=1"`
}

type SamplerConfig struct {
	Wait time.Duration `yaml:"wait" validate:"min=10ms,max=1m"`
}

type CollectConfig struct {
	Workers          int  `yaml:"workers" validate:"min=1,max=64"`
	ProcessWorkers   int  `yaml:"process_workers" validate:"min=1,max=256"`
	IncludeThreads   bool `yaml:"include_threads"`
	IncludeHandles   bool `yaml:"include_handles"`
	HandleCapacity   int  `yaml:"handle_capacity" validate:"min=1024"`
	HandleMaxRetries int  `yaml:"handle_max_retries" validate:"min=1,max=16"`
}

type WatchConfig struct {
	Interval time.Duration `yaml:"interval" validate:"min=100ms"`
	Top      int           `yaml:"top" validate:"min=1,max=200"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8787",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Sampler: SamplerConfig{Wait: time.Second},
		Collect: CollectConfig{
			Workers:          4,
			ProcessWorkers:   8,
			IncludeThreads:   true,
			IncludeHandles:   true,
			HandleCapacity:   32 << 10,
			HandleMaxRetries: 6,
		},
		Watch:            WatchConfig{Interval: 2 * time.Second, Top: 25},
		Logging:          LoggingConfig{Level: "info"},
		RequireElevation: true,
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// parseDuration accepts Go durations and bare seconds ("2" means 2s).
func parseDuration(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if d, err := time.ParseDuration(v + "s"); err == nil {
		return d, true
	}
	return 0, false
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// ApplyEnv applies HOSTPROBE_* overrides. Unparseable values are ignored.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("HOSTPROBE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("HOSTPROBE_SAMPLE_WAIT"); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.Sampler.Wait = d
		}
	}
	if v := os.Getenv("HOSTPROBE_INTERVAL"); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.Watch.Interval = d
		}
	}
	if v := os.Getenv("HOSTPROBE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Collect.Workers = n
		}
	}
	if v := os.Getenv("HOSTPROBE_REQUIRE_ELEVATION"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.RequireElevation = b
		}
	}
	if v := os.Getenv("HOSTPROBE_THREADS"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Collect.IncludeThreads = b
		}
	}
	if v := os.Getenv("HOSTPROBE_HANDLES"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Collect.IncludeHandles = b
		}
	}
	if v := os.Getenv("HOSTPROBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, e := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (%s)", e.Namespace(), e.Tag(), e.Param())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
