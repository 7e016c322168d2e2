// Copyright 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the configuration of the ostree-bench command.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sentinel validation errors.
var (
	ErrInvalidTree           = errors.New("workload tree must be one of balanced, ordered or hashmap")
	ErrInvalidKeys           = errors.New("workload keys must be positive")
	ErrInvalidDeleteFraction = errors.New("workload delete fraction must be within [0, 1]")
	ErrInvalidQueries        = errors.New("workload queries must not be negative")
	ErrInvalidBuckets        = errors.New("hashmap buckets must be positive")
	ErrInvalidLogLevel       = errors.New("unknown logging level")
	ErrInvalidLogFormat      = errors.New("logging format must be console or json")
)

// Tree kinds.
const (
	TreeBalanced = "balanced"
	TreeOrdered  = "ordered"
	TreeHashMap  = "hashmap"
)

// Default configuration values.
const (
	DefaultTree           = TreeBalanced
	DefaultKeys           = 100_000
	DefaultSeed           = 1
	DefaultDeleteFraction = 0.25
	DefaultQueries        = 10_000
	DefaultBuckets        = 64
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultNamespace      = "ostree"
	DefaultCheck          = true
)

// EnvPrefix prefixes environment overrides, e.g. OSTREE_WORKLOAD_KEYS.
const EnvPrefix = "OSTREE"

// Config holds the whole bench configuration.
type Config struct {
	Workload WorkloadConfig `mapstructure:"workload" yaml:"workload"`
	HashMap  HashMapConfig  `mapstructure:"hashmap" yaml:"hashmap"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Check    bool           `mapstructure:"check" yaml:"check"`
}

// WorkloadConfig describes the operations a run performs.
type WorkloadConfig struct {
	Tree           string  `mapstructure:"tree" yaml:"tree"`
	Keys           int     `mapstructure:"keys" yaml:"keys"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
	DeleteFraction float64 `mapstructure:"delete_fraction" yaml:"delete_fraction"`
	Queries        int     `mapstructure:"queries" yaml:"queries"`
}

// HashMapConfig applies when the workload tree is "hashmap".
type HashMapConfig struct {
	Buckets int `mapstructure:"buckets" yaml:"buckets"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the Prometheus endpoint settings.  An empty Listen
// disables the endpoint.
type MetricsConfig struct {
	Listen    string `mapstructure:"listen" yaml:"listen"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// Load reads the configuration from defaults, the optional YAML file at path,
// OSTREE_* environment variables and overrides, in increasing priority.
// overrides is keyed by dotted names such as "workload.keys".
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workload.tree", DefaultTree)
	v.SetDefault("workload.keys", DefaultKeys)
	v.SetDefault("workload.seed", DefaultSeed)
	v.SetDefault("workload.delete_fraction", DefaultDeleteFraction)
	v.SetDefault("workload.queries", DefaultQueries)

	v.SetDefault("hashmap.buckets", DefaultBuckets)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.namespace", DefaultNamespace)

	v.SetDefault("check", DefaultCheck)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Workload.Tree {
	case TreeBalanced, TreeOrdered, TreeHashMap:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTree, c.Workload.Tree)
	}
	if c.Workload.Keys <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeys, c.Workload.Keys)
	}
	if c.Workload.DeleteFraction < 0 || c.Workload.DeleteFraction > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidDeleteFraction, c.Workload.DeleteFraction)
	}
	if c.Workload.Queries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueries, c.Workload.Queries)
	}
	if c.HashMap.Buckets <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuckets, c.HashMap.Buckets)
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	return nil
}

// YAML renders the configuration in the format Load reads.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
