// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/jamestrandung/go-batch/batcher"
)

const envPrefix = "BATCHLOAD_"

// Config holds the settings of one simulated load run.
type Config struct {
	Topic     string
	Items     int
	Producers int
	Within    time.Duration

	MaxHandlers   int
	MinBatchSize  int
	MaxBatchSize  int
	MaxBatchBytes int
	DispatchRate  int

	MessageSize int
	Latency     time.Duration
	Jitter      time.Duration
	FailureRate float64

	ProgressInterval time.Duration
	LogLevel         string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	opts := batcher.DefaultOptions()

	return Config{
		Topic:            "batchload",
		Items:            10000,
		Producers:        4,
		Within:           5 * time.Second,
		MaxHandlers:      4,
		MinBatchSize:     opts.MinBatchSize,
		MaxBatchSize:     100,
		MaxBatchBytes:    int(opts.MaxBatchByteSize),
		MessageSize:      256,
		Latency:          20 * time.Millisecond,
		Jitter:           10 * time.Millisecond,
		ProgressInterval: time.Second,
		LogLevel:         "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return errors.New("topic is required")
	}

	if c.Items < 0 {
		return errors.New("items must not be negative")
	}

	if c.Producers <= 0 {
		return errors.New("producers must be positive")
	}

	if c.FailureRate < 0 || c.FailureRate > 1 {
		return errors.Errorf("failure rate must be within [0, 1], got %v", c.FailureRate)
	}

	if c.ProgressInterval <= 0 {
		return errors.New("progress interval must be positive")
	}

	return c.Options().Validate()
}

// Options returns the batching options described by this configuration.
func (c *Config) Options() batcher.Options {
	return batcher.Options{
		MaxHandlers:      c.MaxHandlers,
		MinBatchSize:     c.MinBatchSize,
		MaxBatchSize:     c.MaxBatchSize,
		MaxBatchByteSize: int64(c.MaxBatchBytes),
	}
}

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Settings where 0 means unbounded or disabled are pointers so that an explicit 0
// can be told apart from a missing key.
type FileConfig struct {
	Topic            string   `toml:"topic"`
	Items            int      `toml:"items"`
	Producers        int      `toml:"producers"`
	Within           string   `toml:"within"`
	MaxHandlers      int      `toml:"max_handlers"`
	MinBatchSize     int      `toml:"min_batch_size"`
	MaxBatchSize     *int     `toml:"max_batch_size"`
	MaxBatchBytes    *int     `toml:"max_batch_bytes"`
	DispatchRate     *int     `toml:"dispatch_rate"`
	MessageSize      int      `toml:"message_size"`
	Latency          string   `toml:"latency"`
	Jitter           string   `toml:"jitter"`
	FailureRate      *float64 `toml:"failure_rate"`
	ProgressInterval string   `toml:"progress_interval"`
	LogLevel         string   `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, errors.Wrapf(err, "parse %s", path)
	}

	return fc, nil
}

// DefaultConfigPath returns ~/.batchload/config.toml if the user home directory is
// accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".batchload", "config.toml")
	}

	return ""
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ApplyFileConfig applies configuration from a file, leaving alone every value whose
// flag was set explicitly.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("topic", fc.Topic, &cfg.Topic)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("items", fc.Items, &cfg.Items)
	s.setInt("producers", fc.Producers, &cfg.Producers)
	s.setInt("max-handlers", fc.MaxHandlers, &cfg.MaxHandlers)
	s.setInt("min-batch-size", fc.MinBatchSize, &cfg.MinBatchSize)
	s.setInt("message-size", fc.MessageSize, &cfg.MessageSize)

	s.setIntPtr("max-batch-size", fc.MaxBatchSize, &cfg.MaxBatchSize)
	s.setIntPtr("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes)
	s.setIntPtr("dispatch-rate", fc.DispatchRate, &cfg.DispatchRate)
	s.setFloatPtr("failure-rate", fc.FailureRate, &cfg.FailureRate)

	for flag, pair := range map[string]struct {
		value string
		dst   *time.Duration
	}{
		"within":            {fc.Within, &cfg.Within},
		"latency":           {fc.Latency, &cfg.Latency},
		"jitter":            {fc.Jitter, &cfg.Jitter},
		"progress-interval": {fc.ProgressInterval, &cfg.ProgressInterval},
	} {
		if err := s.setDuration(flag, pair.value, pair.dst); err != nil {
			return err
		}
	}

	return nil
}

// ApplyEnvConfig applies BATCHLOAD_* environment variables, e.g. BATCHLOAD_MAX_HANDLERS.
// They override file config but are overridden by explicitly set flags. Every value
// that parses is applied as is and left to Validate.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("topic", getenv("topic"), &cfg.Topic)
	s.setString("log-level", getenv("log-level"), &cfg.LogLevel)

	for flag, dst := range map[string]*int{
		"items":           &cfg.Items,
		"producers":       &cfg.Producers,
		"max-handlers":    &cfg.MaxHandlers,
		"min-batch-size":  &cfg.MinBatchSize,
		"max-batch-size":  &cfg.MaxBatchSize,
		"max-batch-bytes": &cfg.MaxBatchBytes,
		"dispatch-rate":   &cfg.DispatchRate,
		"message-size":    &cfg.MessageSize,
	} {
		if err := s.setIntFromString(flag, getenv(flag), dst); err != nil {
			return err
		}
	}

	if err := s.setFloatFromString("failure-rate", getenv("failure-rate"), &cfg.FailureRate); err != nil {
		return err
	}

	for flag, dst := range map[string]*time.Duration{
		"within":            &cfg.Within,
		"latency":           &cfg.Latency,
		"jitter":            &cfg.Jitter,
		"progress-interval": &cfg.ProgressInterval,
	} {
		if err := s.setDuration(flag, getenv(flag), dst); err != nil {
			return err
		}
	}

	return nil
}

// getenv reads the environment variable matching the given flag name.
func getenv(flag string) string {
	return os.Getenv(envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_")))
}

// configSetter only applies values whose flag has not been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrapf(err, "parse %s", flag)
	}
	*dst = d
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "parse %s", flag)
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrapf(err, "parse %s", flag)
	}
	*dst = f
	return nil
}
