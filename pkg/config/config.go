/*
Copyright 2026 The knode Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads optional per-user defaults for the CLI. All values
// have working built-in defaults; a missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the user's knode configuration.
type Config struct {
	Drain DrainConfig `koanf:"drain"`
	AWS   AWSConfig   `koanf:"aws"`
}

// DrainConfig tunes drain batches.
type DrainConfig struct {
	Concurrency int           `koanf:"concurrency"`
	PodWorkers  int           `koanf:"pod_workers"`
	PodTimeout  time.Duration `koanf:"pod_timeout"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffCap  time.Duration `koanf:"backoff_cap"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// AWSConfig selects the AWS account context for node group operations.
type AWSConfig struct {
	Region  string `koanf:"region"`
	Profile string `koanf:"profile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Drain: DrainConfig{
			Concurrency: 4,
			PodWorkers:  2,
			PodTimeout:  2 * time.Minute,
			BackoffBase: 500 * time.Millisecond,
			BackoffCap:  15 * time.Second,
			MaxAttempts: 5,
		},
	}
}

// DefaultPath returns the standard config file location,
// ~/.config/knode/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "knode", "config.yaml")
}

// Load reads configPath over the built-in defaults. An empty path means the
// default location; a missing file at the default location is fine, but an
// explicitly given path must exist.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}

	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate rejects values the drain engine cannot run with.
func (c *Config) Validate() error {
	d := c.Drain
	switch {
	case d.Concurrency <= 0:
		return fmt.Errorf("drain.concurrency must be positive")
	case d.PodWorkers <= 0:
		return fmt.Errorf("drain.pod_workers must be positive")
	case d.PodTimeout <= 0:
		return fmt.Errorf("drain.pod_timeout must be positive")
	case d.MaxAttempts <= 0:
		return fmt.Errorf("drain.max_attempts must be positive")
	case d.BackoffBase <= 0 || d.BackoffCap < d.BackoffBase:
		return fmt.Errorf("drain backoff must satisfy 0 < base <= cap")
	}
	return nil
}
