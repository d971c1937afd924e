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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
drain:
  concurrency: 8
  pod_timeout: 5m
aws:
  region: eu-central-1
  profile: staging
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Drain.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Drain.PodTimeout)
	assert.Equal(t, 2, cfg.Drain.PodWorkers, "unset keys keep defaults")
	assert.Equal(t, "eu-central-1", cfg.AWS.Region)
	assert.Equal(t, "staging", cfg.AWS.Profile)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "drain:\n  concurrency: 0\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBackoffInversion(t *testing.T) {
	path := writeConfig(t, "drain:\n  backoff_base: 30s\n  backoff_cap: 1s\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
