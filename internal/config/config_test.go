/*
Copyright 2020 GramLabs, Inc.

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
)

func TestTunerConfig_Load(t *testing.T) {
	for _, name := range []string{envWorkDir, envTarget, envTrials, envDatabase, "DATADOG_API_KEY", "DD_API_KEY"} {
		t.Setenv(name, "")
	}

	testCases := []struct {
		desc      string
		file      string
		env       map[string]string
		overrides Overrides
		expected  func(t *testing.T, c Config)
		err       string
	}{
		{
			desc: "defaults",
			expected: func(t *testing.T, c Config) {
				assert.Equal(t, "", c.WorkDir)
				assert.Equal(t, DefaultTarget, c.Target)
				assert.Equal(t, DefaultTrials, c.Trials)
				assert.Equal(t, "json", c.Database)
				assert.Equal(t, int64(9216), c.Workload.M)
				assert.Equal(t, int64(9216), c.Workload.K)
				assert.Equal(t, "standard", c.Workload.Layout)
				assert.Equal(t, 3, c.Search.Repeats)
				assert.Equal(t, 1, *c.Search.Warmups)
				assert.Equal(t, 30, c.Compile.FuseMaxDepth)
				assert.Equal(t, 3, *c.Compile.OptLevel)
				assert.Equal(t, 100, c.Benchmark.Number)
				assert.Equal(t, 1, c.Benchmark.Repeat)
				assert.True(t, *c.Benchmark.EndToEnd)
			},
		},
		{
			desc: "file",
			file: "workDir: /tmp/tune\ntrials: 64\nworkload:\n  m: 64\n  k: 128\nsearch:\n  warmups: 0\n",
			expected: func(t *testing.T, c Config) {
				assert.Equal(t, "/tmp/tune", c.WorkDir)
				assert.Equal(t, 64, c.Trials)
				assert.Equal(t, int64(64), c.Workload.M)
				assert.Equal(t, int64(128), c.Workload.K)
				assert.Equal(t, 0, *c.Search.Warmups)
			},
		},
		{
			desc: "json file",
			file: `{"target": "llvm -num-cores=4", "database": "sqlite"}`,
			expected: func(t *testing.T, c Config) {
				assert.Equal(t, "llvm -num-cores=4", c.Target)
				assert.Equal(t, "sqlite", c.Database)
			},
		},
		{
			desc: "environment",
			file: "trials: 64\n",
			env:  map[string]string{envTrials: "32", envWorkDir: "/env", "DD_API_KEY": "secret"},
			expected: func(t *testing.T, c Config) {
				assert.Equal(t, 32, c.Trials)
				assert.Equal(t, "/env", c.WorkDir)
				assert.Equal(t, "secret", c.Datadog.APIKey)
			},
		},
		{
			desc:      "overrides win",
			env:       map[string]string{envTrials: "32", envWorkDir: "/env"},
			overrides: Overrides{Trials: 8, WorkDir: "/flag"},
			expected: func(t *testing.T, c Config) {
				assert.Equal(t, 8, c.Trials)
				assert.Equal(t, "/flag", c.WorkDir)
			},
		},
		{
			desc: "invalid trials",
			env:  map[string]string{envTrials: "many"},
			err:  "invalid configuration: trials",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg := &TunerConfig{Filename: filepath.Join(t.TempDir(), "config"), Overrides: tc.overrides}
			if tc.file != "" {
				require.NoError(t, os.WriteFile(cfg.Filename, []byte(tc.file), 0600))
			}

			err := cfg.Load()
			if tc.err != "" {
				assert.True(t, errdefs.IsConfiguration(err))
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			tc.expected(t, cfg.Effective())
		})
	}
}

func TestTunerConfig_WorkDir(t *testing.T) {
	t.Setenv(envWorkDir, "")

	cfg := &TunerConfig{Filename: filepath.Join(t.TempDir(), "config")}
	require.NoError(t, cfg.Load())

	_, err := cfg.WorkDir()
	assert.True(t, errdefs.IsConfiguration(err))

	cfg.Overrides.WorkDir = "/work"
	dir, err := cfg.WorkDir()
	require.NoError(t, err)
	assert.Equal(t, "/work", dir)

	tgt, err := cfg.Target()
	require.NoError(t, err)
	assert.Equal(t, "llvm -num-cores=1", tgt.String())
}

func TestTunerConfig_Write(t *testing.T) {
	t.Setenv(envTrials, "")
	filename := filepath.Join(t.TempDir(), "optimize-tuner", "config")

	cfg := &TunerConfig{Filename: filename}
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.Update(SetProperty("trials", "42")))
	require.NoError(t, cfg.Update(SetProperty("compile.disabledPasses", "tir.UnrollLoop, tir.CommonSubexprElim")))
	assert.Equal(t, 42, cfg.Effective().Trials)
	require.NoError(t, cfg.Write())

	// Only the changes are persisted, defaults are not
	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "compile:\n  disabledPasses:\n  - tir.UnrollLoop\n  - tir.CommonSubexprElim\ntrials: 42\n", string(data))

	reloaded := &TunerConfig{Filename: filename}
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 42, reloaded.Effective().Trials)
	assert.Equal(t, []string{"tir.UnrollLoop", "tir.CommonSubexprElim"}, reloaded.Effective().Compile.DisabledPasses)
}

func TestSetProperty(t *testing.T) {
	testCases := []struct {
		desc     string
		name     string
		value    string
		expected func(t *testing.T, c *Config)
		err      bool
	}{
		{
			desc:  "target",
			name:  "target",
			value: "cuda",
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, "cuda", c.Target)
			},
		},
		{
			desc:  "invalid target",
			name:  "target",
			value: "fpga",
			err:   true,
		},
		{
			desc:  "end to end",
			name:  "benchmark.endToEnd",
			value: "false",
			expected: func(t *testing.T, c *Config) {
				assert.False(t, *c.Benchmark.EndToEnd)
			},
		},
		{
			desc:  "opt level zero",
			name:  "compile.optLevel",
			value: "0",
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 0, *c.Compile.OptLevel)
			},
		},
		{
			desc:  "not a number",
			name:  "workload.m",
			value: "big",
			err:   true,
		},
		{
			desc:  "unknown",
			name:  "workload.n",
			value: "1",
			err:   true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			c := &Config{}
			err := SetProperty(tc.name, tc.value)(c)
			if tc.err {
				assert.True(t, errdefs.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			tc.expected(t, c)
		})
	}
}

func TestEnvironmentMapping(t *testing.T) {
	c := &Config{
		WorkDir: "/tmp/tune",
		Target:  DefaultTarget,
		Trials:  16,
		Datadog: Datadog{APIKey: "secret"},
	}
	assert.Equal(t, map[string]string{
		"OPTIMIZE_TUNER_WORK_DIR": "/tmp/tune",
		"OPTIMIZE_TUNER_TARGET":   "llvm -num-cores=1",
		"OPTIMIZE_TUNER_TRIALS":   "16",
		"DATADOG_API_KEY":         "secret",
	}, EnvironmentMapping(c))
}

func TestPropertyNames(t *testing.T) {
	for _, name := range PropertyNames() {
		t.Run(name, func(t *testing.T) {
			err := SetProperty(name, "1")(&Config{})
			assert.False(t, err != nil && strings.Contains(err.Error(), "unknown config property"))
		})
	}
}

func TestUnsetProperty(t *testing.T) {
	optLevel := 0
	c := &Config{
		Trials:  16,
		Compile: Compile{OptLevel: &optLevel, FuseMaxDepth: 4},
	}

	require.NoError(t, UnsetProperty("compile.optLevel")(c))
	assert.Nil(t, c.Compile.OptLevel)
	assert.Equal(t, 4, c.Compile.FuseMaxDepth)
	assert.Equal(t, 16, c.Trials)

	require.NoError(t, UnsetProperty("benchmark.number")(c))
	assert.True(t, errdefs.IsConfiguration(UnsetProperty("compile.level")(c)))
}
