/*
Copyright 2022 GramLabs, Inc.

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

package configure

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/internal/config"
)

func newTestConfig(t *testing.T) *config.TunerConfig {
	for _, name := range []string{"OPTIMIZE_TUNER_WORK_DIR", "OPTIMIZE_TUNER_TARGET", "OPTIMIZE_TUNER_TRIALS", "OPTIMIZE_TUNER_DATABASE", "DATADOG_API_KEY", "DD_API_KEY"} {
		t.Setenv(name, "")
	}

	cfg := &config.TunerConfig{Filename: filepath.Join(t.TempDir(), "config")}
	require.NoError(t, cfg.Load())
	return cfg
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func TestSet(t *testing.T) {
	cfg := newTestConfig(t)

	testCases := []struct {
		desc     string
		args     []string
		expected string
		err      string
	}{
		{
			desc:     "key value",
			args:     []string{"trials", "64"},
			expected: "trials: 64\n",
		},
		{
			desc:     "key equals value",
			args:     []string{"search.repeats=5"},
			expected: "search:\n  repeats: 5\ntrials: 64\n",
		},
		{
			desc:     "unset",
			args:     []string{"--unset", "trials"},
			expected: "search:\n  repeats: 5\n",
		},
		{
			desc: "unknown",
			args: []string{"search.depth", "5"},
			err:  "invalid configuration: search.depth: unknown config property",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := execute(NewSetCommand(&SetOptions{Config: cfg}), tc.args...)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)

			data, err := ioutil.ReadFile(cfg.Filename)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(data))
		})
	}
}

func TestView(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Overrides.DatadogAPIKey = "secretkey1234"

	testCases := []struct {
		desc     string
		args     []string
		contains []string
		excludes []string
	}{
		{
			desc:     "yaml",
			contains: []string{"target: llvm -num-cores=1\n", "*********1234"},
			excludes: []string{"secretkey"},
		},
		{
			desc:     "json",
			args:     []string{"-o", "json"},
			contains: []string{`"target": "llvm -num-cores=1"`},
		},
		{
			desc:     "secrets",
			args:     []string{"--show-secrets"},
			contains: []string{"apiKey: secretkey1234\n"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			out, err := execute(NewViewCommand(&ViewOptions{Config: cfg}), tc.args...)
			require.NoError(t, err)
			for _, s := range tc.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tc.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestEnv(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Overrides.WorkDir = "/tmp/tune"

	out, err := execute(NewEnvCommand(&EnvOptions{Config: cfg}), "--export")
	require.NoError(t, err)
	assert.Contains(t, out, "export OPTIMIZE_TUNER_WORK_DIR=\"/tmp/tune\"\n")
	assert.Contains(t, out, "export OPTIMIZE_TUNER_TRIALS=\"256\"\n")
}

func TestWorkDir(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := execute(NewWorkDirCommand(&WorkDirOptions{Config: cfg}))
	assert.Error(t, err)

	cfg.Overrides.WorkDir = "/tmp/tune"
	out, err := execute(NewWorkDirCommand(&WorkDirOptions{Config: cfg}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tune\n", out)
}
