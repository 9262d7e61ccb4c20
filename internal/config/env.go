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
	"strconv"

	"github.com/thestormforge/optimize-tuner/internal/errdefs"
)

const (
	envWorkDir  = "OPTIMIZE_TUNER_WORK_DIR"
	envTarget   = "OPTIMIZE_TUNER_TARGET"
	envTrials   = "OPTIMIZE_TUNER_TRIALS"
	envDatabase = "OPTIMIZE_TUNER_DATABASE"
)

// envLoader adds environment variable overrides to the configuration, explicit overrides win
func envLoader(cfg *TunerConfig) error {
	defaultString(&cfg.Overrides.WorkDir, os.Getenv(envWorkDir))
	defaultString(&cfg.Overrides.Target, os.Getenv(envTarget))
	defaultString(&cfg.Overrides.Database, os.Getenv(envDatabase))
	defaultString(&cfg.Overrides.DatadogAPIKey, firstEnv("DATADOG_API_KEY", "DD_API_KEY"))
	defaultString(&cfg.Overrides.DatadogAppKey, firstEnv("DATADOG_APP_KEY", "DD_APP_KEY"))
	defaultString(&cfg.Overrides.DatadogSite, firstEnv("DATADOG_HOST", "DD_SITE"))

	if v := os.Getenv(envTrials); v != "" && cfg.Overrides.Trials == 0 {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return errdefs.NewConfigurationError("trials", "%s must be a positive integer, got %q", envTrials, v)
		}
		cfg.Overrides.Trials = n
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// EnvironmentMapping returns the environment variables which reproduce the supplied configuration,
// empty values are omitted
func EnvironmentMapping(c *Config) map[string]string {
	env := make(map[string]string)
	add := func(name, value string) {
		if value != "" {
			env[name] = value
		}
	}

	add(envWorkDir, c.WorkDir)
	add(envTarget, c.Target)
	add(envDatabase, c.Database)
	add("DATADOG_API_KEY", c.Datadog.APIKey)
	add("DATADOG_APP_KEY", c.Datadog.AppKey)
	add("DATADOG_HOST", c.Datadog.Site)
	if c.Trials > 0 {
		add(envTrials, strconv.Itoa(c.Trials))
	}
	return env
}
