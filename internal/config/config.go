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

// Package config loads, merges and persists the tuner configuration.
package config

import (
	"encoding/json"

	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/target"
)

// Loader is used to initially populate a tuner configuration
type Loader func(cfg *TunerConfig) error

// Change is used to apply a configuration change that should be persisted
type Change func(cfg *Config) error

// TunerConfig is the structure used to manage configuration data
type TunerConfig struct {
	// Filename is the path to the configuration file; if left blank, it will be populated using XDG base directory conventions on the next Load
	Filename string
	// Overrides are values which take precedence over the configuration data, they are never persisted
	Overrides Overrides

	data        Config
	unpersisted []Change
}

// MarshalJSON ensures only the effective configuration data is marshalled
func (tc *TunerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(tc.Effective())
}

// Load will populate the configuration
func (tc *TunerConfig) Load(extra ...Loader) error {
	var loaders []Loader
	loaders = append(loaders, fileLoader)
	loaders = append(loaders, extra...)
	loaders = append(loaders, envLoader, defaultLoader)
	for i := range loaders {
		if err := loaders[i](tc); err != nil {
			return err
		}
	}
	return nil
}

// Update will make a change to the configuration data that should be persisted on the next call to Write
func (tc *TunerConfig) Update(change Change) error {
	if err := change(&tc.data); err != nil {
		return err
	}
	tc.unpersisted = append(tc.unpersisted, change)
	return nil
}

// Write all unpersisted changes to disk
func (tc *TunerConfig) Write() error {
	if tc.Filename == "" || len(tc.unpersisted) == 0 {
		return nil
	}

	f := file{}
	if err := f.read(tc.Filename); err != nil {
		return err
	}

	for i := range tc.unpersisted {
		if err := tc.unpersisted[i](&f.data); err != nil {
			return err
		}
	}

	if err := f.write(tc.Filename); err != nil {
		return err
	}

	tc.unpersisted = nil
	return nil
}

// Merge combines the supplied data with what is already present in this configuration; unlike Update, changes
// will not be persisted on the next write
func (tc *TunerConfig) Merge(data *Config) {
	mergeConfig(&tc.data, data)
}

// Effective returns a copy of the configuration data with the overrides applied
func (tc *TunerConfig) Effective() Config {
	c := tc.data
	c.Compile.DisabledPasses = append([]string(nil), tc.data.Compile.DisabledPasses...)
	c.Datadog.Tags = append([]string(nil), tc.data.Datadog.Tags...)
	tc.Overrides.apply(&c)
	return c
}

// WorkDir returns the work directory, failing if none was configured
func (tc *TunerConfig) WorkDir() (string, error) {
	c := tc.Effective()
	if c.WorkDir == "" {
		return "", errdefs.NewConfigurationError("workDir", "a work directory is required (use --work-dir or %s)", envWorkDir)
	}
	return c.WorkDir, nil
}

// Target returns the parsed target description
func (tc *TunerConfig) Target() (target.Target, error) {
	return target.Parse(tc.Effective().Target)
}

// mergeConfig overwrites values in c1 with non-empty values from c2
func mergeConfig(c1, c2 *Config) {
	mergeString(&c1.WorkDir, c2.WorkDir)
	mergeString(&c1.Target, c2.Target)
	mergeInt(&c1.Trials, c2.Trials)
	mergeString(&c1.Database, c2.Database)

	mergeInt64(&c1.Workload.M, c2.Workload.M)
	mergeInt64(&c1.Workload.K, c2.Workload.K)
	mergeString(&c1.Workload.Layout, c2.Workload.Layout)

	mergeInt(&c1.Search.Repeats, c2.Search.Repeats)
	mergeIntPtr(&c1.Search.Warmups, c2.Search.Warmups)
	mergeInt64(&c1.Search.Seed, c2.Search.Seed)

	mergeInt(&c1.Compile.FuseMaxDepth, c2.Compile.FuseMaxDepth)
	mergeIntPtr(&c1.Compile.OptLevel, c2.Compile.OptLevel)
	if len(c2.Compile.DisabledPasses) > 0 {
		c1.Compile.DisabledPasses = append([]string(nil), c2.Compile.DisabledPasses...)
	}

	mergeInt(&c1.Benchmark.Number, c2.Benchmark.Number)
	mergeInt(&c1.Benchmark.Repeat, c2.Benchmark.Repeat)
	mergeInt(&c1.Benchmark.Warmup, c2.Benchmark.Warmup)
	if c2.Benchmark.EndToEnd != nil {
		v := *c2.Benchmark.EndToEnd
		c1.Benchmark.EndToEnd = &v
	}

	mergeString(&c1.Datadog.APIKey, c2.Datadog.APIKey)
	mergeString(&c1.Datadog.AppKey, c2.Datadog.AppKey)
	mergeString(&c1.Datadog.Site, c2.Datadog.Site)
	if len(c2.Datadog.Tags) > 0 {
		c1.Datadog.Tags = append([]string(nil), c2.Datadog.Tags...)
	}
}

func mergeString(s1 *string, s2 string) {
	if s2 != "" {
		*s1 = s2
	}
}

func mergeInt(i1 *int, i2 int) {
	if i2 != 0 {
		*i1 = i2
	}
}

func mergeInt64(i1 *int64, i2 int64) {
	if i2 != 0 {
		*i1 = i2
	}
}

func mergeIntPtr(i1 **int, i2 *int) {
	if i2 != nil {
		v := *i2
		*i1 = &v
	}
}
