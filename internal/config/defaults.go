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
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/runner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

const (
	// DefaultTarget is used when no target is configured
	DefaultTarget = "llvm -num-cores=1"
	// DefaultTrials is the default tuning budget
	DefaultTrials = 256
	// DefaultDimension is the default value of both M and K
	DefaultDimension = 9216
	// DefaultSearchRepeats is the default number of timed runs per candidate
	DefaultSearchRepeats = 3
	// DefaultSearchWarmups is the default number of untimed runs per candidate
	DefaultSearchWarmups = 1
)

// The default loader must NEVER make changes via TunerConfig.Update or TunerConfig.unpersisted

func defaultLoader(cfg *TunerConfig) error {
	c := &cfg.data
	// No default for the work directory, it must be explicit
	defaultString(&c.Target, DefaultTarget)
	defaultInt(&c.Trials, DefaultTrials)
	defaultString(&c.Database, database.KindJSON)

	defaultInt64(&c.Workload.M, DefaultDimension)
	defaultInt64(&c.Workload.K, DefaultDimension)
	defaultString(&c.Workload.Layout, string(workload.LayoutStandard))

	defaultInt(&c.Search.Repeats, DefaultSearchRepeats)
	defaultIntPtr(&c.Search.Warmups, DefaultSearchWarmups)

	defaultInt(&c.Compile.FuseMaxDepth, compiler.DefaultFuseMaxDepth)
	defaultIntPtr(&c.Compile.OptLevel, compiler.MaxOptLevel)

	opts := runner.DefaultOptions()
	defaultInt(&c.Benchmark.Number, opts.Number)
	defaultInt(&c.Benchmark.Repeat, opts.Repeat)
	if c.Benchmark.EndToEnd == nil {
		c.Benchmark.EndToEnd = &opts.EndToEnd
	}
	return nil
}

// defaultString overwrites an empty s1 with the value of s2
func defaultString(s1 *string, s2 string) {
	if *s1 == "" {
		*s1 = s2
	}
}

func defaultInt(i1 *int, i2 int) {
	if *i1 == 0 {
		*i1 = i2
	}
}

func defaultInt64(i1 *int64, i2 int64) {
	if *i1 == 0 {
		*i1 = i2
	}
}

func defaultIntPtr(i1 **int, i2 int) {
	if *i1 == nil {
		*i1 = &i2
	}
}
