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

// Package tuning contains the commands which tune, compile and benchmark the workload.
package tuning

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/backend"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/config"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/executor"
	"github.com/thestormforge/optimize-tuner/internal/metrics"
	"github.com/thestormforge/optimize-tuner/internal/report"
	"github.com/thestormforge/optimize-tuner/internal/runner"
	"github.com/thestormforge/optimize-tuner/internal/search"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/template"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

// Options are the configuration shared by the tuning commands
type Options struct {
	// Config is the tuner configuration
	Config *config.TunerConfig
	// Debug enables development logging
	Debug *bool
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// M overrides the configured number of output rows
	M int64
	// K overrides the configured contraction length
	K int64
	// Layout overrides the configured operand layout
	Layout string
	// Seed overrides the configured seed
	Seed int64
	// NoMetrics skips writing the metrics textfile into the work directory
	NoMetrics bool
}

// stack is the set of components assembled from the effective configuration
type stack struct {
	cfg     config.Config
	workDir string
	target  target.Target
	shape   workload.ShapeParams
	layout  workload.Layout
	seed    int64

	log      logr.Logger
	metrics  *metrics.Recorder
	tuner    *tuner.Manager
	compiler *compiler.Invoker
	runner   *runner.Runner
	datadog  *report.Datadog
}

func (o *Options) addWorkloadFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&o.M, "m", 0, "number of output `rows` of the workload")
	cmd.Flags().Int64Var(&o.K, "k", 0, "contraction `length` of the workload")
	cmd.Flags().StringVar(&o.Layout, "layout", "", "operand `layout` of the workload")
	cmd.Flags().Int64Var(&o.Seed, "seed", 0, "seed for candidate order and generated inputs")
	commander.SetFlagValues(cmd, "layout", workload.Layouts()...)
}

// newStack assembles the components from the effective configuration
func (o *Options) newStack() (*stack, error) {
	s := &stack{cfg: o.Config.Effective()}

	var err error
	if s.workDir, err = o.Config.WorkDir(); err != nil {
		return nil, err
	}
	if s.target, err = o.Config.Target(); err != nil {
		return nil, err
	}

	s.shape = workload.ShapeParams{M: s.cfg.Workload.M, K: s.cfg.Workload.K}
	if o.M != 0 {
		s.shape.M = o.M
	}
	if o.K != 0 {
		s.shape.K = o.K
	}
	s.layout = workload.Layout(s.cfg.Workload.Layout)
	if o.Layout != "" {
		s.layout = workload.Layout(o.Layout)
	}
	s.seed = s.cfg.Search.Seed
	if o.Seed != 0 {
		s.seed = o.Seed
	}

	debug := o.Debug != nil && *o.Debug
	s.log = commander.NewLogger(o.ErrOut, debug)
	s.metrics = metrics.NewRecorder()

	warmups := config.DefaultSearchWarmups
	if s.cfg.Search.Warmups != nil {
		warmups = *s.cfg.Search.Warmups
	}
	s.tuner = &tuner.Manager{
		Engine: &search.Engine{
			DatabaseKind: s.cfg.Database,
			Seed:         s.seed,
			Warmups:      warmups,
			Repeats:      s.cfg.Search.Repeats,
			Log:          s.log.WithName("search"),
			Metrics:      s.metrics,
		},
		Log:     s.log.WithName("tuner"),
		Metrics: s.metrics,
	}

	s.compiler = &compiler.Invoker{
		Backend:        &backend.Native{Templates: template.New(), Log: s.log.WithName("backend")},
		Log:            s.log.WithName("compiler"),
		FuseMaxDepth:   s.cfg.Compile.FuseMaxDepth,
		OptLevel:       s.cfg.Compile.OptLevel,
		DisabledPasses: s.cfg.Compile.DisabledPasses,
	}

	opts := runner.Options{
		Number: s.cfg.Benchmark.Number,
		Repeat: s.cfg.Benchmark.Repeat,
		Warmup: s.cfg.Benchmark.Warmup,
	}
	opts.EndToEnd = s.cfg.Benchmark.EndToEnd == nil || *s.cfg.Benchmark.EndToEnd
	s.runner = &runner.Runner{
		Executor: &executor.Native{},
		Options:  opts,
		Log:      s.log.WithName("runner"),
		Metrics:  s.metrics,
	}

	if dd := s.cfg.Datadog; dd.APIKey != "" {
		s.datadog = report.NewDatadog(dd.APIKey, dd.AppKey, dd.Site, dd.Tags)
		s.datadog.Log = s.log.WithName("datadog")
	}

	return s, nil
}

// openDatabase opens the existing tuning database of the work directory without pinning a target, the
// backend kind recorded in the work directory is used
func (s *stack) openDatabase(ctx context.Context, tgt string) (database.Database, error) {
	if !database.Exists(s.workDir) {
		return nil, fmt.Errorf("no tuning database in %s, run the tune command first", s.workDir)
	}
	return database.Open(ctx, database.Options{Dir: s.workDir, Target: tgt, ReadOnly: true})
}

// buildGraph constructs the configured workload
func (s *stack) buildGraph() (*workload.Graph, error) {
	return workload.Build(s.shape, s.layout)
}

// publish sends the benchmark to Datadog when it is configured
func (s *stack) publish(ctx context.Context, b *report.Benchmark) {
	if s.datadog == nil {
		return
	}
	if err := s.datadog.Publish(ctx, b.Target, b.Measurement, b.Profile); err != nil {
		s.log.Error(err, "Failed to publish benchmark")
	}
}

// finish writes the metrics textfile into the work directory
func (o *Options) finish(s *stack) error {
	if o.NoMetrics {
		return nil
	}
	return s.metrics.WriteTextfile(filepath.Join(s.workDir, metrics.TextfileName))
}
