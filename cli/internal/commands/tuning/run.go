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

package tuning

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/metrics"
	"github.com/thestormforge/optimize-tuner/internal/pipeline"
	"github.com/thestormforge/optimize-tuner/internal/report"
)

// RunOptions are the options for running the complete pipeline
type RunOptions struct {
	Options
	// Printer is the resource printer used to render the results
	Printer commander.ResourcePrinter

	// Trials overrides the configured trial budget
	Trials int
	// Quiet suppresses the phase progress lines
	Quiet bool

	outputFormat string
}

// NewRunCommand creates a new command for running the complete pipeline
func NewRunCommand(o *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tune, compile and benchmark the workload",
		Long:  "Build the workload, tune it, print its lowered form and measure the compiled result",

		PreRun: func(cmd *cobra.Command, args []string) {
			commander.SetStreams(&o.IOStreams, cmd)
			o.outputFormat, _ = cmd.Flags().GetString("output")
		},
		RunE: commander.WithContextE(o.run),
	}

	o.addWorkloadFlags(cmd)
	cmd.Flags().IntVar(&o.Trials, "trials", 0, "total tuning trial `budget`")
	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "suppress phase progress")
	cmd.Flags().BoolVar(&o.NoMetrics, "no-metrics", false, "skip writing the metrics file into the work directory")

	commander.SetPrinter(report.ProfileTable{}, &o.Printer, cmd)

	return cmd
}

func (o *RunOptions) run(ctx context.Context) error {
	s, err := o.newStack()
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Tuner:    s.tuner,
		Compiler: s.compiler,
		Runner:   s.runner,
		Log:      s.log.WithName("pipeline"),
	}
	observers := pipeline.Observers{phaseMetrics{s.metrics}}
	if !o.Quiet {
		observers = append(observers, commander.NewProgress(o.ErrOut))
	}
	p.Observer = observers

	plan := &pipeline.Plan{
		Shape:       s.shape,
		Layout:      s.layout,
		Target:      s.target,
		TrialBudget: s.cfg.Trials,
		WorkDir:     s.workDir,
		Seed:        s.seed,
	}
	if o.Trials != 0 {
		plan.TrialBudget = o.Trials
	}

	r, err := p.Run(ctx, plan)
	if err != nil {
		// Whatever was tuned is still worth recording
		_ = o.finish(s)
		return err
	}

	b := report.NewBenchmark(s.target.String(), r.Tuning, r.Lowered, r.Measurement, r.Profile)
	s.publish(ctx, b)
	if err := printBenchmark(o.Out, o.Printer, o.outputFormat, b); err != nil {
		return err
	}
	return o.finish(s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isStructured returns true for output formats which marshal the whole result
func isStructured(outputFormat string) bool {
	switch strings.ToLower(outputFormat) {
	case "json", "yaml":
		return true
	}
	return false
}

// phaseMetrics records completed phase durations.
type phaseMetrics struct{ r *metrics.Recorder }

func (phaseMetrics) PhaseStarted(pipeline.State) {}

func (m phaseMetrics) PhaseCompleted(state pipeline.State, elapsed time.Duration) {
	m.r.ObservePhase(state.Phase(), elapsed)
}
