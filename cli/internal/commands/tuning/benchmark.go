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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/report"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

// BenchmarkOptions are the options for benchmarking the tuned workload
type BenchmarkOptions struct {
	Options
	// Printer is the resource printer used to render the results
	Printer commander.ResourcePrinter

	outputFormat string
}

// NewBenchmarkCommand creates a new command for benchmarking the workload against an existing tuning database
func NewBenchmarkCommand(o *BenchmarkOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Benchmark the tuned workload",
		Long:  "Compile the workload against the existing tuning database, then measure and profile it",

		PreRun: func(cmd *cobra.Command, args []string) {
			commander.SetStreams(&o.IOStreams, cmd)
			o.outputFormat, _ = cmd.Flags().GetString("output")
		},
		RunE: commander.WithContextE(o.benchmark),
	}

	o.addWorkloadFlags(cmd)
	cmd.Flags().BoolVar(&o.NoMetrics, "no-metrics", false, "skip writing the metrics file into the work directory")

	commander.SetPrinter(report.ProfileTable{}, &o.Printer, cmd)

	return cmd
}

func (o *BenchmarkOptions) benchmark(ctx context.Context) error {
	s, err := o.newStack()
	if err != nil {
		return err
	}

	g, err := s.buildGraph()
	if err != nil {
		return err
	}

	db, err := s.openDatabase(ctx, s.target.String())
	if err != nil {
		return err
	}
	defer db.Close()

	art, err := s.compiler.Compile(ctx, g, nil, db, s.target)
	if err != nil {
		return err
	}

	inputs, err := workload.RandomInputs(g, nil, s.seed)
	if err != nil {
		return err
	}

	m, p, err := s.runner.Run(ctx, art, s.target, inputs)
	if err != nil {
		return err
	}

	b := report.NewBenchmark(s.target.String(), nil, nil, m, p)
	s.publish(ctx, b)
	if err := printBenchmark(o.Out, o.Printer, o.outputFormat, b); err != nil {
		return err
	}
	return o.finish(s)
}

// printBenchmark renders the benchmark, table formats get the lowered functions and measurement as text first
func printBenchmark(w io.Writer, printer commander.ResourcePrinter, outputFormat string, b *report.Benchmark) error {
	if isStructured(outputFormat) {
		return printer.PrintObj(b, w)
	}

	for _, name := range sortedKeys(b.Lowered) {
		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", name, b.Lowered[name]); err != nil {
			return err
		}
	}
	if b.Tuning != nil {
		if _, err := fmt.Fprintln(w, b.Tuning.String()); err != nil {
			return err
		}
	}
	if m := b.Measurement; m != nil {
		if _, err := fmt.Fprintf(w, "Execution time summary (%d x %d, end-to-end=%t):\n  mean=%.4f ms median=%.4f ms max=%.4f ms min=%.4f ms std=%.4f ms\n\n",
			m.Repeat, m.Number, m.EndToEnd, m.Mean*1e3, m.Median*1e3, m.Max*1e3, m.Min*1e3, m.Std*1e3); err != nil {
			return err
		}
	}
	return printer.PrintObj(b, w)
}
