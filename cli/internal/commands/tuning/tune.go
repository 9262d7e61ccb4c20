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

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
)

// TuneOptions are the options for running a tuning session
type TuneOptions struct {
	Options

	// Trials overrides the configured trial budget
	Trials int
}

// NewTuneCommand creates a new command for tuning the workload
func NewTuneCommand(o *TuneOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Tune the workload schedules",
		Long:  "Run a tuning session, appending trials to the database in the work directory until the budget is met",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.tune),
	}

	o.addWorkloadFlags(cmd)
	cmd.Flags().IntVar(&o.Trials, "trials", 0, "total tuning trial `budget`")
	cmd.Flags().BoolVar(&o.NoMetrics, "no-metrics", false, "skip writing the metrics file into the work directory")

	return cmd
}

func (o *TuneOptions) tune(ctx context.Context) error {
	s, err := o.newStack()
	if err != nil {
		return err
	}

	g, err := s.buildGraph()
	if err != nil {
		return err
	}

	trials := s.cfg.Trials
	if o.Trials != 0 {
		trials = o.Trials
	}

	res, err := s.tuner.Tune(ctx, g, nil, s.target, trials, s.workDir)
	if err != nil {
		return err
	}
	defer res.Database.Close()

	if _, err := fmt.Fprint(o.Out, res.Summary.String()); err != nil {
		return err
	}
	return o.finish(s)
}
