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

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/report"
)

// RecordsOptions are the options for listing tuning records
type RecordsOptions struct {
	Options
	// Printer is the resource printer used to render the records
	Printer commander.ResourcePrinter

	// Limit is the maximum number of records listed per workload
	Limit int
}

// NewRecordsCommand creates a new command for listing the ranked tuning records
func NewRecordsCommand(o *RecordsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List ranked tuning records",
		Long:  "List the tuning records of every workload in the work directory, best first",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.records),
	}

	cmd.Flags().IntVarP(&o.Limit, "limit", "l", 0, "maximum `number` of records per workload, 0 for all")

	commander.SetPrinter(report.RecordTable{}, &o.Printer, cmd)

	return cmd
}

func (o *RecordsOptions) records(ctx context.Context) error {
	s, err := o.newStack()
	if err != nil {
		return err
	}

	db, err := s.openDatabase(ctx, "")
	if err != nil {
		return err
	}
	defer db.Close()

	l, err := report.Records(ctx, db, o.Limit)
	if err != nil {
		return err
	}
	return o.Printer.PrintObj(l, o.Out)
}
