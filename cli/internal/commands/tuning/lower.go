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

// LowerOptions are the options for printing the lowered representation
type LowerOptions struct {
	Options
}

// NewLowerCommand creates a new command for printing the lowered representation of the tuned workload
func NewLowerCommand(o *LowerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lower",
		Short: "Print the lowered representation",
		Long:  "Compile the workload against the existing tuning database and print the lowered form of every function",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.lower),
	}

	o.addWorkloadFlags(cmd)

	return cmd
}

func (o *LowerOptions) lower(ctx context.Context) error {
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

	c, err := s.compiler.CaptureLowered(ctx, g, nil, db, s.target)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(o.Out, c.String())
	return err
}
