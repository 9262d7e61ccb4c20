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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/config"
)

// WorkDirOptions are the options for viewing the effective work directory
type WorkDirOptions struct {
	// Config is the tuner configuration to view
	Config *config.TunerConfig
	// IOStreams are used to access the standard process streams
	commander.IOStreams
}

// NewWorkDirCommand creates a new command for viewing the effective work directory
func NewWorkDirCommand(o *WorkDirOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work-dir",
		Short: "Displays the effective work directory",
		Long:  "Displays the work directory holding the tuning database",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithoutArgsE(o.workDir),
	}

	return cmd
}

func (o *WorkDirOptions) workDir() error {
	dir, err := o.Config.WorkDir()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Out, dir)
	return err
}
