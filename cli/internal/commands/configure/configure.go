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

// Package configure contains the commands for viewing and modifying the tuner configuration.
package configure

import (
	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/internal/config"
)

// Options is the configuration for the configuration commands
type Options struct {
	// Config is the tuner configuration
	Config *config.TunerConfig
}

// NewCommand creates a new command for working with the configuration
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with the configuration file",
		Long:  "View and modify the tuner configuration file",
	}

	cmd.AddCommand(NewViewCommand(&ViewOptions{Config: o.Config}))
	cmd.AddCommand(NewSetCommand(&SetOptions{Config: o.Config}))
	cmd.AddCommand(NewEnvCommand(&EnvOptions{Config: o.Config}))
	cmd.AddCommand(NewWorkDirCommand(&WorkDirOptions{Config: o.Config}))

	return cmd
}
