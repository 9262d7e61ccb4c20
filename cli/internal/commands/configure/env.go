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

package configure

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/internal/config"
)

// EnvOptions are the options for viewing a configuration as environment variables
type EnvOptions struct {
	// Config is the tuner configuration to view
	Config *config.TunerConfig
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// Export prefixes each variable with "export"
	Export bool
}

// NewEnvCommand creates a new command for viewing a configuration as environment variables
func NewEnvCommand(o *EnvOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Generate environment variables from configuration",
		Long:  "View the effective tuner configuration as environment variables",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithoutArgsE(o.env),
	}

	cmd.Flags().BoolVar(&o.Export, "export", false, "prefix each variable for use in a shell")

	return cmd
}

func (o *EnvOptions) env() error {
	c := o.Config.Effective()
	env := config.EnvironmentMapping(&c)

	// Serialize the environment map to a ".env" format
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prefix := ""
	if o.Export {
		prefix = "export "
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(o.Out, "%s%s=%q\n", prefix, k, env[k]); err != nil {
			return err
		}
	}

	return nil
}
