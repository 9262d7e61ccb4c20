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

package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Options is the configuration for creation shell completion scripts
type Options struct {
	// Shell is the name of the shell the script is generated for
	Shell string
	// NoDescriptions omits the command descriptions from the completions
	NoDescriptions bool
}

// NewCommand returns a new shell completion command
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion SHELL",
		Short: "Output shell completion code",
		Long:  "Output shell completion code which can be evaluated to provide interactive completion of commands.",

		Example: `# Load the completion code for bash into the current shell
source <(optimize-tuner completion bash)
# Set the completion code for zsh to autoload (assuming '$ZSH/completions' is part of 'fpath')
optimize-tuner completion zsh > $ZSH/completions/_optimize-tuner`,

		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"bash", "fish", "powershell", "zsh"},

		PreRun: func(_ *cobra.Command, args []string) { o.Shell = args[0] },
		RunE:   func(cmd *cobra.Command, _ []string) error { return o.completion(cmd) },
	}

	cmd.Flags().BoolVar(&o.NoDescriptions, "no-descriptions", false, "disable completion descriptions")

	return cmd
}

func (o *Options) completion(cmd *cobra.Command) error {
	root, out := cmd.Root(), cmd.OutOrStdout()
	switch o.Shell {
	case "bash":
		return root.GenBashCompletionV2(out, !o.NoDescriptions)
	case "fish":
		return root.GenFishCompletion(out, !o.NoDescriptions)
	case "powershell":
		if o.NoDescriptions {
			return root.GenPowerShellCompletion(out)
		}
		return root.GenPowerShellCompletionWithDesc(out)
	case "zsh":
		if o.NoDescriptions {
			return root.GenZshCompletionNoDesc(out)
		}
		return root.GenZshCompletion(out)
	default:
		return fmt.Errorf("completion is not implemented for %s", o.Shell)
	}
}
