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

package commands

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/thestormforge/optimize-tuner/cli/internal/commander"
	"github.com/thestormforge/optimize-tuner/cli/internal/commands/completion"
	"github.com/thestormforge/optimize-tuner/cli/internal/commands/configure"
	"github.com/thestormforge/optimize-tuner/cli/internal/commands/docs"
	"github.com/thestormforge/optimize-tuner/cli/internal/commands/tuning"
	"github.com/thestormforge/optimize-tuner/cli/internal/commands/version"
	"github.com/thestormforge/optimize-tuner/internal/config"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
)

// NewRootCommand creates a new top-level command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "optimize-tuner",
		Short:             "Tune, compile and benchmark tensor programs",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	// Create a global configuration
	cfg := &config.TunerConfig{}
	commander.ConfigGlobals(cfg, rootCmd)

	debug := false
	commander.LoggingGlobals(&debug, rootCmd)

	opts := tuning.Options{Config: cfg, Debug: &debug}

	// Tuning Commands
	rootCmd.AddCommand(tuning.NewRunCommand(&tuning.RunOptions{Options: opts}))
	rootCmd.AddCommand(tuning.NewTuneCommand(&tuning.TuneOptions{Options: opts}))
	rootCmd.AddCommand(tuning.NewLowerCommand(&tuning.LowerOptions{Options: opts}))
	rootCmd.AddCommand(tuning.NewBenchmarkCommand(&tuning.BenchmarkOptions{Options: opts}))
	rootCmd.AddCommand(tuning.NewRecordsCommand(&tuning.RecordsOptions{Options: opts}))

	// Administrative Commands
	rootCmd.AddCommand(configure.NewCommand(&configure.Options{Config: cfg}))
	rootCmd.AddCommand(completion.NewCommand(&completion.Options{}))
	rootCmd.AddCommand(version.NewCommand(&version.Options{}))
	rootCmd.AddCommand(docs.NewCommand(&docs.Options{}))

	commander.MapErrors(rootCmd, mapError)
	return rootCmd
}

// mapError intercepts errors returned by commands before they are reported.
func mapError(err error) error {
	switch {
	case errdefs.IsTargetMismatch(err):
		return fmt.Errorf("%w, use a new work directory or the original target", err)
	case errdefs.IsUntuned(err):
		return fmt.Errorf("%w, try running 'optimize-tuner tune' with a larger trial budget", err)
	}

	// It's really annoying to just get an "exit status was one" message.
	var e *exec.ExitError
	if errors.As(err, &e) && !e.Success() && len(e.Stderr) > 0 {
		return fmt.Errorf("%w\n%s", err, string(e.Stderr))
	}

	return err
}
