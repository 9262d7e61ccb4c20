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

package commander

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/internal/pipeline"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.PhaseStarted(pipeline.Tuned)
	p.PhaseCompleted(pipeline.Tuned, 1500*time.Millisecond)

	assert.Equal(t, "==> tune...\n==> tune done (Tuned, 1.5s)\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, false)
	log.V(1).Info("hidden")
	log.Info("Tuning session completed", "trials", 4)
	assert.Contains(t, buf.String(), "Tuning session completed")
	assert.Contains(t, buf.String(), `"trials": 4`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	log = NewLogger(&buf, true)
	log.V(1).Info("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestMapErrors(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{Use: "child", RunE: func(*cobra.Command, []string) error { return errors.New("boom") }}
	root.AddCommand(child)

	MapErrors(root, func(err error) error {
		if err != nil {
			return errors.New("mapped: " + err.Error())
		}
		return nil
	})
	root.SetArgs([]string{"child"})
	root.SilenceErrors = true
	root.SilenceUsage = true
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, "mapped: boom", err.Error())
}

func TestAddPreRunE(t *testing.T) {
	var calls []string
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	cmd.PreRun = func(*cobra.Command, []string) { calls = append(calls, "old") }
	AddPreRunE(cmd, func(*cobra.Command, []string) error {
		calls = append(calls, "new")
		return nil
	})
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, []string{"new", "old"}, calls)
}
