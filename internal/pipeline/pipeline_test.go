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

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/backend"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/executor"
	"github.com/thestormforge/optimize-tuner/internal/runner"
	"github.com/thestormforge/optimize-tuner/internal/search"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

type recordingObserver struct {
	started   []State
	completed []State
}

func (o *recordingObserver) PhaseStarted(s State)                    { o.started = append(o.started, s) }
func (o *recordingObserver) PhaseCompleted(s State, _ time.Duration) { o.completed = append(o.completed, s) }

func newPipeline(o Observer) *Pipeline {
	return &Pipeline{
		Tuner:    &tuner.Manager{Engine: &search.Engine{Repeats: 1}},
		Compiler: &compiler.Invoker{Backend: &backend.Native{}},
		Runner:   &runner.Runner{Executor: &executor.Native{ProfileNumber: 1}, Options: runner.Options{Number: 5, Repeat: 1, EndToEnd: true}},
		Observer: o,
	}
}

func TestPipeline_Run(t *testing.T) {
	o := &recordingObserver{}
	p := newPipeline(o)
	plan := &Plan{
		Shape:       workload.ShapeParams{M: 64, K: 64},
		Layout:      workload.LayoutStandard,
		Target:      target.MustParse("llvm -num-cores=1"),
		TrialBudget: 256,
		WorkDir:     filepath.Join(t.TempDir(), "tmp_out"),
	}

	r, err := p.Run(context.TODO(), plan)
	require.NoError(t, err)
	assert.Equal(t, Benchmarked, r.State)
	assert.Equal(t, []State{Built, Tuned, CompiledIR, CompiledExec, Benchmarked}, o.started)
	assert.Equal(t, o.started, o.completed)

	assert.Greater(t, r.Measurement.Mean, 0.0)
	require.Len(t, r.Profile.Operators, 1)
	assert.Equal(t, 256, r.Profile.Operators[0].Trials)
	assert.True(t, r.Profile.Operators[0].Done)
	assert.Equal(t, []string{"fused_nn_matmul"}, r.Lowered.Names())
	assert.NotContains(t, r.Lowered.String(), "cse_var")
	require.NotNil(t, r.Tuning)
	assert.Equal(t, 256, r.Tuning.Tasks[0].Trials)

	// Running again does not add trials and keeps the previous records
	r2, err := p.Run(context.TODO(), plan)
	require.NoError(t, err)
	assert.Equal(t, 256, r2.Profile.Operators[0].Trials)
	assert.LessOrEqual(t, r2.Tuning.Tasks[0].Best, r.Tuning.Tasks[0].Best)
}

func TestPipeline_RunFailures(t *testing.T) {
	tgt := target.MustParse("llvm -num-cores=1")

	testCases := []struct {
		desc          string
		plan          Plan
		expectedPhase string
		expectedState State
		expectedErr   func(error) bool
	}{
		{
			desc:          "invalid shape",
			plan:          Plan{Shape: workload.ShapeParams{M: 0, K: 4}, Target: tgt, TrialBudget: 1, WorkDir: "x"},
			expectedPhase: "build",
			expectedState: Initial,
			expectedErr:   errdefs.IsInvalidShape,
		},
		{
			desc:          "oversized shape",
			plan:          Plan{Shape: workload.ShapeParams{M: 4, K: 1 << 62}, Target: tgt, TrialBudget: 1, WorkDir: "x"},
			expectedPhase: "build",
			expectedState: Initial,
			expectedErr:   errdefs.IsInvalidShape,
		},
		{
			desc:          "missing work dir",
			plan:          Plan{Shape: workload.ShapeParams{M: 4, K: 4}, Target: tgt, TrialBudget: 1},
			expectedPhase: "tune",
			expectedState: Built,
			expectedErr:   errdefs.IsConfiguration,
		},
		{
			desc: "missing input",
			plan: Plan{
				Shape:       workload.ShapeParams{M: 4, K: 64},
				Target:      tgt,
				TrialBudget: 1,
				Inputs:      map[string]*workload.Array{"data": workload.NewArray(workload.Shape{4, 64})},
			},
			expectedPhase: "benchmark",
			expectedState: CompiledExec,
			expectedErr:   errdefs.IsArtifactExecution,
		},
	}
	for _, c := range testCases {
		t.Run(c.desc, func(t *testing.T) {
			if c.plan.WorkDir == "" && c.expectedPhase != "tune" {
				c.plan.WorkDir = t.TempDir()
			}

			r, err := newPipeline(nil).Run(context.TODO(), &c.plan)
			var pe *PhaseError
			if assert.True(t, errors.As(err, &pe), "expected a phase error, got %v", err) {
				assert.Equal(t, c.expectedPhase, pe.Phase)
				assert.Equal(t, c.expectedState, pe.State)
			}
			assert.True(t, c.expectedErr(err), "unexpected error: %v", err)
			assert.Equal(t, c.expectedState, r.State)
		})
	}
}

func TestPipeline_TargetMismatch(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(context.TODO(), database.Options{Dir: dir, Target: "llvm -num-cores=2"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = newPipeline(nil).Run(context.TODO(), &Plan{
		Shape:       workload.ShapeParams{M: 4, K: 64},
		Target:      target.MustParse("llvm -num-cores=1"),
		TrialBudget: 1,
		WorkDir:     dir,
	})
	assert.True(t, errdefs.IsTargetMismatch(err))
}

// untunedTuner simulates a tuning session which recorded no valid candidates.
type untunedTuner struct{}

func (untunedTuner) Tune(ctx context.Context, g *workload.Graph, _ workload.Params, tgt target.Target, _ int, workDir string) (*tuner.Result, error) {
	db, err := database.Open(ctx, database.Options{Dir: workDir, Target: tgt.String()})
	if err != nil {
		return nil, err
	}
	tasks, _ := g.Tasks()
	w, _ := db.CommitWorkload(ctx, tasks[0].Signature(tgt))
	return &tuner.Result{Database: db}, db.CommitRecord(ctx, v1alpha1.TuningRecord{WorkloadKey: w.Key, Error: "mismatch"})
}

func TestPipeline_NoUntunedFallback(t *testing.T) {
	o := &recordingObserver{}
	p := newPipeline(o)
	p.Tuner = untunedTuner{}

	r, err := p.Run(context.TODO(), &Plan{
		Shape:       workload.ShapeParams{M: 4, K: 64},
		Target:      target.MustParse("llvm -num-cores=1"),
		TrialBudget: 1,
		WorkDir:     t.TempDir(),
	})
	assert.True(t, errdefs.IsUntuned(err))
	assert.Contains(t, err.Error(), "lower phase failed: no valid tuning record for fused_nn_matmul")
	assert.Equal(t, Tuned, r.State)
	assert.Nil(t, r.Artifact)
	assert.NotContains(t, o.started, Benchmarked)
}

func TestObservers(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	obs := Observers{a, b}
	obs.PhaseStarted(Built)
	obs.PhaseCompleted(Built, time.Second)
	for _, o := range []*recordingObserver{a, b} {
		assert.Equal(t, []State{Built}, o.started)
		assert.Equal(t, []State{Built}, o.completed)
	}
}

func TestTransition(t *testing.T) {
	assert.NoError(t, Transition(Initial, Built))
	assert.NoError(t, Transition(CompiledExec, Benchmarked))
	assert.True(t, errors.Is(Transition(Built, CompiledIR), ErrInvalidTransition))
	assert.True(t, errors.Is(Transition(Tuned, Built), ErrInvalidTransition))
	assert.True(t, errors.Is(Transition(Benchmarked, Benchmarked+1), ErrInvalidTransition))
	assert.Equal(t, "CompiledIR", CompiledIR.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestPipeline_MissingComponents(t *testing.T) {
	_, err := (&Pipeline{}).Run(context.TODO(), &Plan{})
	assert.True(t, errdefs.IsConfiguration(err))
}
