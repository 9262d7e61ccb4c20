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

package tuner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/zapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// fakeEngine records a fixed number of trials per task.
type fakeEngine struct {
	err   error
	calls int
}

func (e *fakeEngine) Search(ctx context.Context, req *Request) (database.Database, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}

	db, err := database.Open(ctx, database.Options{Dir: req.WorkDir, Target: req.Target.String()})
	if err != nil {
		return nil, err
	}

	tasks, err := req.Graph.Tasks()
	if err != nil {
		return nil, err
	}

	alloc := make(map[string]int)
	for i := range tasks {
		w, err := db.CommitWorkload(ctx, tasks[i].Signature(req.Target))
		if err != nil {
			return nil, err
		}
		alloc[w.Key] = req.TrialBudget
		for trial := 0; trial < req.TrialBudget; trial++ {
			if err := db.CommitRecord(ctx, v1alpha1.TuningRecord{WorkloadKey: w.Key, Trial: trial, Cost: 1.0 / float64(trial+1), Valid: true}); err != nil {
				return nil, err
			}
		}
	}
	return db, db.CommitSession(ctx, v1alpha1.Session{ID: req.SessionID, Target: req.Target.String(), TrialBudget: req.TrialBudget, Allocations: alloc})
}

func TestManager_Tune(t *testing.T) {
	ctx := context.TODO()
	tgt := target.MustParse("llvm -num-cores=1")
	g, err := workload.Build(workload.ShapeParams{M: 4, K: 8}, workload.LayoutStandard)
	require.NoError(t, err)

	testCases := []struct {
		desc        string
		workDir     string
		trials      int
		tgt         target.Target
		engineErr   error
		expectedErr func(error) bool
	}{
		{
			desc:        "missing work dir",
			trials:      4,
			tgt:         tgt,
			expectedErr: errdefs.IsConfiguration,
		},
		{
			desc:        "zero trials",
			workDir:     "tmp_out",
			tgt:         tgt,
			expectedErr: errdefs.IsConfiguration,
		},
		{
			desc:        "missing target",
			workDir:     "tmp_out",
			trials:      4,
			expectedErr: errdefs.IsConfiguration,
		},
		{
			desc:        "engine failure",
			workDir:     "tmp_out",
			trials:      4,
			tgt:         tgt,
			engineErr:   errors.New("boom"),
			expectedErr: errdefs.IsDelegateFailure,
		},
		{
			desc:        "typed engine failure",
			workDir:     "tmp_out",
			trials:      4,
			tgt:         tgt,
			engineErr:   &errdefs.TargetMismatchError{Database: "a", Requested: "b"},
			expectedErr: errdefs.IsTargetMismatch,
		},
	}
	for _, c := range testCases {
		t.Run(c.desc, func(t *testing.T) {
			workDir := c.workDir
			if workDir != "" {
				workDir = filepath.Join(t.TempDir(), workDir)
			}

			e := &fakeEngine{err: c.engineErr}
			m := &Manager{Engine: e, Log: zapr.NewLogger(zap.NewNop())}
			_, err := m.Tune(ctx, g, nil, c.tgt, c.trials, workDir)
			if assert.Error(t, err) {
				assert.True(t, c.expectedErr(err), "unexpected error: %v", err)
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		workDir := filepath.Join(t.TempDir(), "a", "b")
		m := &Manager{Engine: &fakeEngine{}}

		r, err := m.Tune(ctx, g, nil, tgt, 3, workDir)
		require.NoError(t, err)
		defer r.Database.Close()

		fi, err := os.Stat(workDir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())

		assert.NotEmpty(t, r.Summary.SessionID)
		if assert.Len(t, r.Summary.Tasks, 1) {
			assert.Equal(t, "fused_nn_matmul", r.Summary.Tasks[0].Name)
			assert.Equal(t, 3, r.Summary.Tasks[0].Trials)
			assert.True(t, r.Summary.Tasks[0].Done)
			assert.InDelta(t, 1.0/3, r.Summary.Tasks[0].Best, 1e-9)
		}
		assert.Contains(t, r.Summary.String(), "fused_nn_matmul: trials=3 done=true")
	})
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
