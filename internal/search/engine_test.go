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

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

func newRequest(t *testing.T, p workload.ShapeParams, layout workload.Layout, budget int, dir string) *tuner.Request {
	g, err := workload.Build(p, layout)
	require.NoError(t, err)
	return &tuner.Request{
		SessionID:   tuner.NewSessionID(),
		Graph:       g,
		Target:      target.MustParse("llvm -num-cores=1"),
		TrialBudget: budget,
		WorkDir:     dir,
	}
}

func TestEngine_Search(t *testing.T) {
	testCases := []struct {
		desc   string
		kind   string
		layout workload.Layout
	}{
		{desc: "json standard", kind: database.KindJSON, layout: workload.LayoutStandard},
		{desc: "json transposed", kind: database.KindJSON, layout: workload.LayoutTransposed},
		{desc: "sqlite standard", kind: database.KindSQLite, layout: workload.LayoutStandard},
	}
	for _, c := range testCases {
		t.Run(c.desc, func(t *testing.T) {
			ctx := context.TODO()
			dir := t.TempDir()
			e := &Engine{DatabaseKind: c.kind, Repeats: 1}

			req := newRequest(t, workload.ShapeParams{M: 16, K: 96}, c.layout, 8, dir)
			db, err := e.Search(ctx, req)
			require.NoError(t, err)

			tasks, err := req.Graph.Tasks()
			require.NoError(t, err)
			wk := tasks[0].Signature(req.Target).Key()

			records, err := db.Records(ctx, wk)
			require.NoError(t, err)
			assert.Len(t, records, 8)
			for _, r := range records {
				assert.True(t, r.Valid, r.Error)
				assert.Greater(t, r.Cost, 0.0)
				_, err := kernel.FromKnobs(r.Knobs)
				assert.NoError(t, err)
			}
			first, err := database.Best(ctx, db, wk)
			require.NoError(t, err)
			require.NotNil(t, first)
			require.NoError(t, db.Close())

			// A larger budget appends new candidates without touching the existing ones
			req2 := newRequest(t, workload.ShapeParams{M: 16, K: 96}, c.layout, 12, dir)
			db, err = e.Search(ctx, req2)
			require.NoError(t, err)
			defer db.Close()

			records2, err := db.Records(ctx, wk)
			require.NoError(t, err)
			assert.Len(t, records2, 12)

			seen := make(map[string]bool)
			trials := make(map[int]bool)
			for _, r := range records2 {
				assert.False(t, seen[r.Candidate], "duplicate candidate %s", r.Candidate)
				seen[r.Candidate] = true
				trials[r.Trial] = true
			}
			for i := 0; i < 12; i++ {
				assert.True(t, trials[i], "missing trial %d", i)
			}
			for _, r := range records {
				assert.True(t, seen[r.Candidate])
			}

			second, err := database.Best(ctx, db, wk)
			require.NoError(t, err)
			assert.LessOrEqual(t, second.Cost, first.Cost)

			st, err := database.TaskStatus(ctx, db, wk)
			require.NoError(t, err)
			assert.Equal(t, database.Status{Trials: 12, Allocation: 12, Done: true}, st)

			sessions, err := db.Sessions(ctx)
			require.NoError(t, err)
			assert.Len(t, sessions, 2)
		})
	}
}

func TestEngine_SearchAtCap(t *testing.T) {
	ctx := context.TODO()
	dir := t.TempDir()
	e := &Engine{Repeats: 1}

	req := newRequest(t, workload.ShapeParams{M: 4, K: 8}, workload.LayoutStandard, 5, dir)
	db, err := e.Search(ctx, req)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Re-running with the same budget does not add trials
	db, err = e.Search(ctx, newRequest(t, workload.ShapeParams{M: 4, K: 8}, workload.LayoutStandard, 5, dir))
	require.NoError(t, err)
	defer db.Close()

	tasks, err := req.Graph.Tasks()
	require.NoError(t, err)
	records, err := db.Records(ctx, tasks[0].Signature(req.Target).Key())
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestEngine_Deterministic(t *testing.T) {
	ctx := context.TODO()
	order := func() []string {
		e := &Engine{Repeats: 1, Seed: 7}
		req := newRequest(t, workload.ShapeParams{M: 4, K: 8}, workload.LayoutStandard, 6, t.TempDir())
		db, err := e.Search(ctx, req)
		require.NoError(t, err)
		defer db.Close()

		tasks, err := req.Graph.Tasks()
		require.NoError(t, err)
		records, err := db.Records(ctx, tasks[0].Signature(req.Target).Key())
		require.NoError(t, err)

		ids := make([]string, len(records))
		for _, r := range records {
			ids[r.Trial] = r.Candidate
		}
		return ids
	}
	assert.Equal(t, order(), order())
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Engine{Repeats: 1}
	_, err := e.Search(ctx, newRequest(t, workload.ShapeParams{M: 4, K: 8}, workload.LayoutStandard, 5, t.TempDir()))
	assert.Equal(t, context.Canceled, err)
}

func TestAllocate(t *testing.T) {
	testCases := []struct {
		desc     string
		flops    []int64
		budget   int
		space    int
		expected []int
	}{
		{desc: "single", flops: []int64{100}, budget: 256, space: 576, expected: []int{256}},
		{desc: "capped", flops: []int64{100}, budget: 1000, space: 576, expected: []int{576}},
		{desc: "weighted", flops: []int64{300, 100}, budget: 8, space: 576, expected: []int{6, 2}},
		{desc: "minimum one", flops: []int64{1000, 1}, budget: 4, space: 576, expected: []int{3, 1}},
		{desc: "remainder", flops: []int64{1, 1, 1}, budget: 5, space: 576, expected: []int{2, 2, 1}},
	}
	for _, c := range testCases {
		t.Run(c.desc, func(t *testing.T) {
			tasks := make([]workload.Task, len(c.flops))
			for i := range c.flops {
				tasks[i].FLOP = c.flops[i]
			}
			assert.Equal(t, c.expected, allocate(tasks, c.budget, c.space))
		})
	}
}
