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

package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/backend"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/runner"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

func compileTuned(t *testing.T, p workload.ShapeParams, params workload.Params) (*workload.Graph, compiler.Artifact) {
	ctx := context.TODO()
	tgt := target.MustParse("llvm -num-cores=1")
	g, err := workload.Build(p, workload.LayoutStandard)
	require.NoError(t, err)

	db, err := database.Open(ctx, database.Options{Dir: t.TempDir(), Target: tgt.String()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks, err := g.Tasks()
	require.NoError(t, err)
	w, err := db.CommitWorkload(ctx, tasks[0].Signature(tgt))
	require.NoError(t, err)
	s := kernel.Schedule{TileM: 2, TileK: 64, Unroll: 2, Order: kernel.OrderRowDot, Threads: 1}
	require.NoError(t, db.CommitRecord(ctx, v1alpha1.TuningRecord{WorkloadKey: w.Key, Candidate: s.ID(), Knobs: s.Knobs(), Cost: 1, Valid: true}))
	require.NoError(t, db.CommitSession(ctx, v1alpha1.Session{ID: "s", Allocations: map[string]int{w.Key: 1}}))

	inv := &compiler.Invoker{Backend: &backend.Native{}}
	art, err := inv.Compile(ctx, g, params, db, tgt)
	require.NoError(t, err)
	return g, art
}

func toDevice(t *testing.T, n *Native, inputs map[string]*workload.Array) map[string]runner.DeviceArray {
	args := make(map[string]runner.DeviceArray, len(inputs))
	for name, a := range inputs {
		da, err := n.ToDevice(a, target.Device{Type: "cpu"})
		require.NoError(t, err)
		args[name] = da
	}
	return args
}

func TestNative_Benchmark(t *testing.T) {
	g, art := compileTuned(t, workload.ShapeParams{M: 8, K: 128}, nil)
	inputs, err := workload.RandomInputs(g, nil, 0)
	require.NoError(t, err)

	n := &Native{}
	vm, err := n.Load(art, target.Device{Type: "cpu"})
	require.NoError(t, err)

	for _, endToEnd := range []bool{true, false} {
		m, err := vm.Benchmark(context.TODO(), "main", toDevice(t, n, inputs), runner.Options{Number: 10, Repeat: 3, Warmup: 1, EndToEnd: endToEnd})
		require.NoError(t, err)
		assert.Equal(t, 10, m.Number)
		assert.Equal(t, 3, m.Repeat)
		assert.Equal(t, endToEnd, m.EndToEnd)
		assert.Len(t, m.Results, 3)
		assert.Greater(t, m.Mean, 0.0)
	}

	_, err = vm.Benchmark(context.TODO(), "other", toDevice(t, n, inputs), runner.DefaultOptions())
	assert.EqualError(t, err, `unknown function "other"`)
}

func TestNative_Profile(t *testing.T) {
	g, art := compileTuned(t, workload.ShapeParams{M: 8, K: 128}, nil)
	inputs, err := workload.RandomInputs(g, nil, 0)
	require.NoError(t, err)

	n := &Native{ProfileNumber: 2}
	prof, err := n.NewProfiler(art, target.Device{Type: "cpu"})
	require.NoError(t, err)

	p, err := prof.Profile(context.TODO(), toDevice(t, n, inputs))
	require.NoError(t, err)
	require.Len(t, p.Operators, 1)
	op := p.Operators[0]
	assert.Equal(t, "fused_nn_matmul", op.Name)
	assert.Equal(t, int64(2*8*128), op.FLOP)
	assert.Equal(t, 1, op.Weight)
	assert.Equal(t, 1, op.Trials)
	assert.True(t, op.Done)
	assert.Greater(t, op.Latency, 0.0)
	assert.Equal(t, op.Latency, op.WeightedLatency)
	assert.Equal(t, 1, p.TotalTrials)
	assert.Greater(t, p.PeakSpeed, 0.0)
	assert.InDelta(t, 100*op.Speed/p.PeakSpeed, op.PeakPercent, 1e-9)
}

func TestNative_ProfileWithoutPeak(t *testing.T) {
	g, art := compileTuned(t, workload.ShapeParams{M: 8, K: 64}, nil)
	inputs, err := workload.RandomInputs(g, nil, 0)
	require.NoError(t, err)

	n := &Native{ProfileNumber: 1, PeakIterations: -1}
	prof, err := n.NewProfiler(art, target.Device{Type: "cpu"})
	require.NoError(t, err)

	p, err := prof.Profile(context.TODO(), toDevice(t, n, inputs))
	require.NoError(t, err)
	assert.Zero(t, p.PeakSpeed)
	require.Len(t, p.Operators, 1)
	assert.Zero(t, p.Operators[0].PeakPercent)
}

func TestPeakGFLOPS(t *testing.T) {
	testCases := []struct {
		desc       string
		iterations int
		samples    int
		positive   bool
	}{
		{desc: "measured", iterations: 1 << 16, samples: 2, positive: true},
		{desc: "no iterations", iterations: 0, samples: 2},
		{desc: "no samples", iterations: 1 << 16, samples: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			peak := PeakGFLOPS(tc.iterations, tc.samples)
			if tc.positive {
				assert.Greater(t, peak, 0.0)
			} else {
				assert.Zero(t, peak)
			}
		})
	}
}

func TestNative_BoundParams(t *testing.T) {
	weight := workload.NewArray(workload.Shape{64, 1})
	_, art := compileTuned(t, workload.ShapeParams{M: 4, K: 64}, workload.Params{"weight": weight})
	require.Len(t, art.Inputs(), 1)
	assert.Equal(t, "data", art.Inputs()[0].Name)

	n := &Native{}
	vm, err := n.Load(art, target.Device{Type: "cpu"})
	require.NoError(t, err)
	args := toDevice(t, n, map[string]*workload.Array{"data": workload.NewArray(workload.Shape{4, 64})})
	_, err = vm.Benchmark(context.TODO(), "main", args, runner.Options{Number: 1, Repeat: 1})
	assert.NoError(t, err)
}

func TestNative_Device(t *testing.T) {
	n := &Native{}
	_, err := n.ToDevice(workload.NewArray(workload.Shape{1}), target.Device{Type: "cuda"})
	assert.EqualError(t, err, "device cuda(0) is not available")

	_, art := compileTuned(t, workload.ShapeParams{M: 4, K: 64}, nil)
	_, err = n.Load(art, target.Device{Type: "cuda"})
	assert.Error(t, err)
}

func TestRunner_EndToEnd(t *testing.T) {
	g, art := compileTuned(t, workload.ShapeParams{M: 8, K: 64}, nil)
	inputs, err := workload.RandomInputs(g, nil, 1)
	require.NoError(t, err)

	r := &runner.Runner{Executor: &Native{ProfileNumber: 1}, Options: runner.Options{Number: 2, Repeat: 1, EndToEnd: true}}
	m, p, err := r.Run(context.TODO(), art, target.MustParse("llvm -num-cores=1"), inputs)
	require.NoError(t, err)
	assert.Greater(t, m.Mean, 0.0)
	assert.Len(t, p.Operators, 1)

	delete(inputs, "weight")
	_, _, err = r.Run(context.TODO(), art, target.MustParse("llvm -num-cores=1"), inputs)
	assert.EqualError(t, err, "artifact execution failed: missing inputs: weight")
}
