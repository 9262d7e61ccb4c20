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

// Package backend is the built-in compiler backend: it selects tuned schedules from the
// database, lowers every function and produces an executable artifact.
package backend

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/template"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// Optimization levels required by the lowering passes
const (
	fuseOptLevel   = 1
	cseOptLevel    = 2
	unrollOptLevel = 2
)

// Native compiles graphs into artifacts executed by the built-in executor.
type Native struct {
	// Templates renders the lowered representation
	Templates *template.Engine
	// Log receives per-function selection details at V(1)
	Log logr.Logger
}

var _ compiler.Backend = &Native{}

// Build lowers every function of the graph according to the configuration.
func (n *Native) Build(ctx context.Context, g *workload.Graph, params workload.Params, cfg *compiler.Configuration) (compiler.Artifact, error) {
	tasks, err := g.Tasks()
	if err != nil {
		return nil, err
	}

	groups, err := fuse(tasks, cfg)
	if err != nil {
		return nil, err
	}

	exe := &Executable{
		target: cfg.Target(),
		graph:  g,
		params: params,
		entry:  "main",
	}
	for _, p := range g.Params() {
		if _, ok := params[p.Name]; !ok {
			exe.inputs = append(exe.inputs, p)
		}
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fn, err := n.lower(ctx, group, cfg)
		if err != nil {
			return nil, err
		}
		for _, i := range cfg.Instruments() {
			i.AfterLowering(fn.Lowered)
		}
		exe.functions = append(exe.functions, *fn)
	}
	return exe, nil
}

// fuse groups tasks into functions. Each group is anchored by one tunable operator; operators are
// only combined when they chain, up to the configured depth.
func fuse(tasks []workload.Task, cfg *compiler.Configuration) ([][]workload.Task, error) {
	depth := cfg.IntOption(compiler.OptionFuseMaxDepth, compiler.DefaultFuseMaxDepth)
	if depth < 1 {
		return nil, errdefs.NewConfigurationError(compiler.OptionFuseMaxDepth, "must be at least 1, got %d", depth)
	}
	if cfg.OptLevel() < fuseOptLevel {
		depth = 1
	}

	var groups [][]workload.Task
	for i := range tasks {
		last := len(groups) - 1
		if last >= 0 && len(groups[last]) < depth && chains(groups[last][len(groups[last])-1], tasks[i]) {
			groups[last] = append(groups[last], tasks[i])
			continue
		}
		groups = append(groups, []workload.Task{tasks[i]})
	}
	return groups, nil
}

// chains is true when the next task consumes the output of the previous one. Matrix-vector
// products are anchor operators so they never fuse with each other.
func chains(prev, next workload.Task) bool {
	if prev.Op.Kind == workload.OpMatmul && next.Op.Kind == workload.OpMatmul {
		return false
	}
	for _, a := range next.Op.Args {
		if prev.Op.Output != nil && a == prev.Op.Output.Name {
			return true
		}
	}
	return false
}

func (n *Native) lower(ctx context.Context, group []workload.Task, cfg *compiler.Configuration) (*Function, error) {
	// The first operator of a group is its anchor
	task := group[0]
	kinds := make([]string, 0, len(group))
	for i := range group {
		kinds = append(kinds, group[i].Op.Kind)
	}

	m, k, transposed, err := task.MatVecDims()
	if err != nil {
		return nil, err
	}

	fn := &Function{
		Name:       workload.FunctionName(kinds...),
		Task:       task,
		M:          m,
		K:          k,
		Transposed: transposed,
		Schedule:   kernel.DefaultSchedule,
	}
	fn.Info.WorkloadKey = task.Signature(cfg.Target()).Key()

	source := "default schedule"
	if cfg.BoolOption(compiler.OptionUseTunedDispatch) {
		rec, err := selectRecord(ctx, cfg, fn.Info.WorkloadKey)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, &errdefs.UntunedError{Task: fn.Name, WorkloadKey: fn.Info.WorkloadKey}
		}
		if fn.Schedule, err = kernel.FromKnobs(rec.Knobs); err != nil {
			return nil, fmt.Errorf("unusable record for %s (trial %d): %w", fn.Name, rec.Trial, err)
		}
		fn.Record = rec
		source = fmt.Sprintf("trial %d, cost %.4f ms", rec.Trial, rec.Cost*1e3)

		st, err := database.TaskStatus(ctx, cfg.Database(), fn.Info.WorkloadKey)
		if err != nil {
			return nil, err
		}
		fn.Info.Trials, fn.Info.Done = st.Trials, st.Done
	}
	n.log().V(1).Info("Selected schedule", "function", fn.Name, "candidate", fn.Schedule.ID(), "source", source)

	data := loweringData(fn, cfg, source)
	script, err := n.templates().RenderLowered(loweredTemplate, data)
	if err != nil {
		return nil, err
	}
	fn.Lowered = compiler.LoweredFunc{Name: fn.Name, Script: script, Candidate: fn.Schedule.ID(), Knobs: fn.Schedule.Knobs()}
	return fn, nil
}

// selectRecord picks the record applied by tuned dispatch. Tuned selection takes the best
// ranked record, otherwise the earliest valid record is used.
func selectRecord(ctx context.Context, cfg *compiler.Configuration, key string) (*v1alpha1.TuningRecord, error) {
	if cfg.BoolOption(compiler.OptionUseTunedSelection) {
		return database.Best(ctx, cfg.Database(), key)
	}

	records, err := cfg.Database().Records(ctx, key)
	if err != nil {
		return nil, err
	}
	var first *v1alpha1.TuningRecord
	for i := range records {
		if records[i].Valid && (first == nil || records[i].Trial < first.Trial) {
			first = &records[i]
		}
	}
	return first, nil
}

func loweringData(fn *Function, cfg *compiler.Configuration, source string) *template.LoweringData {
	s := fn.Schedule
	d := &template.LoweringData{
		Function:   fn.Name,
		Candidate:  s.ID(),
		Source:     source,
		M:          fn.M,
		K:          fn.K,
		Transposed: fn.Transposed,
		TileM:      minInt(s.TileM, fn.M),
		TileK:      minInt(s.TileK, fn.K),
		Unroll:     s.Unroll,
		Order:      s.Order,
		Threads:    s.Threads,
		CSE:        cfg.PassEnabled(compiler.PassCommonSubexprElim, cseOptLevel),
	}
	for _, in := range fn.Task.Inputs {
		d.Params = append(d.Params, template.Buffer{Name: in.Name, Shape: in.Shape, DType: string(in.DType)})
	}
	out := fn.Task.Op.Output
	d.Output = template.Buffer{Name: "T_matmul", Shape: out.Shape, DType: string(out.DType)}
	d.ExpandUnroll = cfg.PassEnabled(compiler.PassUnrollLoop, unrollOptLevel) &&
		d.Unroll > 1 && d.TileK%d.Unroll == 0 && !d.KTail()
	return d
}

func (n *Native) templates() *template.Engine {
	if n.Templates == nil {
		n.Templates = template.New()
	}
	return n.Templates
}

func (n *Native) log() logr.Logger {
	if n.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return n.Log
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
