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

// Package search is the built-in tuning engine: it measures schedules of the reference
// kernels in a random, resumable order and records them in the tuning database.
package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/metrics"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// Engine measures kernel schedules. The zero value is usable.
type Engine struct {
	// DatabaseKind is the backend used when creating a new database
	DatabaseKind string
	// Seed perturbs the candidate order and generated inputs
	Seed int64
	// Warmups is the number of untimed runs before each measurement
	Warmups int
	// Repeats is the number of timed runs averaged into the cost, defaults to 3
	Repeats int
	// Log receives per-trial progress at V(1)
	Log logr.Logger
	// Metrics optionally records every trial
	Metrics *metrics.Recorder

	now func() time.Time
}

var _ tuner.Engine = &Engine{}

// Search runs trials for every task of the requested graph until each task reaches its share of the budget.
func (e *Engine) Search(ctx context.Context, req *tuner.Request) (database.Database, error) {
	started := e.clock()
	log := e.log().WithValues("session", req.SessionID)

	tasks, err := req.Graph.Tasks()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.Options{Dir: req.WorkDir, Kind: e.DatabaseKind, Target: req.Target.String()})
	if err != nil {
		return nil, err
	}

	space := kernel.Space(req.Target.NumCores())
	alloc := allocate(tasks, req.TrialBudget, len(space))
	session := v1alpha1.Session{
		ID:          req.SessionID,
		Target:      req.Target.String(),
		TrialBudget: req.TrialBudget,
		Allocations: make(map[string]int, len(tasks)),
		Started:     v1alpha1.NewTime(started),
	}

	for i := range tasks {
		w, err := db.CommitWorkload(ctx, tasks[i].Signature(req.Target))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		session.Allocations[w.Key] = alloc[i]

		if err := e.searchTask(ctx, db, log, &tasks[i], w, req.Params, space, alloc[i]); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	session.Elapsed = v1alpha1.NewDuration(e.clock().Sub(started))
	if err := db.CommitSession(ctx, session); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (e *Engine) searchTask(ctx context.Context, db database.Database, log logr.Logger, task *workload.Task, w v1alpha1.Workload, params workload.Params, space []kernel.Schedule, allocation int) error {
	log = log.WithValues("task", task.Name, "workload", w.Key[:12])

	records, err := db.Records(ctx, w.Key)
	if err != nil {
		return err
	}
	if len(records) >= allocation {
		log.V(1).Info("Task already reached its allocation", "trials", len(records), "allocation", allocation)
		return nil
	}

	measured := make(map[string]bool, len(records))
	var best *v1alpha1.TuningRecord
	for i := range records {
		measured[records[i].Candidate] = true
		if best == nil || records[i].Better(best) {
			best = &records[i]
		}
	}

	b, err := e.newBench(task, params)
	if err != nil {
		return err
	}

	trial := len(records)
	for _, idx := range e.permutation(w.Key, len(space)) {
		if trial >= allocation {
			break
		}
		s := space[idx]
		if measured[s.ID()] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := b.measure(s, e.warmups(), e.repeats())
		rec.WorkloadKey = w.Key
		rec.Trial = trial
		rec.Created = v1alpha1.NewTime(e.clock())
		if err := db.CommitRecord(ctx, rec); err != nil {
			return err
		}

		if best == nil || rec.Better(best) {
			r := rec
			best = &r
		}
		e.Metrics.ObserveTrial(task.Name, &rec, best)
		log.V(1).Info("Measured candidate", "trial", trial, "candidate", rec.Candidate, "cost", rec.Cost, "valid", rec.Valid)
		trial++
	}

	if trial < allocation {
		log.Info("Search space exhausted before reaching the allocation", "trials", trial, "allocation", allocation)
	}
	return nil
}

// permutation returns a deterministic ordering of the search space for a workload.
func (e *Engine) permutation(key string, n int) []int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64()) ^ e.Seed)).Perm(n)
}

// allocate splits the trial budget across tasks proportional to their FLOP count. Every task
// gets at least one trial and no task gets more trials than the search space has candidates.
func allocate(tasks []workload.Task, budget, spaceSize int) []int {
	alloc := make([]int, len(tasks))
	if len(tasks) == 0 {
		return alloc
	}

	var total int64
	for i := range tasks {
		total += tasks[i].FLOP
	}

	assigned := 0
	for i := range tasks {
		share := budget / len(tasks)
		if total > 0 {
			share = int(int64(budget) * tasks[i].FLOP / total)
		}
		if share < 1 {
			share = 1
		}
		alloc[i] = share
		assigned += share
	}

	// Hand out the rounding remainder to the most expensive tasks first
	order := make([]int, len(tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return tasks[order[i]].FLOP > tasks[order[j]].FLOP })
	for i := 0; assigned < budget; i = (i + 1) % len(order) {
		alloc[order[i]]++
		assigned++
	}

	for i := range alloc {
		if alloc[i] > spaceSize {
			alloc[i] = spaceSize
		}
	}
	return alloc
}

func (e *Engine) warmups() int {
	if e.Warmups < 0 {
		return 0
	}
	return e.Warmups
}

func (e *Engine) repeats() int {
	if e.Repeats <= 0 {
		return 3
	}
	return e.Repeats
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) log() logr.Logger {
	if e.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return e.Log
}

// bench holds the operands of a single task along with the reference result.
type bench struct {
	m, k       int
	transposed bool
	a, w       []float32
	out        []float32
	expected   []float32
}

func (e *Engine) newBench(task *workload.Task, params workload.Params) (*bench, error) {
	m, k, transposed, err := task.MatVecDims()
	if err != nil {
		return nil, err
	}

	r := rand.New(rand.NewSource(e.Seed))
	operand := func(v workload.Var) ([]float32, error) {
		if a, ok := params[v.Name]; ok {
			if !a.Shape.Equal(v.Shape) {
				return nil, fmt.Errorf("parameter %s has shape %s, expected %s", v.Name, a.Shape, v.Shape)
			}
			return a.Data, nil
		}
		data := make([]float32, v.Shape.Size())
		for i := range data {
			data[i] = r.Float32()
		}
		return data, nil
	}

	b := &bench{m: m, k: k, transposed: transposed, out: make([]float32, m), expected: make([]float32, m)}
	if b.a, err = operand(task.Inputs[0]); err != nil {
		return nil, err
	}
	if b.w, err = operand(task.Inputs[1]); err != nil {
		return nil, err
	}
	kernel.Naive(b.expected, b.a, b.w, m, k, transposed)
	return b, nil
}

func (b *bench) measure(s kernel.Schedule, warmups, repeats int) v1alpha1.TuningRecord {
	rec := v1alpha1.TuningRecord{Candidate: s.ID(), Knobs: s.Knobs()}
	if err := s.Validate(); err != nil {
		rec.Error = err.Error()
		return rec
	}

	for i := 0; i < warmups; i++ {
		kernel.MatVec(b.out, b.a, b.w, b.m, b.k, b.transposed, s)
	}

	start := time.Now()
	for i := 0; i < repeats; i++ {
		kernel.MatVec(b.out, b.a, b.w, b.m, b.k, b.transposed, s)
	}
	rec.Cost = time.Since(start).Seconds() / float64(repeats)

	if idx := kernel.Compare(b.out, b.expected, kernel.Tolerance); idx >= 0 {
		rec.Error = fmt.Sprintf("result mismatch at index %d: %g != %g", idx, b.out[idx], b.expected[idx])
		return rec
	}
	rec.Valid = true
	return rec
}
