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

// Package pipeline sequences the build, tune, compile and benchmark phases of a tuning run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// State is the position of a run in the pipeline.
type State int

// Pipeline states, in order
const (
	Initial State = iota
	Built
	Tuned
	CompiledIR
	CompiledExec
	Benchmarked
)

var stateNames = []string{"Initial", "Built", "Tuned", "CompiledIR", "CompiledExec", "Benchmarked"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Phase returns the name of the phase which produces the state.
func (s State) Phase() string {
	switch s {
	case Built:
		return "build"
	case Tuned:
		return "tune"
	case CompiledIR:
		return "lower"
	case CompiledExec:
		return "compile"
	case Benchmarked:
		return "benchmark"
	default:
		return s.String()
	}
}

// ErrInvalidTransition is returned for backward or skipping transitions.
var ErrInvalidTransition = errors.New("invalid pipeline transition")

// Transition checks that next directly follows current.
func Transition(current, next State) error {
	if next != current+1 || next > Benchmarked {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// PhaseError attaches the failed phase to the originating error.
type PhaseError struct {
	// Phase is the name of the phase which failed
	Phase string
	// State is the last state reached
	State State
	// Err is the originating error
	Err error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

// Unwrap returns the originating error.
func (e *PhaseError) Unwrap() error { return e.Err }

// Tuner runs tuning sessions.
type Tuner interface {
	Tune(ctx context.Context, g *workload.Graph, params workload.Params, tgt target.Target, trialBudget int, workDir string) (*tuner.Result, error)
}

// Compiler compiles graphs against a tuning database.
type Compiler interface {
	CaptureLowered(ctx context.Context, g *workload.Graph, params workload.Params, db database.Database, tgt target.Target) (*compiler.Captured, error)
	Compile(ctx context.Context, g *workload.Graph, params workload.Params, db database.Database, tgt target.Target, instruments ...compiler.Instrument) (compiler.Artifact, error)
}

// Runner benchmarks artifacts.
type Runner interface {
	Run(ctx context.Context, art compiler.Artifact, tgt target.Target, inputs map[string]*workload.Array) (*v1alpha1.Measurement, *v1alpha1.Profile, error)
}

// Observer receives phase notifications.
type Observer interface {
	PhaseStarted(state State)
	PhaseCompleted(state State, elapsed time.Duration)
}

// Observers notifies every observer in order.
type Observers []Observer

var _ Observer = Observers{}

func (obs Observers) PhaseStarted(state State) {
	for _, o := range obs {
		o.PhaseStarted(state)
	}
}

func (obs Observers) PhaseCompleted(state State, elapsed time.Duration) {
	for _, o := range obs {
		o.PhaseCompleted(state, elapsed)
	}
}

// Plan describes a single run of the pipeline.
type Plan struct {
	// Shape is the workload shape
	Shape workload.ShapeParams
	// Layout is the operand layout
	Layout workload.Layout
	// Target is the compilation target
	Target target.Target
	// TrialBudget is the total tuning trial budget
	TrialBudget int
	// WorkDir is the directory holding the tuning database
	WorkDir string
	// Params are bound graph values, may be empty
	Params workload.Params
	// Inputs are the benchmark inputs, generated when nil
	Inputs map[string]*workload.Array
	// Seed is used to generate missing inputs
	Seed int64
}

// Result holds the output of every completed phase.
type Result struct {
	State       State
	Graph       *workload.Graph
	Tuning      *tuner.TimingSummary
	Lowered     *compiler.Captured
	Artifact    compiler.Artifact
	Measurement *v1alpha1.Measurement
	Profile     *v1alpha1.Profile
}

// Pipeline runs plans.
type Pipeline struct {
	Tuner    Tuner
	Compiler Compiler
	Runner   Runner
	Log      logr.Logger
	Observer Observer
}

// Run executes every phase of the plan in order, stopping at the first failure. The partial
// result is returned along with the error.
func (p *Pipeline) Run(ctx context.Context, plan *Plan) (*Result, error) {
	r := &Result{State: Initial}
	if p.Tuner == nil || p.Compiler == nil || p.Runner == nil {
		return r, errdefs.NewConfigurationError("pipeline", "tuner, compiler and runner are required")
	}

	var db database.Database
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	inputs := plan.Inputs

	phases := []struct {
		state State
		run   func() error
	}{
		{Built, func() (err error) {
			if r.Graph, err = workload.Build(plan.Shape, plan.Layout); err != nil {
				return err
			}
			if inputs == nil {
				inputs, err = workload.RandomInputs(r.Graph, plan.Params, plan.Seed)
			}
			return err
		}},
		{Tuned, func() error {
			tr, err := p.Tuner.Tune(ctx, r.Graph, plan.Params, plan.Target, plan.TrialBudget, plan.WorkDir)
			if err != nil {
				return err
			}
			db = tr.Database
			r.Tuning = &tr.Summary
			return nil
		}},
		{CompiledIR, func() (err error) {
			r.Lowered, err = p.Compiler.CaptureLowered(ctx, r.Graph, plan.Params, db, plan.Target)
			return err
		}},
		{CompiledExec, func() (err error) {
			r.Artifact, err = p.Compiler.Compile(ctx, r.Graph, plan.Params, db, plan.Target)
			return err
		}},
		{Benchmarked, func() (err error) {
			r.Measurement, r.Profile, err = p.Runner.Run(ctx, r.Artifact, plan.Target, inputs)
			return err
		}},
	}

	for _, ph := range phases {
		if err := p.step(ctx, r, ph.state, ph.run); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (p *Pipeline) step(ctx context.Context, r *Result, next State, run func() error) error {
	if err := Transition(r.State, next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &PhaseError{Phase: next.Phase(), State: r.State, Err: err}
	}

	log := p.log().WithValues("phase", next.Phase())
	if p.Observer != nil {
		p.Observer.PhaseStarted(next)
	}

	start := time.Now()
	if err := run(); err != nil {
		log.Error(err, "Phase failed")
		return &PhaseError{Phase: next.Phase(), State: r.State, Err: err}
	}
	elapsed := time.Since(start)

	r.State = next
	if p.Observer != nil {
		p.Observer.PhaseCompleted(next, elapsed)
	}
	log.V(1).Info("Phase completed", "state", next.String(), "elapsed", elapsed.String())
	return nil
}

func (p *Pipeline) log() logr.Logger {
	if p.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return p.Log
}
