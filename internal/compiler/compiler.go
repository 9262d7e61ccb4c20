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

package compiler

import (
	"context"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// Artifact is a compiled executable bound to a target and a tuning database snapshot.
type Artifact interface {
	// Target returns the target the artifact was compiled for
	Target() target.Target
	// Entry returns the name of the designated entry point
	Entry() string
	// Inputs returns the free variables which must be supplied at execution
	Inputs() []workload.Var
}

// Backend lowers and builds graphs.
type Backend interface {
	Build(ctx context.Context, g *workload.Graph, params workload.Params, cfg *Configuration) (Artifact, error)
}

// Invoker compiles graphs against a tuning database.
type Invoker struct {
	// Backend performs the actual compilation
	Backend Backend
	// Log receives compilation progress
	Log logr.Logger
	// FuseMaxDepth overrides the default fusion depth when positive
	FuseMaxDepth int
	// OptLevel overrides the default optimization level when set
	OptLevel *int
	// DisabledPasses are lowering passes to skip on every compilation
	DisabledPasses []string
}

// Compile produces the artifact used for benchmarking, no passes are disabled.
func (inv *Invoker) Compile(ctx context.Context, g *workload.Graph, params workload.Params, db database.Database, tgt target.Target, instruments ...Instrument) (Artifact, error) {
	cfg, err := inv.configure(db, tgt)
	if err != nil {
		return nil, err
	}
	return inv.build(ctx, g, params, cfg.WithInstruments(instruments...))
}

// CaptureLowered compiles with the index-simplifying passes disabled and returns the lowered
// representation of every function, which reflects the pre-optimization structure.
func (inv *Invoker) CaptureLowered(ctx context.Context, g *workload.Graph, params workload.Params, db database.Database, tgt target.Target) (*Captured, error) {
	cfg, err := inv.configure(db, tgt)
	if err != nil {
		return nil, err
	}

	save := &SaveLowered{}
	cfg = cfg.WithDisabledPasses(PassCommonSubexprElim, PassUnrollLoop).WithInstruments(save)
	if _, err := inv.build(ctx, g, params, cfg); err != nil {
		return nil, err
	}
	return save.Captured(), nil
}

func (inv *Invoker) configure(db database.Database, tgt target.Target) (*Configuration, error) {
	if tgt.IsZero() {
		return nil, errdefs.NewConfigurationError("target", "missing target")
	}
	if db == nil {
		return nil, errdefs.NewConfigurationError("database", "missing tuning database")
	}
	if inv.Backend == nil {
		return nil, errdefs.NewConfigurationError("backend", "missing compiler backend")
	}

	// Compiling against a database tuned for another target would silently fall back to untuned code
	if dbt := db.Target(); dbt != "" {
		populated, err := target.Parse(dbt)
		if err != nil {
			return nil, err
		}
		if !populated.Equal(tgt) {
			return nil, &errdefs.TargetMismatchError{Database: populated.String(), Requested: tgt.String()}
		}
	}

	cfg := DefaultConfiguration(tgt, db)
	if inv.FuseMaxDepth > 0 {
		cfg = cfg.WithOption(OptionFuseMaxDepth, strconv.Itoa(inv.FuseMaxDepth))
	}
	if inv.OptLevel != nil {
		cfg = cfg.WithOptLevel(*inv.OptLevel)
	}
	if len(inv.DisabledPasses) > 0 {
		cfg = cfg.WithDisabledPasses(inv.DisabledPasses...)
	}
	return cfg, nil
}

func (inv *Invoker) build(ctx context.Context, g *workload.Graph, params workload.Params, cfg *Configuration) (Artifact, error) {
	if g == nil || !g.Typed() {
		return nil, errdefs.NewConfigurationError("graph", "graph must be type inferred before compiling")
	}

	log := inv.log().WithValues("target", cfg.Target().String(), "disabledPasses", cfg.DisabledPasses())
	start := time.Now()
	art, err := inv.Backend.Build(ctx, g, params, cfg)
	if err != nil {
		return nil, errdefs.Delegate("compiler", err)
	}
	log.V(1).Info("Compiled graph", "graph", g.Name(), "elapsed", time.Since(start).String())
	return art, nil
}

func (inv *Invoker) log() logr.Logger {
	if inv.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return inv.Log
}
