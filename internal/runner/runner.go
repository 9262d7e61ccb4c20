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

// Package runner benchmarks and profiles compiled artifacts with caller supplied inputs.
package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/metrics"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// Options control the end-to-end benchmark.
type Options struct {
	// Number is the number of calls averaged into each result
	Number int `json:"number"`
	// Repeat is the number of results collected
	Repeat int `json:"repeat"`
	// Warmup is the number of untimed calls made before measuring
	Warmup int `json:"warmup,omitempty"`
	// EndToEnd includes the full call boundary in the timing
	EndToEnd bool `json:"endToEnd"`
}

// DefaultOptions returns the standard measurement protocol.
func DefaultOptions() Options {
	return Options{Number: 100, Repeat: 1, EndToEnd: true}
}

// DeviceArray is an array resident on an execution device.
type DeviceArray interface {
	Device() target.Device
	Shape() workload.Shape
	DType() workload.DataType
}

// VM executes the entry point of a loaded artifact.
type VM interface {
	Benchmark(ctx context.Context, entry string, inputs map[string]DeviceArray, opts Options) (*v1alpha1.Measurement, error)
}

// Profiler executes an artifact collecting per-operator statistics.
type Profiler interface {
	Profile(ctx context.Context, inputs map[string]DeviceArray) (*v1alpha1.Profile, error)
}

// Executor is an execution engine.
type Executor interface {
	// ToDevice copies a host array to the device
	ToDevice(a *workload.Array, dev target.Device) (DeviceArray, error)
	// Load prepares an artifact for timed execution on the device
	Load(art compiler.Artifact, dev target.Device) (VM, error)
	// NewProfiler prepares an artifact for profiled execution on the device
	NewProfiler(art compiler.Artifact, dev target.Device) (Profiler, error)
}

// Runner benchmarks artifacts.
type Runner struct {
	// Executor runs the artifact
	Executor Executor
	// Options is the measurement protocol, the zero value uses the defaults
	Options Options
	// Log receives measurement progress
	Log logr.Logger
	// Metrics optionally records the measurement and profile
	Metrics *metrics.Recorder
}

// Run measures the end-to-end latency of the artifact and profiles it per operator.
func (r *Runner) Run(ctx context.Context, art compiler.Artifact, tgt target.Target, inputs map[string]*workload.Array) (*v1alpha1.Measurement, *v1alpha1.Profile, error) {
	if r.Executor == nil {
		return nil, nil, errdefs.NewConfigurationError("executor", "missing execution engine")
	}
	if art == nil {
		return nil, nil, errdefs.NewConfigurationError("artifact", "missing artifact")
	}
	if err := ValidateInputs(art.Inputs(), inputs); err != nil {
		return nil, nil, err
	}

	opts := r.options()
	dev := tgt.Device()
	log := r.log().WithValues("device", dev.String())

	args := make(map[string]DeviceArray, len(inputs))
	for name, a := range inputs {
		da, err := r.Executor.ToDevice(a, dev)
		if err != nil {
			return nil, nil, errdefs.Delegate("executor", fmt.Errorf("input %s: %w", name, err))
		}
		args[name] = da
	}

	vm, err := r.Executor.Load(art, dev)
	if err != nil {
		return nil, nil, errdefs.Delegate("executor", err)
	}
	log.V(1).Info("Benchmarking", "entry", art.Entry(), "number", opts.Number, "repeat", opts.Repeat)
	m, err := vm.Benchmark(ctx, art.Entry(), args, opts)
	if err != nil {
		return nil, nil, errdefs.Delegate("executor", err)
	}

	prof, err := r.Executor.NewProfiler(art, dev)
	if err != nil {
		return nil, nil, errdefs.Delegate("executor", err)
	}
	p, err := prof.Profile(ctx, args)
	if err != nil {
		return nil, nil, errdefs.Delegate("executor", err)
	}

	r.Metrics.ObserveMeasurement(m)
	r.Metrics.ObserveProfile(p)
	log.Info("Benchmark completed", "mean", m.Mean, "operators", len(p.Operators))
	return m, p, nil
}

// ValidateInputs checks the supplied inputs against the artifact's expected inputs.
func ValidateInputs(expected []workload.Var, inputs map[string]*workload.Array) error {
	e := &errdefs.ArtifactExecutionError{}
	known := make(map[string]bool, len(expected))
	for _, v := range expected {
		known[v.Name] = true
		a, ok := inputs[v.Name]
		switch {
		case !ok || a == nil:
			e.Missing = append(e.Missing, v.Name)
		case !a.Shape.Equal(v.Shape):
			e.Mismatched = append(e.Mismatched, fmt.Sprintf("input %s has shape %s, expected %s", v.Name, a.Shape, v.Shape))
		case a.DType != v.DType:
			e.Mismatched = append(e.Mismatched, fmt.Sprintf("input %s has type %s, expected %s", v.Name, a.DType, v.DType))
		default:
			if err := a.Validate(); err != nil {
				e.Mismatched = append(e.Mismatched, fmt.Sprintf("input %s: %v", v.Name, err))
			}
		}
	}
	for name := range inputs {
		if !known[name] {
			e.Unexpected = append(e.Unexpected, name)
		}
	}
	sort.Strings(e.Unexpected)

	if len(e.Missing)+len(e.Unexpected)+len(e.Mismatched) > 0 {
		return e
	}
	return nil
}

// options returns the default protocol for zero options, otherwise only the missing
// counts are defaulted.
func (r *Runner) options() Options {
	opts, def := r.Options, DefaultOptions()
	if opts == (Options{}) {
		return def
	}
	if opts.Number <= 0 {
		opts.Number = def.Number
	}
	if opts.Repeat <= 0 {
		opts.Repeat = def.Repeat
	}
	if opts.Warmup < 0 {
		opts.Warmup = 0
	}
	return opts
}

func (r *Runner) log() logr.Logger {
	if r.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return r.Log
}
