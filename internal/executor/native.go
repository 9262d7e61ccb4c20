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

// Package executor is the built-in execution engine for artifacts produced by the native backend.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/backend"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/runner"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

// DefaultProfileNumber is the number of calls averaged into each operator latency.
const DefaultProfileNumber = 10

// DefaultPeakSamples is the number of peak throughput samples, the fastest one is kept.
const DefaultPeakSamples = 3

// Native executes artifacts on the host CPU.
type Native struct {
	// ProfileNumber is the number of calls averaged into each operator latency
	ProfileNumber int
	// PeakIterations is the loop count of the peak throughput estimate, negative disables it
	PeakIterations int
}

var _ runner.Executor = &Native{}

// NDArray is a host array bound to a device.
type NDArray struct {
	device target.Device
	array  *workload.Array
}

// Device returns the device holding the array.
func (a *NDArray) Device() target.Device { return a.device }

// Shape returns the shape of the array.
func (a *NDArray) Shape() workload.Shape { return a.array.Shape }

// DType returns the element type of the array.
func (a *NDArray) DType() workload.DataType { return a.array.DType }

// ToDevice copies a host array to the device.
func (n *Native) ToDevice(a *workload.Array, dev target.Device) (runner.DeviceArray, error) {
	if err := checkDevice(dev); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	c := workload.NewArray(a.Shape)
	c.DType = a.DType
	copy(c.Data, a.Data)
	return &NDArray{device: dev, array: c}, nil
}

// Load prepares the artifact for execution.
func (n *Native) Load(art compiler.Artifact, dev target.Device) (runner.VM, error) {
	exe, err := load(art, dev)
	if err != nil {
		return nil, err
	}
	return &VM{exe: exe, device: dev}, nil
}

// NewProfiler prepares the artifact for profiled execution.
func (n *Native) NewProfiler(art compiler.Artifact, dev target.Device) (runner.Profiler, error) {
	exe, err := load(art, dev)
	if err != nil {
		return nil, err
	}
	number := n.ProfileNumber
	if number <= 0 {
		number = DefaultProfileNumber
	}
	peak := n.PeakIterations
	if peak == 0 {
		peak = kernel.DefaultPeakIterations
	}
	return &Profiler{exe: exe, device: dev, number: number, peakIterations: peak}, nil
}

func load(art compiler.Artifact, dev target.Device) (*backend.Executable, error) {
	if err := checkDevice(dev); err != nil {
		return nil, err
	}
	exe, ok := art.(*backend.Executable)
	if !ok {
		return nil, fmt.Errorf("unsupported artifact type %T", art)
	}
	if exe.Target().IsGPU() {
		return nil, fmt.Errorf("artifact compiled for %s cannot run on %s", exe.Target(), dev)
	}
	return exe, nil
}

func checkDevice(dev target.Device) error {
	if dev.Type != "cpu" {
		return fmt.Errorf("device %s is not available", dev)
	}
	return nil
}

// call is a single function invocation with resolved arguments.
type call struct {
	fn   *backend.Function
	a, w []float32
	out  []float32
}

func (c *call) run() {
	kernel.MatVec(c.out, c.a, c.w, c.fn.M, c.fn.K, c.fn.Transposed, c.fn.Schedule)
}

// bind resolves the arguments of every function from the inputs and the bound parameters.
func bind(exe *backend.Executable, dev target.Device, inputs map[string]runner.DeviceArray) ([]call, error) {
	params := exe.Params()
	arg := func(v workload.Var) ([]float32, error) {
		if p, ok := params[v.Name]; ok {
			return p.Data, nil
		}
		in, ok := inputs[v.Name]
		if !ok {
			return nil, fmt.Errorf("missing argument %s", v.Name)
		}
		nd, ok := in.(*NDArray)
		if !ok {
			return nil, fmt.Errorf("argument %s is not a native array", v.Name)
		}
		if nd.device != dev {
			return nil, fmt.Errorf("argument %s is on %s, expected %s", v.Name, nd.device, dev)
		}
		if !nd.array.Shape.Equal(v.Shape) {
			return nil, fmt.Errorf("argument %s has shape %s, expected %s", v.Name, nd.array.Shape, v.Shape)
		}
		return nd.array.Data, nil
	}

	fns := exe.Functions()
	calls := make([]call, len(fns))
	for i := range fns {
		c := call{fn: &fns[i], out: make([]float32, fns[i].M)}
		var err error
		if c.a, err = arg(fns[i].Task.Inputs[0]); err != nil {
			return nil, err
		}
		if c.w, err = arg(fns[i].Task.Inputs[1]); err != nil {
			return nil, err
		}
		calls[i] = c
	}
	return calls, nil
}

// VM runs the entry point of an executable.
type VM struct {
	exe    *backend.Executable
	device target.Device
}

// Benchmark times repeated calls to the entry point. End-to-end timing includes argument
// binding and output allocation in every call.
func (vm *VM) Benchmark(ctx context.Context, entry string, inputs map[string]runner.DeviceArray, opts runner.Options) (*v1alpha1.Measurement, error) {
	if entry != vm.exe.Entry() {
		return nil, fmt.Errorf("unknown function %q", entry)
	}

	calls, err := bind(vm.exe, vm.device, inputs)
	if err != nil {
		return nil, err
	}

	invoke := func() error {
		cs := calls
		if opts.EndToEnd {
			if cs, err = bind(vm.exe, vm.device, inputs); err != nil {
				return err
			}
		}
		for i := range cs {
			cs[i].run()
		}
		return nil
	}

	for i := 0; i < opts.Warmup; i++ {
		if err := invoke(); err != nil {
			return nil, err
		}
	}

	results := make([]float64, 0, opts.Repeat)
	for r := 0; r < opts.Repeat; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		for i := 0; i < opts.Number; i++ {
			if err := invoke(); err != nil {
				return nil, err
			}
		}
		results = append(results, time.Since(start).Seconds()/float64(opts.Number))
	}
	return v1alpha1.NewMeasurement(opts.Number, opts.EndToEnd, results), nil
}

// Profiler times every function of an executable individually.
type Profiler struct {
	exe            *backend.Executable
	device         target.Device
	number         int
	peakIterations int
}

// Profile runs one execution breakdown, reporting latency in microseconds and throughput in GFLOPS.
func (p *Profiler) Profile(ctx context.Context, inputs map[string]runner.DeviceArray) (*v1alpha1.Profile, error) {
	calls, err := bind(p.exe, p.device, inputs)
	if err != nil {
		return nil, err
	}

	prof := &v1alpha1.Profile{PeakSpeed: PeakGFLOPS(p.peakIterations, DefaultPeakSamples)}
	for i := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := &calls[i]
		c.run()
		start := time.Now()
		for n := 0; n < p.number; n++ {
			c.run()
		}
		latency := time.Since(start).Seconds() / float64(p.number)

		op := v1alpha1.OperatorProfile{
			Name:    c.fn.Name,
			FLOP:    c.fn.Task.FLOP,
			Weight:  1,
			Latency: latency * 1e6,
			Trials:  c.fn.Info.Trials,
			Done:    c.fn.Info.Done,
		}
		if latency > 0 {
			op.Speed = float64(op.FLOP) / latency / 1e9
		}
		if prof.PeakSpeed > 0 {
			// Assumes throughput scales linearly with the threads the kernel actually uses
			threads := c.fn.Schedule.Threads
			if threads > c.fn.M {
				threads = c.fn.M
			}
			if threads < 1 {
				threads = 1
			}
			op.PeakPercent = 100 * op.Speed / (prof.PeakSpeed * float64(threads))
		}
		op.WeightedLatency = op.Latency * float64(op.Weight)
		prof.Operators = append(prof.Operators, op)
	}
	prof.Summarize()
	return prof, nil
}

// PeakGFLOPS estimates the single core multiply-add throughput, returning the best of the
// requested samples. It returns zero when iterations or samples are not positive.
func PeakGFLOPS(iterations, samples int) float64 {
	acc := make([]float32, kernel.PeakLanes)
	for i := range acc {
		acc[i] = float32(i + 1)
	}

	var best float64
	for s := 0; s < samples && iterations > 0; s++ {
		start := time.Now()
		flop := kernel.Peak(acc, 0, iterations)
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			if gflops := float64(flop) / elapsed / 1e9; gflops > best {
				best = gflops
			}
		}
	}
	return best
}
