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

package backend

import (
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/kernel"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
)

// TaskInfo is the database snapshot of a function's tuning state taken at compile time.
type TaskInfo struct {
	WorkloadKey string
	Trials      int
	Done        bool
}

// Function is a lowered, scheduled function of an executable.
type Function struct {
	// Name is the fused function name
	Name string
	// Task is the anchor task of the function
	Task workload.Task
	// M, K and Transposed describe the matrix-vector product computed by the function
	M, K       int
	Transposed bool
	// Schedule is the schedule the function executes with
	Schedule kernel.Schedule
	// Record is the tuning record the schedule came from, if any
	Record *v1alpha1.TuningRecord
	// Info is the tuning state of the function
	Info TaskInfo
	// Lowered is the lowered representation
	Lowered compiler.LoweredFunc
}

// Executable is the artifact produced by the native backend.
type Executable struct {
	target    target.Target
	graph     *workload.Graph
	params    workload.Params
	inputs    []workload.Var
	entry     string
	functions []Function
}

var _ compiler.Artifact = &Executable{}

// Target returns the target the executable was compiled for.
func (e *Executable) Target() target.Target { return e.target }

// Entry returns the name of the entry point.
func (e *Executable) Entry() string { return e.entry }

// Inputs returns the graph variables not bound at compile time.
func (e *Executable) Inputs() []workload.Var { return append([]workload.Var(nil), e.inputs...) }

// Params returns the values bound at compile time.
func (e *Executable) Params() workload.Params { return e.params }

// Graph returns the compiled graph.
func (e *Executable) Graph() *workload.Graph { return e.graph }

// Functions returns the functions invoked by the entry point, in call order.
func (e *Executable) Functions() []Function { return append([]Function(nil), e.functions...) }
