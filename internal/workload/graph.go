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

package workload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/target"
)

// DataType is the element type of a tensor.
type DataType string

const (
	// Float32 is the only element type produced by the builder
	Float32 DataType = "float32"
)

// Shape is a list of tensor dimensions.
type Shape []int64

// Size returns the number of elements described by the shape.
func (s Shape) Size() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// fits returns true if every dimension is non-negative and the element count is at most limit.
func (s Shape) fits(limit int64) bool {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return false
		}
		if d > 0 && n > limit/d {
			return false
		}
		n *= d
	}
	return n <= limit
}

// Equal compares two shapes.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(dims, ", ") + "]"
}

// Var is a named, typed free variable of a graph.
type Var struct {
	Name  string   `json:"name"`
	Shape Shape    `json:"shape"`
	DType DataType `json:"dtype"`
}

func (v Var) String() string {
	return fmt.Sprintf("%%%s: Tensor[%s, %s]", v.Name, v.Shape, v.DType)
}

// Op is a single operator call in a graph.
type Op struct {
	// Kind is the operator kind (e.g. "nn.matmul")
	Kind string
	// Args are the names of the free variables the operator consumes
	Args []string
	// Attrs are the operator attributes
	Attrs map[string]string
	// Output is the inferred output type, only available after type inference
	Output *Var
}

func (o *Op) attrString() string {
	keys := make([]string, 0, len(o.Attrs))
	for k := range o.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+o.Attrs[k])
	}
	return strings.Join(parts, ", ")
}

// Graph is an immutable computational graph. Transformations return new graphs.
type Graph struct {
	name   string
	params []Var
	ops    []Op
	typed  bool
}

// Name returns the graph entry point name.
func (g *Graph) Name() string { return g.name }

// Params returns a copy of the graph free variables.
func (g *Graph) Params() []Var {
	return append([]Var(nil), g.params...)
}

// Param returns the named free variable.
func (g *Graph) Param(name string) (Var, bool) {
	for _, p := range g.params {
		if p.Name == name {
			return p, true
		}
	}
	return Var{}, false
}

// Ops returns a copy of the operator list.
func (g *Graph) Ops() []Op {
	ops := make([]Op, len(g.ops))
	for i := range g.ops {
		ops[i] = g.ops[i].clone()
	}
	return ops
}

// Typed returns true if type inference has been run on the graph.
func (g *Graph) Typed() bool { return g.typed }

// Output returns the inferred output of the graph.
func (g *Graph) Output() (Var, bool) {
	if !g.typed || len(g.ops) == 0 {
		return Var{}, false
	}
	return *g.ops[len(g.ops)-1].Output, true
}

// String renders the graph in a readable text form.
func (g *Graph) String() string {
	var b strings.Builder
	params := make([]string, len(g.params))
	for i, p := range g.params {
		params[i] = p.String()
	}
	fmt.Fprintf(&b, "def @%s(%s)", g.name, strings.Join(params, ", "))
	if out, ok := g.Output(); ok {
		fmt.Fprintf(&b, " -> Tensor[%s, %s]", out.Shape, out.DType)
	}
	b.WriteString(" {\n")
	for i := range g.ops {
		op := &g.ops[i]
		args := make([]string, len(op.Args))
		for j, a := range op.Args {
			args[j] = "%" + a
		}
		if attrs := op.attrString(); attrs != "" {
			args = append(args, attrs)
		}
		fmt.Fprintf(&b, "  %s(%s)", op.Kind, strings.Join(args, ", "))
		if op.Output != nil {
			fmt.Fprintf(&b, " /* ty=Tensor[%s, %s] */", op.Output.Shape, op.Output.DType)
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// StructuralHash returns a digest of the operator structure, independent of variable names.
func (g *Graph) StructuralHash() string {
	h := sha256.New()
	for i := range g.ops {
		_, _ = fmt.Fprintf(h, "%s(%s);", g.ops[i].Kind, g.ops[i].attrString())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Task is a tunable unit extracted from a graph.
type Task struct {
	// Name is the fused function name
	Name string
	// Op is the operator being tuned
	Op Op
	// Inputs are the operator arguments in order
	Inputs []Var
	// FLOP is the number of floating point operations for one invocation
	FLOP int64
	// StructuralHash is the digest of the operator structure
	StructuralHash string
}

// Signature returns the workload signature of the task for the supplied target.
func (t *Task) Signature(tgt target.Target) v1alpha1.Signature {
	sig := v1alpha1.Signature{
		Task:           t.Name,
		StructuralHash: t.StructuralHash,
		Target:         tgt.String(),
	}
	for _, in := range t.Inputs {
		sig.Shape = append(sig.Shape, append([]int64(nil), in.Shape...))
	}
	return sig
}

// MatVecDims returns the output rows, contraction length and data layout of a matrix-vector task.
func (t *Task) MatVecDims() (m, k int, transposed bool, err error) {
	if t.Op.Kind != OpMatmul || len(t.Inputs) != 2 || t.Op.Output == nil {
		return 0, 0, false, fmt.Errorf("task %s is not a matrix-vector product", t.Name)
	}
	if n := t.Op.Output.Shape[1]; n != 1 {
		return 0, 0, false, fmt.Errorf("task %s has %d output columns, expected 1", t.Name, n)
	}
	transposed, _ = strconv.ParseBool(t.Op.Attrs[AttrTransposeA])
	return int(t.Op.Output.Shape[0]), int(t.Inputs[1].Shape[0]), transposed, nil
}

// Tasks returns the tunable units of a type-inferred graph, one per operator.
func (g *Graph) Tasks() ([]Task, error) {
	if !g.typed {
		return nil, fmt.Errorf("graph %q must be type inferred before extracting tasks", g.name)
	}

	tasks := make([]Task, 0, len(g.ops))
	for i := range g.ops {
		op := g.ops[i].clone()
		t := Task{Name: FunctionName(op.Kind), Op: op}
		for _, a := range op.Args {
			p, _ := g.Param(a)
			t.Inputs = append(t.Inputs, p)
		}

		h := sha256.New()
		_, _ = fmt.Fprintf(h, "%s(%s)", op.Kind, op.attrString())
		t.StructuralHash = hex.EncodeToString(h.Sum(nil))

		flop, err := countFLOP(&op, t.Inputs)
		if err != nil {
			return nil, err
		}
		t.FLOP = flop
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// FunctionName returns the name of the fused function generated for an operator kind.
func FunctionName(kinds ...string) string {
	parts := []string{"fused"}
	for _, k := range kinds {
		parts = append(parts, strings.ReplaceAll(k, ".", "_"))
	}
	return strings.Join(parts, "_")
}

func countFLOP(op *Op, inputs []Var) (int64, error) {
	switch op.Kind {
	case OpMatmul:
		if op.Output == nil || len(inputs) != 2 {
			return 0, fmt.Errorf("malformed %s", op.Kind)
		}
		// Multiply and add for each output element along the contraction axis
		k := inputs[1].Shape[0]
		return 2 * op.Output.Shape.Size() * k, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", op.Kind)
	}
}

func (o Op) clone() Op {
	c := Op{Kind: o.Kind, Args: append([]string(nil), o.Args...)}
	if o.Attrs != nil {
		c.Attrs = make(map[string]string, len(o.Attrs))
		for k, v := range o.Attrs {
			c.Attrs[k] = v
		}
	}
	if o.Output != nil {
		out := *o.Output
		out.Shape = append(Shape(nil), o.Output.Shape...)
		c.Output = &out
	}
	return c
}
