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

// Package workload builds the parametric computational graphs that are tuned,
// compiled and benchmarked.
package workload

import (
	"fmt"
	"math"
	"strconv"

	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const (
	// OpMatmul is a dense matrix multiplication
	OpMatmul = "nn.matmul"

	// AttrTransposeA indicates the first matmul operand is stored transposed
	AttrTransposeA = "transpose_a"

	// InputData is the name of the data operand
	InputData = "data"
	// InputWeight is the name of the weight operand
	InputWeight = "weight"

	// MaxElements is the largest element count of a single operand
	MaxElements int64 = math.MaxInt32
)

// Layout selects the operand layout of the built graph.
type Layout string

const (
	// LayoutStandard stores the data operand as [M, K]
	LayoutStandard Layout = "standard"
	// LayoutTransposed stores the data operand as [K, M]
	LayoutTransposed Layout = "transposed"
)

// Layouts returns the supported layout names.
func Layouts() []string {
	return []string{string(LayoutStandard), string(LayoutTransposed)}
}

// ShapeParams are the dimensions of the toy model: a [M, K] by [K, 1] matrix product.
type ShapeParams struct {
	M int64 `json:"m"`
	K int64 `json:"k"`
}

// Build constructs a type-inferred matrix-vector product graph for the requested shape and layout.
func Build(p ShapeParams, layout Layout) (*Graph, error) {
	var errs field.ErrorList
	if p.M <= 0 {
		errs = append(errs, field.Invalid(field.NewPath("m"), p.M, "must be positive"))
	}
	if p.K <= 0 {
		errs = append(errs, field.Invalid(field.NewPath("k"), p.K, "must be positive"))
	}
	if p.M > 0 && p.K > 0 && p.M > MaxElements/p.K {
		errs = append(errs, field.Invalid(field.NewPath("k"), p.K, fmt.Sprintf("data operand with %d rows exceeds %d elements", p.M, MaxElements)))
	}
	switch layout {
	case LayoutStandard, LayoutTransposed, "":
	default:
		errs = append(errs, field.NotSupported(field.NewPath("layout"), string(layout), Layouts()))
	}
	if len(errs) > 0 {
		return nil, &errdefs.InvalidShapeError{Errors: errs}
	}

	g := &Graph{name: "main"}
	op := Op{Kind: OpMatmul, Args: []string{InputData, InputWeight}}
	if layout == LayoutTransposed {
		g.params = append(g.params, Var{Name: InputData, Shape: Shape{p.K, p.M}, DType: Float32})
		op.Attrs = map[string]string{AttrTransposeA: "true"}
	} else {
		g.params = append(g.params, Var{Name: InputData, Shape: Shape{p.M, p.K}, DType: Float32})
	}
	g.params = append(g.params, Var{Name: InputWeight, Shape: Shape{p.K, 1}, DType: Float32})
	g.ops = append(g.ops, op)

	return InferType(g)
}

// InferType returns a new graph with the output types of every operator resolved.
func InferType(g *Graph) (*Graph, error) {
	out := &Graph{name: g.name, params: g.Params(), ops: g.Ops(), typed: true}
	var errs field.ErrorList
	for i, p := range out.params {
		if !p.Shape.fits(MaxElements) {
			errs = append(errs, field.Invalid(field.NewPath("params").Index(i).Child(p.Name), p.Shape.String(), fmt.Sprintf("must have between 0 and %d elements", MaxElements)))
		}
	}
	if len(errs) > 0 {
		return nil, &errdefs.InvalidShapeError{Errors: errs}
	}
	for i := range out.ops {
		op := &out.ops[i]
		args := make([]Var, 0, len(op.Args))
		for j, a := range op.Args {
			p, ok := out.Param(a)
			if !ok {
				return nil, &errdefs.InvalidShapeError{Errors: field.ErrorList{
					field.NotFound(field.NewPath("ops").Index(i).Child("args").Index(j), a),
				}}
			}
			args = append(args, p)
		}

		ty, err := inferOp(op, args, field.NewPath("ops").Index(i))
		if err != nil {
			return nil, err
		}
		op.Output = ty
	}
	return out, nil
}

func inferOp(op *Op, args []Var, path *field.Path) (*Var, error) {
	switch op.Kind {
	case OpMatmul:
		if len(args) != 2 {
			return nil, &errdefs.InvalidShapeError{Errors: field.ErrorList{
				field.Invalid(path.Child("args"), len(args), "matmul requires two operands"),
			}}
		}
		a, b := args[0], args[1]
		var errs field.ErrorList
		if len(a.Shape) != 2 {
			errs = append(errs, field.Invalid(path.Child(a.Name), a.Shape.String(), "must be rank 2"))
		}
		if len(b.Shape) != 2 {
			errs = append(errs, field.Invalid(path.Child(b.Name), b.Shape.String(), "must be rank 2"))
		}
		if a.DType != b.DType {
			errs = append(errs, field.Invalid(path.Child(b.Name), string(b.DType), fmt.Sprintf("must match %s", a.DType)))
		}
		if len(errs) > 0 {
			return nil, &errdefs.InvalidShapeError{Errors: errs}
		}

		m, k := a.Shape[0], a.Shape[1]
		if transposed, _ := strconv.ParseBool(op.Attrs[AttrTransposeA]); transposed {
			m, k = k, m
		}
		if k != b.Shape[0] {
			return nil, &errdefs.InvalidShapeError{Errors: field.ErrorList{
				field.Invalid(path.Child(b.Name), b.Shape.String(), fmt.Sprintf("contraction dimension %d does not match %d", b.Shape[0], k)),
			}}
		}
		return &Var{Name: "out", Shape: Shape{m, b.Shape[1]}, DType: a.DType}, nil

	default:
		return nil, fmt.Errorf("unknown operator %q", op.Kind)
	}
}

// NewGraph assembles an untyped graph from raw parts; callers must run InferType before use.
func NewGraph(name string, params []Var, ops []Op) *Graph {
	g := &Graph{name: name, params: append([]Var(nil), params...)}
	for i := range ops {
		g.ops = append(g.ops, ops[i].clone())
	}
	return g
}
