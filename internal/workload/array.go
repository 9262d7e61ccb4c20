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
	"fmt"
	"math/rand"

	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Array is a host resident, row-major, dense tensor.
type Array struct {
	Shape Shape
	DType DataType
	Data  []float32
}

// NewArray allocates a zeroed array.
func NewArray(shape Shape) *Array {
	return &Array{Shape: append(Shape(nil), shape...), DType: Float32, Data: make([]float32, shape.Size())}
}

// Validate ensures the array data is consistent with its shape.
func (a *Array) Validate() error {
	if int64(len(a.Data)) != a.Shape.Size() {
		return fmt.Errorf("array of shape %s has %d elements, expected %d", a.Shape, len(a.Data), a.Shape.Size())
	}
	return nil
}

// Params are bound constant values for graph free variables (e.g. weights). They may be empty.
type Params map[string]*Array

// RandomInputs generates uniformly distributed [0, 1) host arrays for every free variable
// of the graph which is not already bound in params.
func RandomInputs(g *Graph, params Params, seed int64) (map[string]*Array, error) {
	if !g.Typed() {
		return nil, &errdefs.InvalidShapeError{Errors: field.ErrorList{field.Required(field.NewPath(g.Name()), "graph must be type inferred")}}
	}

	r := rand.New(rand.NewSource(seed))
	inputs := make(map[string]*Array, len(g.params))
	for _, p := range g.params {
		if _, ok := params[p.Name]; ok {
			continue
		}
		a := NewArray(p.Shape)
		for i := range a.Data {
			a.Data[i] = r.Float32()
		}
		inputs[p.Name] = a
	}
	return inputs, nil
}
