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

package template

import (
	"bytes"
	"text/template"
)

// Buffer describes a tensor argument of a lowered function
type Buffer struct {
	// Name of the buffer
	Name string
	// Shape of the buffer
	Shape []int64
	// DType is the element type
	DType string
}

// LoweringData represents a scheduled function during lowering
type LoweringData struct {
	// Function name
	Function string
	// Params are the input buffers, the data operand first
	Params []Buffer
	// Output buffer
	Output Buffer
	// The candidate the schedule came from
	Candidate string
	// Human readable description of where the candidate came from
	Source string

	// Loop extents
	M, K int
	// Transposed indicates the data operand is stored [K, M]
	Transposed bool

	// Schedule knobs
	TileM, TileK, Unroll, Order, Threads int

	// CSE hoists common index expressions into let bindings
	CSE bool
	// ExpandUnroll replicates the inner loop body instead of annotating it
	ExpandUnroll bool
}

// RowTail is true when the row tile does not divide the row extent
func (d *LoweringData) RowTail() bool { return d.M%d.TileM != 0 }

// KTail is true when the reduction tile does not divide the reduction extent
func (d *LoweringData) KTail() bool { return d.K%d.TileK != 0 }

// Engine is used to render Go text templates
type Engine struct {
	FuncMap template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		FuncMap: FuncMap(),
	}
}

// RenderLowered returns the script text of a lowered function
func (e *Engine) RenderLowered(text string, data *LoweringData) (string, error) {
	b, err := e.render(data.Function, text, data)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Engine) render(name, text string, data interface{}) (*bytes.Buffer, error) {
	tmpl, err := template.New(name).Funcs(e.FuncMap).Parse(text)
	if err != nil {
		return nil, err
	}

	b := &bytes.Buffer{}
	if err = tmpl.Execute(b, data); err != nil {
		return nil, err
	}
	return b, nil
}
