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
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LoweredFunc is the near-hardware representation of a single function.
type LoweredFunc struct {
	// Name is the function name
	Name string `json:"name"`
	// Script is the rendered lowered representation
	Script string `json:"script"`
	// Candidate identifies the schedule applied to the function
	Candidate string `json:"candidate,omitempty"`
	// Knobs are the schedule parameters applied to the function
	Knobs map[string]int64 `json:"knobs,omitempty"`
}

// Instrument observes lowering, it is invoked once per function after lowering completes.
type Instrument interface {
	AfterLowering(fn LoweredFunc)
}

// InstrumentFunc adapts a function to the Instrument interface.
type InstrumentFunc func(fn LoweredFunc)

// AfterLowering invokes the function.
func (f InstrumentFunc) AfterLowering(fn LoweredFunc) { f(fn) }

// Captured holds lowered representations keyed by function name.
type Captured struct {
	Functions map[string]LoweredFunc `json:"functions"`
}

// Names returns the captured function names in sorted order.
func (c *Captured) Names() []string {
	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders every captured function, each preceded by its name.
func (c *Captured) String() string {
	var b strings.Builder
	for _, name := range c.Names() {
		fmt.Fprintf(&b, "%s\n%s\n", name, strings.TrimRight(c.Functions[name].Script, "\n"))
	}
	return b.String()
}

// SaveLowered is an instrument which captures every lowered function.
type SaveLowered struct {
	mu        sync.Mutex
	functions map[string]LoweredFunc
}

// AfterLowering records the function, later functions with the same name replace earlier ones.
func (s *SaveLowered) AfterLowering(fn LoweredFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.functions == nil {
		s.functions = make(map[string]LoweredFunc)
	}
	s.functions[fn.Name] = fn
}

// Captured returns a snapshot of the captured functions.
func (s *SaveLowered) Captured() *Captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Captured{Functions: make(map[string]LoweredFunc, len(s.functions))}
	for k, v := range s.functions {
		c.Functions[k] = v
	}
	return c
}
