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

// Package compiler invokes a compiler backend with a fixed, explicit configuration profile.
package compiler

import (
	"strconv"

	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Configuration option names
const (
	OptionUseTunedDispatch  = "backend.use_tuned_dispatch"
	OptionUseTunedSelection = "backend.use_tuned_selection"
	OptionFuseMaxDepth      = "fuse.max_depth"
)

// Lowering pass names
const (
	PassCommonSubexprElim = "tir.CommonSubexprElim"
	PassUnrollLoop        = "tir.UnrollLoop"
)

// Configuration defaults
const (
	DefaultFuseMaxDepth = 30
	MaxOptLevel         = 3
)

// Configuration is the immutable description of a single compilation.
type Configuration struct {
	target      target.Target
	database    database.Database
	options     map[string]string
	disabled    sets.String
	optLevel    int
	instruments []Instrument
}

// DefaultConfiguration returns the profile applied to every compilation: tuned dispatch is on,
// tuned selection is on for non-GPU targets, fusion depth is capped and optimization is maximal.
func DefaultConfiguration(tgt target.Target, db database.Database) *Configuration {
	return &Configuration{
		target:   tgt,
		database: db,
		options: map[string]string{
			OptionUseTunedDispatch:  "true",
			OptionUseTunedSelection: strconv.FormatBool(!tgt.IsGPU()),
			OptionFuseMaxDepth:      strconv.Itoa(DefaultFuseMaxDepth),
		},
		disabled: sets.NewString(),
		optLevel: MaxOptLevel,
	}
}

func (c *Configuration) clone() *Configuration {
	cc := *c
	cc.options = make(map[string]string, len(c.options))
	for k, v := range c.options {
		cc.options[k] = v
	}
	cc.disabled = sets.NewString(c.disabled.UnsortedList()...)
	cc.instruments = append([]Instrument(nil), c.instruments...)
	return &cc
}

// WithOption returns a copy of the configuration with an option set.
func (c *Configuration) WithOption(name, value string) *Configuration {
	cc := c.clone()
	cc.options[name] = value
	return cc
}

// WithDisabledPasses returns a copy of the configuration with additional passes disabled.
func (c *Configuration) WithDisabledPasses(passes ...string) *Configuration {
	cc := c.clone()
	cc.disabled.Insert(passes...)
	return cc
}

// WithOptLevel returns a copy of the configuration with a different optimization level.
func (c *Configuration) WithOptLevel(level int) *Configuration {
	cc := c.clone()
	cc.optLevel = level
	return cc
}

// WithInstruments returns a copy of the configuration with additional instruments.
func (c *Configuration) WithInstruments(instruments ...Instrument) *Configuration {
	cc := c.clone()
	for _, i := range instruments {
		if i != nil {
			cc.instruments = append(cc.instruments, i)
		}
	}
	return cc
}

// Target returns the compilation target.
func (c *Configuration) Target() target.Target { return c.target }

// Database returns the tuning database consulted by tuned dispatch.
func (c *Configuration) Database() database.Database { return c.database }

// OptLevel returns the optimization level.
func (c *Configuration) OptLevel() int { return c.optLevel }

// Instruments returns the lowering observers.
func (c *Configuration) Instruments() []Instrument {
	return append([]Instrument(nil), c.instruments...)
}

// Option returns the raw value of an option.
func (c *Configuration) Option(name string) (string, bool) {
	v, ok := c.options[name]
	return v, ok
}

// BoolOption returns the value of a boolean option, false if unset or malformed.
func (c *Configuration) BoolOption(name string) bool {
	b, _ := strconv.ParseBool(c.options[name])
	return b
}

// IntOption returns the value of an integer option, the default if unset or malformed.
func (c *Configuration) IntOption(name string, def int) int {
	if i, err := strconv.Atoi(c.options[name]); err == nil {
		return i
	}
	return def
}

// Options returns a copy of every option.
func (c *Configuration) Options() map[string]string {
	o := make(map[string]string, len(c.options))
	for k, v := range c.options {
		o[k] = v
	}
	return o
}

// DisabledPasses returns the sorted list of disabled passes.
func (c *Configuration) DisabledPasses() []string { return c.disabled.List() }

// PassEnabled returns true if the named pass runs at the configured optimization level.
func (c *Configuration) PassEnabled(name string, minOptLevel int) bool {
	return c.optLevel >= minOptLevel && !c.disabled.Has(name)
}
