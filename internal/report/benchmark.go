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

package report

import (
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/compiler"
	"github.com/thestormforge/optimize-tuner/internal/tuner"
)

// Benchmark is the printable outcome of a compile and benchmark run. Tables render the operator profile.
type Benchmark struct {
	Target      string                `json:"target"`
	Tuning      *tuner.TimingSummary  `json:"tuning,omitempty"`
	Lowered     map[string]string     `json:"lowered,omitempty"`
	Measurement *v1alpha1.Measurement `json:"measurement,omitempty"`
	Profile     *v1alpha1.Profile     `json:"profile,omitempty"`
}

// NewBenchmark collects the results of the individual phases, any of which may be nil.
func NewBenchmark(tgt string, summary *tuner.TimingSummary, lowered *compiler.Captured, m *v1alpha1.Measurement, p *v1alpha1.Profile) *Benchmark {
	b := &Benchmark{Target: tgt, Tuning: summary, Measurement: m, Profile: p}
	if lowered != nil {
		b.Lowered = make(map[string]string, len(lowered.Functions))
		for name, fn := range lowered.Functions {
			b.Lowered[name] = fn.Script
		}
	}
	return b
}
