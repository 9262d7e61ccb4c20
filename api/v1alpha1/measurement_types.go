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

package v1alpha1

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Measurement holds end-to-end timing statistics for an artifact. All times are in seconds.
type Measurement struct {
	// Number is the number of executions averaged into each result
	Number int `json:"number"`
	// Repeat is the number of results collected
	Repeat int `json:"repeat"`
	// EndToEnd indicates the timing includes the full call boundary
	EndToEnd bool `json:"endToEnd"`
	// Results are the per-repeat mean latencies
	Results []float64 `json:"results"`
	Mean    float64   `json:"mean"`
	Median  float64   `json:"median"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Std     float64   `json:"std"`
}

// NewMeasurement computes the summary statistics for the supplied results.
func NewMeasurement(number int, endToEnd bool, results []float64) *Measurement {
	m := &Measurement{
		Number:   number,
		Repeat:   len(results),
		EndToEnd: endToEnd,
		Results:  append([]float64(nil), results...),
	}
	if len(results) == 0 {
		return m
	}

	sorted := append([]float64(nil), results...)
	sort.Float64s(sorted)
	m.Min = sorted[0]
	m.Max = sorted[len(sorted)-1]
	if n := len(sorted); n%2 == 1 {
		m.Median = sorted[n/2]
	} else {
		m.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	var sum float64
	for _, r := range results {
		sum += r
	}
	m.Mean = sum / float64(len(results))

	var ss float64
	for _, r := range results {
		ss += (r - m.Mean) * (r - m.Mean)
	}
	m.Std = math.Sqrt(ss / float64(len(results)))
	return m
}

// String renders the measurement the same way regardless of the output channel.
func (m *Measurement) String() string {
	ms := func(s float64) string { return fmt.Sprintf("%.4f", s*float64(time.Second)/float64(time.Millisecond)) }
	return fmt.Sprintf("Execution time summary (number=%d, repeat=%d):\n mean (ms)   median (ms)    max (ms)     min (ms)     std (ms)\n %s   %s   %s   %s   %s\n",
		m.Number, m.Repeat, ms(m.Mean), ms(m.Median), ms(m.Max), ms(m.Min), ms(m.Std))
}

// OperatorProfile is the per-operator breakdown of a profiled execution.
type OperatorProfile struct {
	// ID is the position of the operator in the profile
	ID int `json:"id"`
	// Name is the name of the (fused) operator function
	Name string `json:"name"`
	// FLOP is the number of floating point operations computed by one call
	FLOP int64 `json:"flop"`
	// Weight is the number of times the operator is invoked per execution
	Weight int `json:"weight"`
	// Speed is the observed throughput in GFLOPS
	Speed float64 `json:"speed"`
	// PeakPercent is the speed as a percentage of the peak throughput available to the operator
	PeakPercent float64 `json:"peakPercent,omitempty"`
	// Latency is the observed latency of one call in microseconds
	Latency float64 `json:"latency"`
	// WeightedLatency is the latency multiplied by the weight, in microseconds
	WeightedLatency float64 `json:"weightedLatency"`
	// Trials is the number of tuning trials recorded for the operator
	Trials int `json:"trials"`
	// Done indicates tuning of the operator reached its allocation
	Done bool `json:"done"`
}

// Profile is the per-operator breakdown of an execution.
type Profile struct {
	Operators []OperatorProfile `json:"operators"`
	// TotalTrials is the sum of trials across all operators
	TotalTrials int `json:"totalTrials"`
	// TotalLatency is the sum of weighted latencies, in microseconds
	TotalLatency float64 `json:"totalLatency"`
	// PeakSpeed is the measured single core multiply-add throughput in GFLOPS
	PeakSpeed float64 `json:"peakSpeed,omitempty"`
}

// Summarize recomputes the profile totals.
func (p *Profile) Summarize() {
	p.TotalTrials = 0
	p.TotalLatency = 0
	for i := range p.Operators {
		p.Operators[i].ID = i
		p.TotalTrials += p.Operators[i].Trials
		p.TotalLatency += p.Operators[i].WeightedLatency
	}
}
