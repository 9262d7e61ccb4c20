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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature_Key(t *testing.T) {
	sig := Signature{
		Task:           "fused_nn_matmul",
		StructuralHash: "abc",
		Shape:          [][]int64{{4, 8}, {8, 1}},
		Target:         "llvm -num-cores=1",
	}

	assert.Equal(t, sig.Key(), sig.Key())
	assert.Len(t, sig.Key(), 64)

	other := sig
	other.Target = "llvm -num-cores=2"
	assert.NotEqual(t, sig.Key(), other.Key())

	assert.Equal(t, "fused_nn_matmul([4,8], [8,1]) @ llvm -num-cores=1", sig.String())
}

func TestSortRecords(t *testing.T) {
	testCases := []struct {
		desc     string
		records  []TuningRecord
		expected []string
	}{
		{
			desc: "by cost",
			records: []TuningRecord{
				{Candidate: "b", Cost: 2, Valid: true, Trial: 0},
				{Candidate: "a", Cost: 1, Valid: true, Trial: 1},
			},
			expected: []string{"a", "b"},
		},
		{
			desc: "invalid last",
			records: []TuningRecord{
				{Candidate: "invalid", Cost: 0.1, Valid: false, Trial: 0},
				{Candidate: "slow", Cost: 5, Valid: true, Trial: 1},
			},
			expected: []string{"slow", "invalid"},
		},
		{
			desc: "ties by trial",
			records: []TuningRecord{
				{Candidate: "second", Cost: 1, Valid: true, Trial: 7},
				{Candidate: "first", Cost: 1, Valid: true, Trial: 3},
			},
			expected: []string{"first", "second"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			SortRecords(tc.records)
			var actual []string
			for _, r := range tc.records {
				actual = append(actual, r.Candidate)
			}
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestNewMeasurement(t *testing.T) {
	m := NewMeasurement(100, true, []float64{0.003, 0.001, 0.002})
	assert.Equal(t, 3, m.Repeat)
	assert.Equal(t, 100, m.Number)
	assert.InDelta(t, 0.002, m.Mean, 1e-12)
	assert.InDelta(t, 0.002, m.Median, 1e-12)
	assert.Equal(t, 0.001, m.Min)
	assert.Equal(t, 0.003, m.Max)
	assert.Greater(t, m.Std, 0.0)
	assert.Contains(t, m.String(), "number=100, repeat=3")

	empty := NewMeasurement(100, true, nil)
	assert.Zero(t, empty.Mean)
}

func TestProfile_Summarize(t *testing.T) {
	p := &Profile{Operators: []OperatorProfile{
		{Name: "a", Trials: 3, WeightedLatency: 10},
		{Name: "b", Trials: 5, WeightedLatency: 2.5},
	}}
	p.Summarize()
	assert.Equal(t, 8, p.TotalTrials)
	assert.Equal(t, 12.5, p.TotalLatency)
	assert.Equal(t, 1, p.Operators[1].ID)
}
