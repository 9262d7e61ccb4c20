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

package kernel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSlice(r *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = r.Float32()
	}
	return s
}

func TestMatVec(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	testCases := []struct {
		desc       string
		m, k       int
		transposed bool
	}{
		{desc: "square", m: 37, k: 37},
		{desc: "tall", m: 129, k: 17},
		{desc: "wide", m: 5, k: 300},
		{desc: "transposed square", m: 37, k: 37, transposed: true},
		{desc: "transposed wide", m: 5, k: 300, transposed: true},
	}
	schedules := []Schedule{
		DefaultSchedule,
		{TileM: 4, TileK: 64, Unroll: 8, Order: OrderRowDot, Threads: 1},
		{TileM: 8, TileK: 128, Unroll: 4, Order: OrderColumnAxpy, Threads: 1},
		{TileM: 2, TileK: 64, Unroll: 2, Order: OrderColumnAxpy, Threads: 3},
		{TileM: 16, TileK: 8192, Unroll: 1, Order: OrderRowDot, Threads: 4},
	}

	for _, tc := range testCases {
		a := randomSlice(r, tc.m*tc.k)
		w := randomSlice(r, tc.k)
		expected := make([]float32, tc.m)
		Naive(expected, a, w, tc.m, tc.k, tc.transposed)

		for _, s := range schedules {
			t.Run(tc.desc+"/"+s.ID(), func(t *testing.T) {
				actual := make([]float32, tc.m)
				for i := range actual {
					actual[i] = -1 // make sure the kernel resets the output
				}
				MatVec(actual, a, w, tc.m, tc.k, tc.transposed, s)
				assert.Equal(t, -1, Compare(actual, expected, Tolerance))
			})
		}
	}
}

func TestSpace(t *testing.T) {
	single := Space(1)
	assert.Len(t, single, 2*9*8*4)
	assert.GreaterOrEqual(t, len(single), 256)

	seen := make(map[string]bool, len(single))
	for _, s := range single {
		require.NoError(t, s.Validate())
		assert.Equal(t, 1, s.Threads)
		assert.False(t, seen[s.ID()], "duplicate %s", s.ID())
		seen[s.ID()] = true
	}

	assert.Len(t, Space(4), 3*len(single))
	assert.Len(t, Space(0), len(single))
}

func TestFromKnobs(t *testing.T) {
	s := Schedule{TileM: 8, TileK: 256, Unroll: 4, Order: OrderColumnAxpy, Threads: 2}
	actual, err := FromKnobs(s.Knobs())
	require.NoError(t, err)
	assert.Equal(t, s, actual)

	_, err = FromKnobs(map[string]int64{KnobTileM: 1})
	assert.EqualError(t, err, "missing schedule knobs: order, threads, tile_k, unroll")

	bad := s.Knobs()
	bad[KnobUnroll] = 3
	_, err = FromKnobs(bad)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare([]float32{1, 2, 0}, []float32{1, 2.001, 0}, Tolerance))
	assert.Equal(t, 1, Compare([]float32{1, 3}, []float32{1, 2}, Tolerance))
	assert.Equal(t, 0, Compare([]float32{1}, []float32{1, 2}, Tolerance))
}

func BenchmarkMatVec(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	const m, k = 1024, 1024
	a := randomSlice(r, m*k)
	w := randomSlice(r, k)
	out := make([]float32, m)

	for _, s := range []Schedule{
		DefaultSchedule,
		{TileM: 8, TileK: 512, Unroll: 8, Order: OrderRowDot, Threads: 1},
		{TileM: 64, TileK: 256, Unroll: 4, Order: OrderColumnAxpy, Threads: 1},
	} {
		b.Run(s.ID(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				MatVec(out, a, w, m, k, false, s)
			}
		})
	}
}

func TestPeak(t *testing.T) {
	testCases := []struct {
		desc       string
		acc        []float32
		b          float32
		iterations int
		flop       int64
		expected   []float32
	}{
		{
			desc:       "constant accumulators",
			acc:        []float32{1, 2, 3, 4, 5, 6, 7, 8},
			iterations: 1000,
			flop:       2 * PeakLanes * 1000,
			expected:   []float32{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			desc:       "doubling",
			acc:        []float32{1, 1, 1, 1, 1, 1, 1, 1},
			b:          1,
			iterations: 3,
			flop:       2 * PeakLanes * 3,
			expected:   []float32{8, 8, 8, 8, 8, 8, 8, 8},
		},
		{
			desc:       "short accumulator",
			acc:        []float32{1, 2},
			iterations: 10,
			expected:   []float32{1, 2},
		},
		{
			desc:     "no iterations",
			acc:      make([]float32, PeakLanes),
			expected: make([]float32, PeakLanes),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.flop, Peak(tc.acc, tc.b, tc.iterations))
			assert.Equal(t, tc.expected, tc.acc)
		})
	}
}
