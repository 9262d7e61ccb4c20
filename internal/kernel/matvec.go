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

// Package kernel contains the reference matrix-vector kernels executed by the built-in
// search engine and execution engine. Each kernel is parameterized by a Schedule.
package kernel

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Knob names
const (
	KnobTileM   = "tile_m"
	KnobTileK   = "tile_k"
	KnobUnroll  = "unroll"
	KnobOrder   = "order"
	KnobThreads = "threads"
)

// Loop orders
const (
	// OrderRowDot computes a dot product per output row
	OrderRowDot = 0
	// OrderColumnAxpy accumulates a scaled column into the output block
	OrderColumnAxpy = 1
)

// Schedule is one point in the kernel search space.
type Schedule struct {
	TileM   int
	TileK   int
	Unroll  int
	Order   int
	Threads int
}

// DefaultSchedule is used when nothing better is known.
var DefaultSchedule = Schedule{TileM: 1, TileK: 1 << 30, Unroll: 1, Order: OrderRowDot, Threads: 1}

// ID returns a compact candidate identifier.
func (s Schedule) ID() string {
	return fmt.Sprintf("m%d_k%d_u%d_o%d_t%d", s.TileM, s.TileK, s.Unroll, s.Order, s.Threads)
}

// Knobs returns the schedule as a knob map.
func (s Schedule) Knobs() map[string]int64 {
	return map[string]int64{
		KnobTileM:   int64(s.TileM),
		KnobTileK:   int64(s.TileK),
		KnobUnroll:  int64(s.Unroll),
		KnobOrder:   int64(s.Order),
		KnobThreads: int64(s.Threads),
	}
}

// FromKnobs reads a schedule from a knob map.
func FromKnobs(knobs map[string]int64) (Schedule, error) {
	var missing []string
	get := func(name string) int {
		v, ok := knobs[name]
		if !ok {
			missing = append(missing, name)
		}
		return int(v)
	}
	s := Schedule{
		TileM:   get(KnobTileM),
		TileK:   get(KnobTileK),
		Unroll:  get(KnobUnroll),
		Order:   get(KnobOrder),
		Threads: get(KnobThreads),
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Schedule{}, fmt.Errorf("missing schedule knobs: %s", strings.Join(missing, ", "))
	}
	return s, s.Validate()
}

// Validate checks the schedule values.
func (s Schedule) Validate() error {
	switch {
	case s.TileM <= 0, s.TileK <= 0, s.Threads <= 0:
		return fmt.Errorf("invalid schedule %s: tiles and threads must be positive", s.ID())
	case s.Unroll != 1 && s.Unroll != 2 && s.Unroll != 4 && s.Unroll != 8:
		return fmt.Errorf("invalid schedule %s: unroll must be one of 1, 2, 4, 8", s.ID())
	case s.Order != OrderRowDot && s.Order != OrderColumnAxpy:
		return fmt.Errorf("invalid schedule %s: unknown loop order %d", s.ID(), s.Order)
	}
	return nil
}

// Space enumerates the schedules available to a target with the supplied number of cores.
func Space(numCores int) []Schedule {
	var threads []int
	for t := 1; t <= numCores; t *= 2 {
		threads = append(threads, t)
	}
	if len(threads) == 0 {
		threads = []int{1}
	}

	var space []Schedule
	for _, th := range threads {
		for _, order := range []int{OrderRowDot, OrderColumnAxpy} {
			for tm := 1; tm <= 256; tm *= 2 {
				for tk := 64; tk <= 8192; tk *= 2 {
					for _, u := range []int{1, 2, 4, 8} {
						space = append(space, Schedule{TileM: tm, TileK: tk, Unroll: u, Order: order, Threads: th})
					}
				}
			}
		}
	}
	return space
}

// MatVec computes out = A * w where A is [m, k] (or [k, m] when transposed) and w is [k].
func MatVec(out, a, w []float32, m, k int, transposed bool, s Schedule) {
	threads := s.Threads
	if threads > m {
		threads = m
	}
	if threads <= 1 {
		matVecRange(out, a, w, m, k, transposed, s, 0, m)
		return
	}

	// Split rows into contiguous chunks aligned to the row tile
	chunk := (m + threads - 1) / threads
	if r := chunk % s.TileM; r != 0 {
		chunk += s.TileM - r
	}

	var wg sync.WaitGroup
	for lo := 0; lo < m; lo += chunk {
		hi := lo + chunk
		if hi > m {
			hi = m
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			matVecRange(out, a, w, m, k, transposed, s, lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

func matVecRange(out, a, w []float32, m, k int, transposed bool, s Schedule, lo, hi int) {
	for i0 := lo; i0 < hi; i0 += s.TileM {
		i1 := min(i0+s.TileM, hi)
		for r := i0; r < i1; r++ {
			out[r] = 0
		}

		for k0 := 0; k0 < k; k0 += s.TileK {
			k1 := min(k0+s.TileK, k)
			switch {
			case s.Order == OrderRowDot && !transposed:
				for r := i0; r < i1; r++ {
					out[r] += dot(a[r*k+k0:r*k+k1], w[k0:k1], s.Unroll)
				}
			case s.Order == OrderRowDot && transposed:
				for r := i0; r < i1; r++ {
					out[r] += dotStrided(a, k0*m+r, m, w[k0:k1], s.Unroll)
				}
			case transposed:
				for kk := k0; kk < k1; kk++ {
					axpy(out[i0:i1], a[kk*m+i0:kk*m+i1], w[kk], s.Unroll)
				}
			default:
				for kk := k0; kk < k1; kk++ {
					wk := w[kk]
					for r := i0; r < i1; r++ {
						out[r] += a[r*k+kk] * wk
					}
				}
			}
		}
	}
}

func dot(a, w []float32, unroll int) float32 {
	n := len(w)
	i := 0
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	switch unroll {
	case 8:
		for ; i+8 <= n; i += 8 {
			s0 += a[i] * w[i]
			s1 += a[i+1] * w[i+1]
			s2 += a[i+2] * w[i+2]
			s3 += a[i+3] * w[i+3]
			s4 += a[i+4] * w[i+4]
			s5 += a[i+5] * w[i+5]
			s6 += a[i+6] * w[i+6]
			s7 += a[i+7] * w[i+7]
		}
	case 4:
		for ; i+4 <= n; i += 4 {
			s0 += a[i] * w[i]
			s1 += a[i+1] * w[i+1]
			s2 += a[i+2] * w[i+2]
			s3 += a[i+3] * w[i+3]
		}
	case 2:
		for ; i+2 <= n; i += 2 {
			s0 += a[i] * w[i]
			s1 += a[i+1] * w[i+1]
		}
	}
	for ; i < n; i++ {
		s0 += a[i] * w[i]
	}
	return s0 + s1 + s2 + s3 + s4 + s5 + s6 + s7
}

func dotStrided(a []float32, off, stride int, w []float32, unroll int) float32 {
	n := len(w)
	i := 0
	var s0, s1, s2, s3 float32
	if unroll >= 4 {
		for ; i+4 <= n; i += 4 {
			s0 += a[off+i*stride] * w[i]
			s1 += a[off+(i+1)*stride] * w[i+1]
			s2 += a[off+(i+2)*stride] * w[i+2]
			s3 += a[off+(i+3)*stride] * w[i+3]
		}
	} else if unroll == 2 {
		for ; i+2 <= n; i += 2 {
			s0 += a[off+i*stride] * w[i]
			s1 += a[off+(i+1)*stride] * w[i+1]
		}
	}
	for ; i < n; i++ {
		s0 += a[off+i*stride] * w[i]
	}
	return s0 + s1 + s2 + s3
}

func axpy(y, x []float32, alpha float32, unroll int) {
	n := len(y)
	i := 0
	if unroll >= 4 {
		for ; i+4 <= n; i += 4 {
			y[i] += alpha * x[i]
			y[i+1] += alpha * x[i+1]
			y[i+2] += alpha * x[i+2]
			y[i+3] += alpha * x[i+3]
		}
	}
	for ; i < n; i++ {
		y[i] += alpha * x[i]
	}
}

// Naive computes the reference result with a straightforward triple loop.
func Naive(out, a, w []float32, m, k int, transposed bool) {
	for r := 0; r < m; r++ {
		var acc float64
		for kk := 0; kk < k; kk++ {
			if transposed {
				acc += float64(a[kk*m+r]) * float64(w[kk])
			} else {
				acc += float64(a[r*k+kk]) * float64(w[kk])
			}
		}
		out[r] = float32(acc)
	}
}

// Tolerance is the relative error accepted when comparing a kernel against the reference.
const Tolerance = 1e-2

// Compare returns the index of the first element whose relative error exceeds the tolerance, or -1.
func Compare(actual, expected []float32, eps float64) int {
	if len(actual) != len(expected) {
		return 0
	}
	for i := range expected {
		diff := math.Abs(float64(actual[i]) - float64(expected[i]))
		if diff == 0 {
			continue
		}
		if diff/math.Abs(float64(expected[i])) >= eps {
			return i
		}
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
