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

// PeakLanes is the number of independent multiply-add chains kept in flight by Peak.
const PeakLanes = 8

// DefaultPeakIterations is the loop count used to estimate peak throughput.
const DefaultPeakIterations = 1 << 20

// Peak runs a register resident multiply-add loop over the first PeakLanes values of acc and
// returns the number of floating point operations it computed. Passing b == 0 keeps the
// accumulators constant so the loop never reaches denormals or infinities.
func Peak(acc []float32, b float32, iterations int) int64 {
	if len(acc) < PeakLanes || iterations <= 0 {
		return 0
	}

	a0, a1, a2, a3 := acc[0], acc[1], acc[2], acc[3]
	a4, a5, a6, a7 := acc[4], acc[5], acc[6], acc[7]
	for i := 0; i < iterations; i++ {
		a0 = a0*b + a0
		a1 = a1*b + a1
		a2 = a2*b + a2
		a3 = a3*b + a3
		a4 = a4*b + a4
		a5 = a5*b + a5
		a6 = a6*b + a6
		a7 = a7*b + a7
	}
	acc[0], acc[1], acc[2], acc[3] = a0, a1, a2, a3
	acc[4], acc[5], acc[6], acc[7] = a4, a5, a6, a7

	return int64(2 * PeakLanes * iterations)
}
