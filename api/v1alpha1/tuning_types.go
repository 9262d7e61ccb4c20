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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Signature identifies a tunable unit of work. Two graphs producing the same
// signature are tuned against the same database entry.
type Signature struct {
	// Task is the name of the fused operator being tuned (e.g. "fused_nn_matmul")
	Task string `json:"task"`
	// StructuralHash is a digest of the operator structure (operator kinds and attributes)
	StructuralHash string `json:"structuralHash"`
	// Shape is the list of input shapes for the task, in argument order
	Shape [][]int64 `json:"shape"`
	// Target is the canonical target description the task is tuned for
	Target string `json:"target"`
}

// Key returns a deterministic identifier for the signature.
func (s Signature) Key() string {
	// Struct field order is fixed so the encoding is stable
	b, err := json.Marshal(&s)
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// String returns a short human readable form of the signature.
func (s Signature) String() string {
	shapes := make([]string, 0, len(s.Shape))
	for _, sh := range s.Shape {
		dims := make([]string, 0, len(sh))
		for _, d := range sh {
			dims = append(dims, fmt.Sprintf("%d", d))
		}
		shapes = append(shapes, "["+strings.Join(dims, ",")+"]")
	}
	return fmt.Sprintf("%s(%s) @ %s", s.Task, strings.Join(shapes, ", "), s.Target)
}

// Workload is a registered signature in a tuning database.
type Workload struct {
	// Key is the signature key
	Key string `json:"key"`
	// Signature is the full workload signature
	Signature Signature `json:"signature"`
}

// TuningRecord is one measured candidate implementation for a workload.
type TuningRecord struct {
	// WorkloadKey is the signature key of the workload this record belongs to
	WorkloadKey string `json:"workloadKey"`
	// Candidate is the identifier of the candidate implementation
	Candidate string `json:"candidate"`
	// Knobs are the schedule parameters of the candidate
	Knobs map[string]int64 `json:"knobs,omitempty"`
	// Cost is the measured mean latency of the candidate, in seconds
	Cost float64 `json:"cost"`
	// Trial is the zero based index of the trial which produced this record
	Trial int `json:"trial"`
	// Valid indicates the candidate produced correct results
	Valid bool `json:"valid"`
	// Error is the reason the candidate is invalid, if any
	Error string `json:"error,omitempty"`
	// Created is the time the record was measured
	Created metav1.Time `json:"created"`
}

// Better reports whether r ranks ahead of o: valid records come first, then
// lower cost, then earlier trials.
func (r *TuningRecord) Better(o *TuningRecord) bool {
	if r.Valid != o.Valid {
		return r.Valid
	}
	if r.Cost != o.Cost {
		return r.Cost < o.Cost
	}
	return r.Trial < o.Trial
}

// SortRecords ranks the supplied records in place.
func SortRecords(records []TuningRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Better(&records[j]) })
}

// Session is an entry in the append-only log of tuning sessions run against a database.
type Session struct {
	// ID is a unique (lexically sortable) session identifier
	ID string `json:"id"`
	// Target is the canonical target description used for the session
	Target string `json:"target"`
	// TrialBudget is the total number of trials requested for the session
	TrialBudget int `json:"trialBudget"`
	// Allocations is the number of trials each workload was entitled to, by workload key
	Allocations map[string]int `json:"allocations,omitempty"`
	// Started is the time the session started
	Started metav1.Time `json:"started"`
	// Elapsed is the wall-clock duration of the session
	Elapsed metav1.Duration `json:"elapsed"`
}

// NewTime is a convenience for stamping records.
func NewTime(t time.Time) metav1.Time {
	return metav1.NewTime(t.UTC().Truncate(time.Second))
}

// NewDuration is a convenience for stamping sessions.
func NewDuration(d time.Duration) metav1.Duration {
	return metav1.Duration{Duration: d.Round(time.Millisecond)}
}
