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

// Package report renders tuning and benchmark results for people and publishes them to monitoring services.
package report

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/database"
)

// RecordItem is a ranked tuning record of a single task.
type RecordItem struct {
	Task string `json:"task"`
	Rank int    `json:"rank"`
	v1alpha1.TuningRecord
}

// RecordList is the ranked tuning records of every workload in a database.
type RecordList struct {
	Items []RecordItem `json:"items"`
}

// Records collects the ranked records of every workload, keeping at most limit records per workload (zero for all).
func Records(ctx context.Context, db database.Database, limit int) (*RecordList, error) {
	wls, err := db.Workloads(ctx)
	if err != nil {
		return nil, err
	}

	l := &RecordList{}
	for _, wl := range wls {
		records, err := db.Records(ctx, wl.Key)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		for i := range records {
			l.Items = append(l.Items, RecordItem{Task: wl.Signature.Task, Rank: i + 1, TuningRecord: records[i]})
		}
	}
	return l, nil
}

// RecordTable describes how tuning records are rendered as a table.
type RecordTable struct{}

// ExtractList returns the individual records
func (RecordTable) ExtractList(obj interface{}) ([]interface{}, error) {
	switch o := obj.(type) {
	case *RecordList:
		list := make([]interface{}, len(o.Items))
		for i := range o.Items {
			list[i] = &o.Items[i]
		}
		return list, nil
	case *RecordItem:
		return []interface{}{o}, nil
	}
	return nil, fmt.Errorf("unable to list %T", obj)
}

// Columns returns the record columns, knobs are shown as labels
func (RecordTable) Columns(obj interface{}, outputFormat string, showLabels bool) []string {
	columns := []string{"task", "rank", "trial", "candidate", "cost", "valid"}
	if outputFormat == "wide" || outputFormat == "csv" {
		columns = append(columns, "error")
	}
	if !showLabels {
		return columns
	}

	// CSV knobs need to be split out into individual columns
	if outputFormat == "csv" {
		for _, k := range knobNames(obj) {
			columns = append(columns, "knob_"+k)
		}
		return columns
	}
	return append(columns, "knobs")
}

// ExtractValue returns a cell value
func (RecordTable) ExtractValue(obj interface{}, column string) (string, error) {
	if o, ok := obj.(*RecordItem); ok {
		switch column {
		case "task":
			return o.Task, nil
		case "rank":
			return strconv.Itoa(o.Rank), nil
		case "trial":
			return strconv.Itoa(o.Trial), nil
		case "name", "candidate":
			return o.Candidate, nil
		case "cost":
			return formatMillis(o.Cost), nil
		case "valid":
			return strconv.FormatBool(o.Valid), nil
		case "error":
			return o.Error, nil
		case "knobs":
			knobs := make([]string, 0, len(o.Knobs))
			for k, v := range o.Knobs {
				knobs = append(knobs, fmt.Sprintf("%s=%d", k, v))
			}
			sort.Strings(knobs)
			return strings.Join(knobs, ","), nil
		default:
			if kn := strings.TrimPrefix(column, "knob_"); kn != column {
				if v, ok := o.Knobs[kn]; ok {
					return strconv.FormatInt(v, 10), nil
				}
				return "", nil
			}
		}
	}
	return "", fmt.Errorf("unable to get value for column %s", column)
}

// Header returns the header name to use for a column
func (RecordTable) Header(outputFormat string, column string) string {
	if column == "cost" && strings.ToLower(outputFormat) != "csv" {
		return "COST (MS)"
	}
	return header(outputFormat, column)
}

// ProfileTable describes how benchmark measurements and operator profiles are rendered as a table.
type ProfileTable struct{}

// ExtractList returns the operators of a profile (or benchmark) or the single measurement
func (ProfileTable) ExtractList(obj interface{}) ([]interface{}, error) {
	switch o := obj.(type) {
	case *v1alpha1.Profile:
		list := make([]interface{}, len(o.Operators))
		for i := range o.Operators {
			list[i] = &o.Operators[i]
		}
		return list, nil
	case *Benchmark:
		if o.Profile == nil {
			return nil, nil
		}
		return ProfileTable{}.ExtractList(o.Profile)
	case *v1alpha1.OperatorProfile, *v1alpha1.Measurement:
		return []interface{}{o}, nil
	}
	return nil, fmt.Errorf("unable to list %T", obj)
}

// Columns returns the default columns for a profile or measurement
func (ProfileTable) Columns(obj interface{}, outputFormat string, showLabels bool) []string {
	switch obj.(type) {
	case *v1alpha1.Measurement:
		return []string{"number", "repeat", "mean", "median", "min", "max", "std"}
	}
	return []string{"id", "name", "flop", "weight", "speed", "peakPercent", "latency", "weightedLatency", "trials", "done"}
}

// ExtractValue returns a cell value
func (ProfileTable) ExtractValue(obj interface{}, column string) (string, error) {
	switch o := obj.(type) {
	case *v1alpha1.OperatorProfile:
		switch column {
		case "id":
			return strconv.Itoa(o.ID), nil
		case "name":
			return o.Name, nil
		case "flop":
			return strconv.FormatInt(o.FLOP, 10), nil
		case "weight":
			return strconv.Itoa(o.Weight), nil
		case "speed":
			return strconv.FormatFloat(o.Speed, 'f', 2, 64), nil
		case "peakPercent":
			return strconv.FormatFloat(o.PeakPercent, 'f', 1, 64), nil
		case "latency":
			return strconv.FormatFloat(o.Latency, 'f', 2, 64), nil
		case "weightedLatency":
			return strconv.FormatFloat(o.WeightedLatency, 'f', 2, 64), nil
		case "trials":
			return strconv.Itoa(o.Trials), nil
		case "done":
			return strconv.FormatBool(o.Done), nil
		}
	case *v1alpha1.Measurement:
		switch column {
		case "number":
			return strconv.Itoa(o.Number), nil
		case "repeat":
			return strconv.Itoa(o.Repeat), nil
		case "mean":
			return formatMillis(o.Mean), nil
		case "median":
			return formatMillis(o.Median), nil
		case "min":
			return formatMillis(o.Min), nil
		case "max":
			return formatMillis(o.Max), nil
		case "std":
			return formatMillis(o.Std), nil
		}
	}
	return "", fmt.Errorf("unable to get value for column %s", column)
}

// Header returns the header name to use for a column
func (ProfileTable) Header(outputFormat string, column string) string {
	if strings.ToLower(outputFormat) != "csv" {
		switch column {
		case "flop":
			return "FLOP"
		case "speed":
			return "SPEED (GFLOPS)"
		case "peakPercent":
			return "PEAK (%)"
		case "latency", "weightedLatency":
			return header(outputFormat, column) + " (US)"
		case "mean", "median", "min", "max", "std":
			return strings.ToUpper(column) + " (MS)"
		}
	}
	return header(outputFormat, column)
}

var wordBoundary = regexp.MustCompile("(.)([A-Z])")

func header(outputFormat, column string) string {
	if strings.ToLower(outputFormat) == "csv" {
		return column
	}
	return strings.ToUpper(wordBoundary.ReplaceAllString(column, "$1 $2"))
}

func formatMillis(seconds float64) string {
	return strconv.FormatFloat(seconds*1e3, 'f', 4, 64)
}

func knobNames(obj interface{}) []string {
	var items []RecordItem
	switch o := obj.(type) {
	case *RecordList:
		items = o.Items
	case *RecordItem:
		items = []RecordItem{*o}
	}

	names := make(map[string]bool)
	for i := range items {
		for k := range items[i].Knobs {
			names[k] = true
		}
	}
	result := make([]string, 0, len(names))
	for k := range names {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
