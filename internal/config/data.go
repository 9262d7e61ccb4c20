/*
Copyright 2020 GramLabs, Inc.

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

package config

import "encoding/json"

// Config is the top level configuration structure for the tuner
type Config struct {
	// WorkDir is the directory holding the tuning database and metrics; there is no default
	WorkDir string `json:"workDir,omitempty"`
	// Target is the target description, e.g. "llvm -num-cores=1"
	Target string `json:"target,omitempty"`
	// Trials is the tuning trial budget
	Trials int `json:"trials,omitempty"`
	// Database is the tuning database backend ("json" or "sqlite")
	Database string `json:"database,omitempty"`
	// Workload describes the graph to build
	Workload Workload `json:"workload,omitempty"`
	// Search configures the built-in search engine
	Search Search `json:"search,omitempty"`
	// Compile configures the compiler invocation
	Compile Compile `json:"compile,omitempty"`
	// Benchmark configures the benchmark runner
	Benchmark Benchmark `json:"benchmark,omitempty"`
	// Datadog configures optional publishing of measurements
	Datadog Datadog `json:"datadog,omitempty"`
}

// Workload contains the shape of the toy model
type Workload struct {
	// M is the number of output rows
	M int64 `json:"m,omitempty"`
	// K is the contraction length
	K int64 `json:"k,omitempty"`
	// Layout is the data operand layout, "standard" or "transposed"
	Layout string `json:"layout,omitempty"`
}

// Search contains the built-in search engine settings
type Search struct {
	// Repeats is the number of timed runs per candidate
	Repeats int `json:"repeats,omitempty"`
	// Warmups is the number of untimed runs per candidate
	Warmups *int `json:"warmups,omitempty"`
	// Seed randomizes the candidate order and generated operands
	Seed int64 `json:"seed,omitempty"`
}

// Compile contains the compiler settings
type Compile struct {
	// FuseMaxDepth bounds operator fusion
	FuseMaxDepth int `json:"fuseMaxDepth,omitempty"`
	// OptLevel is the optimization level
	OptLevel *int `json:"optLevel,omitempty"`
	// DisabledPasses are lowering passes to skip
	DisabledPasses []string `json:"disabledPasses,omitempty"`
}

// Benchmark contains the benchmark runner settings
type Benchmark struct {
	// Number is the number of calls averaged into one result
	Number int `json:"number,omitempty"`
	// Repeat is the number of results collected
	Repeat int `json:"repeat,omitempty"`
	// Warmup is the number of untimed calls
	Warmup int `json:"warmup,omitempty"`
	// EndToEnd includes host to device transfer in the timing
	EndToEnd *bool `json:"endToEnd,omitempty"`
}

// Datadog contains the credentials used to publish measurements
type Datadog struct {
	// APIKey enables publishing when set
	APIKey string `json:"apiKey,omitempty"`
	// AppKey is the application key
	AppKey string `json:"appKey,omitempty"`
	// Site overrides the API base URL
	Site string `json:"site,omitempty"`
	// Tags are attached to every published series
	Tags []string `json:"tags,omitempty"`
}

// MarshalJSON omits empty sections
func (c Config) MarshalJSON() ([]byte, error) {
	type C Config
	aux := struct {
		C
		Workload  *Workload  `json:"workload,omitempty"`
		Search    *Search    `json:"search,omitempty"`
		Compile   *Compile   `json:"compile,omitempty"`
		Benchmark *Benchmark `json:"benchmark,omitempty"`
		Datadog   *Datadog   `json:"datadog,omitempty"`
	}{C: C(c)}
	if (Workload{}) != c.Workload {
		aux.Workload = &c.Workload
	}
	if (Search{}) != c.Search {
		aux.Search = &c.Search
	}
	if c.Compile.FuseMaxDepth != 0 || c.Compile.OptLevel != nil || len(c.Compile.DisabledPasses) > 0 {
		aux.Compile = &c.Compile
	}
	if (Benchmark{}) != c.Benchmark {
		aux.Benchmark = &c.Benchmark
	}
	if c.Datadog.APIKey != "" || c.Datadog.AppKey != "" || c.Datadog.Site != "" || len(c.Datadog.Tags) > 0 {
		aux.Datadog = &c.Datadog
	}
	return json.Marshal(aux)
}
