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

// Package target parses compilation target descriptions such as "llvm -num-cores=1".
package target

import (
	"fmt"
	"io/ioutil"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
)

// Kinds of CPU-class backends
var cpuKinds = map[string]bool{"llvm": true, "c": true}

// Kinds of GPU-class backends
var gpuKinds = map[string]bool{"cuda": true, "rocm": true, "vulkan": true, "opencl": true, "metal": true}

// Device identifies where an artifact executes.
type Device struct {
	// Type is the device type, either "cpu" or "cuda"
	Type string `json:"type"`
	// ID is the device index
	ID int `json:"id"`
}

func (d Device) String() string { return fmt.Sprintf("%s(%d)", d.Type, d.ID) }

// Target is an immutable, comparable description of a compilation target.
type Target struct {
	kind  string
	attrs map[string]string
}

// Parse reads a target description. The first token is the backend kind, the remaining
// tokens are "-key=value" (or "-key value") attributes.
func Parse(s string) (Target, error) {
	tokens, err := shlex.Split(s)
	if err != nil {
		return Target{}, errdefs.NewConfigurationError("target", "%v", err)
	}
	if len(tokens) == 0 {
		return Target{}, errdefs.NewConfigurationError("target", "missing target")
	}

	t := Target{kind: tokens[0], attrs: make(map[string]string)}
	if !cpuKinds[t.kind] && !gpuKinds[t.kind] {
		return Target{}, errdefs.NewConfigurationError("target", "unknown target kind %q", t.kind)
	}

	fs := pflag.NewFlagSet(t.kind, pflag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	fs.Int("num-cores", 0, "number of cores")
	fs.Int("max-threads", 0, "maximum number of threads per block")
	fs.String("mcpu", "", "target CPU")
	fs.String("mtriple", "", "target triple")
	fs.String("arch", "", "target architecture")
	fs.StringSlice("mattr", nil, "target features")

	// Attributes use a single dash, pflag wants two for long names
	args := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "-") && !strings.HasPrefix(tok, "--") {
			tok = "-" + tok
		}
		args = append(args, tok)
	}
	if err := fs.Parse(args); err != nil {
		return Target{}, errdefs.NewConfigurationError("target", "%v", err)
	}
	if fs.NArg() > 0 {
		return Target{}, errdefs.NewConfigurationError("target", "unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	fs.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		if f.Value.Type() == "stringSlice" {
			v = strings.Join(mustSlice(fs.GetStringSlice(f.Name)), ",")
		}
		t.attrs[f.Name] = v
	})

	if n, ok := t.attrs["num-cores"]; ok {
		if c, _ := strconv.Atoi(n); c <= 0 {
			return Target{}, errdefs.NewConfigurationError("target", "num-cores must be positive")
		}
	}

	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Target {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustSlice(v []string, _ error) []string { return v }

// Kind returns the backend kind name (e.g. "llvm" or "cuda").
func (t Target) Kind() string { return t.kind }

// Attr returns the named attribute.
func (t Target) Attr(name string) (string, bool) {
	v, ok := t.attrs[name]
	return v, ok
}

// IsZero returns true for the uninitialized target.
func (t Target) IsZero() bool { return t.kind == "" }

// IsGPU returns true for GPU-class backends.
func (t Target) IsGPU() bool { return gpuKinds[t.kind] }

// Device returns the device artifacts for this target execute on.
func (t Target) Device() Device {
	if t.IsGPU() {
		return Device{Type: "cuda", ID: 0}
	}
	return Device{Type: "cpu", ID: 0}
}

// NumCores returns the number of cores the target may use.
func (t Target) NumCores() int {
	if n, err := strconv.Atoi(t.attrs["num-cores"]); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// String returns the canonical form of the target: the kind followed by sorted attributes.
func (t Target) String() string {
	if t.kind == "" {
		return ""
	}
	keys := make([]string, 0, len(t.attrs))
	for k := range t.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{t.kind}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("-%s=%s", k, t.attrs[k]))
	}
	return strings.Join(parts, " ")
}

// Equal compares the canonical forms of two targets.
func (t Target) Equal(o Target) bool {
	return t.String() == o.String()
}
