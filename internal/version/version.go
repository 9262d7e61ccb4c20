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

// Package version exposes build information for the tuner.
package version

import "strings"

// DefaultProduct is the product name used in user agent strings
const DefaultProduct = "optimize-tuner"

const defaultVersion = "v0.0.0-source"

var (
	// Version is the current version, set at build time with "-X"
	Version = defaultVersion
	// BuildMetadata is additional build information, e.g. a CI build number
	BuildMetadata = ""
	// GitCommit is the commit the binary was built from
	GitCommit = ""
)

// Info describes the version of the binary
type Info struct {
	Version       string `json:"version"`
	BuildMetadata string `json:"build,omitempty"`
	GitCommit     string `json:"gitCommit,omitempty"`
}

// String returns a semver-like representation of the version
func (i *Info) String() string {
	v := i.Version
	if v == "" {
		return defaultVersion
	}
	// Build metadata is only meaningful on pre-release versions
	if i.BuildMetadata != "" && strings.Contains(v, "-") {
		v += "+" + i.BuildMetadata
	}
	return v
}

// GetInfo returns the current version information
func GetInfo() *Info {
	return &Info{
		Version:       Version,
		BuildMetadata: BuildMetadata,
		GitCommit:     GitCommit,
	}
}
