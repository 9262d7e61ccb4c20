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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_String(t *testing.T) {
	testCases := []struct {
		desc     string
		info     Info
		expected string
	}{
		{
			desc:     "default version",
			expected: defaultVersion,
		},
		{
			desc:     "pre-release version",
			info:     Info{Version: "v1.2.3-rc.1", BuildMetadata: "test"},
			expected: "v1.2.3-rc.1+test",
		},
		{
			desc:     "release version",
			info:     Info{Version: "v1.2.3", BuildMetadata: "test"},
			expected: "v1.2.3",
		},
		{
			desc:     "commit only",
			info:     Info{Version: "v1.2.3", GitCommit: "0123456"},
			expected: "v1.2.3",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.info.String())
		})
	}
}

func TestGetInfo(t *testing.T) {
	defer func(v, b, c string) { Version, BuildMetadata, GitCommit = v, b, c }(Version, BuildMetadata, GitCommit)
	Version, BuildMetadata, GitCommit = "v2.0.0-beta", "ci.7", "abcdef"

	assert.Equal(t, &Info{Version: "v2.0.0-beta", BuildMetadata: "ci.7", GitCommit: "abcdef"}, GetInfo())
	assert.Equal(t, "v2.0.0-beta+ci.7", GetInfo().String())
}
