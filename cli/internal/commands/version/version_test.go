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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thestormforge/optimize-tuner/internal/version"
)

func TestVersion(t *testing.T) {
	defer func(v, c string) { version.Version, version.GitCommit = v, c }(version.Version, version.GitCommit)
	version.Version = "v1.2.3"
	version.GitCommit = "0123456789abcdef"

	testCases := []struct {
		desc     string
		args     []string
		expected string
	}{
		{
			desc:     "default",
			expected: "optimize-tuner version: v1.2.3 (0123456)\ndatabase format: v1.0.0\n",
		},
		{
			desc:     "template",
			args:     []string{"--template", "{{ .Version | trimPrefix \"v\" }}"},
			expected: "1.2.3",
		},
		{
			desc:     "yaml",
			args:     []string{"-o", "yaml"},
			expected: "databaseFormat: v1.0.0\ngitCommit: 0123456789abcdef\nproduct: optimize-tuner\nversion: v1.2.3\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var out bytes.Buffer
			cmd := NewCommand(&Options{})
			cmd.SetArgs(tc.args)
			cmd.SetOut(&out)
			require.NoError(t, cmd.Execute())
			assert.Equal(t, tc.expected, out.String())
		})
	}
}
