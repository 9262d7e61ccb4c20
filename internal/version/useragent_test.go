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

package version

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_UserAgent(t *testing.T) {
	platform := runtime.GOOS + "/" + runtime.GOARCH

	testCases := []struct {
		desc     string
		info     Info
		product  string
		comments []string
		expected string
	}{
		{
			desc:     "default",
			expected: "optimize-tuner/0.0.0-source (" + platform + ")",
		},
		{
			desc:     "version",
			info:     Info{Version: "v1.2.3"},
			expected: "optimize-tuner/1.2.3 (" + platform + ")",
		},
		{
			desc:     "product",
			info:     Info{Version: "v1.2.3"},
			product:  "testProduct",
			expected: "testProduct/1.2.3 (" + platform + ")",
		},
		{
			desc:     "comments",
			info:     Info{Version: "v1.2.3"},
			comments: []string{"datadog", " ( test )", " (  ) "},
			expected: "optimize-tuner/1.2.3 (datadog; test; " + platform + ")",
		},
		{
			desc:     "pre-release build metadata",
			info:     Info{Version: "v1.2.3-next", BuildMetadata: "build.123"},
			comments: []string{"test"},
			expected: "optimize-tuner/1.2.3-next (build.123; test; " + platform + ")",
		},
		{
			desc:     "release build metadata",
			info:     Info{Version: "v1.2.3", BuildMetadata: "build.123"},
			expected: "optimize-tuner/1.2.3 (" + platform + ")",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.info.UserAgent(tc.product, tc.comments...))
		})
	}
}

func TestTransport(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.UserAgent()
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "curl/7.0")

	client := &http.Client{Transport: NewTransport(nil, "test")}
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Regexp(t, "^optimize-tuner/.* \\(test; .*\\)$", userAgent)
	assert.Equal(t, "curl/7.0", req.Header.Get("User-Agent"))
}
