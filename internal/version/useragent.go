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
	"runtime"
	"strings"
)

// UserAgent returns the product token for this build followed by a comment built from the
// supplied comments, the pre-release build metadata and the platform.
func (i *Info) UserAgent(product string, comments ...string) string {
	if product == "" {
		product = DefaultProduct
	}

	var cs []string
	if i.BuildMetadata != "" && strings.Contains(i.Version, "-") {
		cs = append(cs, i.BuildMetadata)
	}
	for _, c := range comments {
		c = strings.TrimSpace(strings.Trim(strings.TrimSpace(c), "()"))
		if c != "" {
			cs = append(cs, c)
		}
	}
	cs = append(cs, runtime.GOOS+"/"+runtime.GOARCH)

	v := i.Version
	if v == "" {
		v = defaultVersion
	}
	return product + "/" + strings.TrimPrefix(v, "v") + " (" + strings.Join(cs, "; ") + ")"
}

// NewTransport wraps the (possibly nil) base transport so that requests carry the
// user agent of the current build
func NewTransport(base http.RoundTripper, comments ...string) *Transport {
	return &Transport{
		UserAgent: GetInfo().UserAgent(DefaultProduct, comments...),
		Base:      base,
	}
}

// Transport sets the `User-Agent` header
type Transport struct {
	// UserAgent is the header value, requests are left untouched when it is empty
	UserAgent string
	// Base transport to use, uses the system default if nil
	Base http.RoundTripper
}

// RoundTrip sets the user agent on a copy of the request and delegates to the base transport
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.UserAgent == "" {
		return base.RoundTrip(req)
	}

	// Round trippers must not modify the caller's request
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.UserAgent)
	return base.RoundTrip(r)
}
