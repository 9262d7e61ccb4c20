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

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"k8s.io/apimachinery/pkg/util/sets"
)

// PropertyNames returns the dotted names accepted by SetProperty.
func PropertyNames() []string {
	return []string{
		"workDir", "target", "trials", "database",
		"workload.m", "workload.k", "workload.layout",
		"search.repeats", "search.warmups", "search.seed",
		"compile.fuseMaxDepth", "compile.optLevel", "compile.disabledPasses",
		"benchmark.number", "benchmark.repeat", "benchmark.warmup", "benchmark.endToEnd",
		"datadog.apiKey", "datadog.appKey", "datadog.site", "datadog.tags",
	}
}

// SetProperty is a configuration change that updates a single property using a dotted name notation.
func SetProperty(name, value string) Change {
	return func(cfg *Config) error {
		invalid := func(err error) error {
			return errdefs.NewConfigurationError(name, "invalid value %q: %v", value, err)
		}
		atoi := func(p *int) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return invalid(err)
			}
			*p = n
			return nil
		}
		atoiPtr := func(p **int) error {
			var n int
			if err := atoi(&n); err != nil {
				return err
			}
			*p = &n
			return nil
		}
		atoi64 := func(p *int64) error {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return invalid(err)
			}
			*p = n
			return nil
		}
		list := func(p *[]string) error {
			*p = nil
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					*p = append(*p, v)
				}
			}
			return nil
		}

		switch name {
		case "workDir":
			cfg.WorkDir = value
			return nil
		case "target":
			if _, err := target.Parse(value); err != nil {
				return err
			}
			cfg.Target = value
			return nil
		case "trials":
			return atoi(&cfg.Trials)
		case "database":
			cfg.Database = value
			return nil

		case "workload.m":
			return atoi64(&cfg.Workload.M)
		case "workload.k":
			return atoi64(&cfg.Workload.K)
		case "workload.layout":
			cfg.Workload.Layout = value
			return nil

		case "search.repeats":
			return atoi(&cfg.Search.Repeats)
		case "search.warmups":
			return atoiPtr(&cfg.Search.Warmups)
		case "search.seed":
			return atoi64(&cfg.Search.Seed)

		case "compile.fuseMaxDepth":
			return atoi(&cfg.Compile.FuseMaxDepth)
		case "compile.optLevel":
			return atoiPtr(&cfg.Compile.OptLevel)
		case "compile.disabledPasses":
			return list(&cfg.Compile.DisabledPasses)

		case "benchmark.number":
			return atoi(&cfg.Benchmark.Number)
		case "benchmark.repeat":
			return atoi(&cfg.Benchmark.Repeat)
		case "benchmark.warmup":
			return atoi(&cfg.Benchmark.Warmup)
		case "benchmark.endToEnd":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return invalid(err)
			}
			cfg.Benchmark.EndToEnd = &b
			return nil

		case "datadog.apiKey":
			cfg.Datadog.APIKey = value
			return nil
		case "datadog.appKey":
			cfg.Datadog.AppKey = value
			return nil
		case "datadog.site":
			cfg.Datadog.Site = value
			return nil
		case "datadog.tags":
			return list(&cfg.Datadog.Tags)
		}
		return errdefs.NewConfigurationError(name, "unknown config property")
	}
}

// UnsetProperty is a configuration change that removes a single property using a dotted name notation.
func UnsetProperty(name string) Change {
	return func(cfg *Config) error {
		if !sets.NewString(PropertyNames()...).Has(name) {
			return errdefs.NewConfigurationError(name, "unknown config property")
		}

		b, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		data := make(map[string]interface{})
		if err := json.Unmarshal(b, &data); err != nil {
			return err
		}

		path := strings.Split(name, ".")
		m := data
		for _, p := range path[:len(path)-1] {
			if m, _ = m[p].(map[string]interface{}); m == nil {
				return nil
			}
		}
		delete(m, path[len(path)-1])

		if b, err = json.Marshal(data); err != nil {
			return err
		}
		result := Config{}
		if err := json.Unmarshal(b, &result); err != nil {
			return err
		}
		*cfg = result
		return nil
	}
}
