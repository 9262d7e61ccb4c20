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

// Overrides represent information which can be overridden in the configuration
type Overrides struct {
	// WorkDir overrides the work directory
	WorkDir string
	// Target overrides the target description
	Target string
	// Trials overrides the trial budget
	Trials int
	// Database overrides the tuning database backend
	Database string
	// DatadogAPIKey overrides the Datadog API key
	DatadogAPIKey string
	// DatadogAppKey overrides the Datadog application key
	DatadogAppKey string
	// DatadogSite overrides the Datadog API base URL
	DatadogSite string
}

func (o *Overrides) apply(c *Config) {
	mergeString(&c.WorkDir, o.WorkDir)
	mergeString(&c.Target, o.Target)
	mergeInt(&c.Trials, o.Trials)
	mergeString(&c.Database, o.Database)
	mergeString(&c.Datadog.APIKey, o.DatadogAPIKey)
	mergeString(&c.Datadog.AppKey, o.DatadogAppKey)
	mergeString(&c.Datadog.Site, o.DatadogSite)
}
