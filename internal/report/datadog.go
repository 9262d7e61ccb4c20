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

package report

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/version"
	datadog "github.com/zorkian/go-datadog-api"
	"go.uber.org/zap"
)

// MetricPrefix is prepended to the name of every published series
const MetricPrefix = "optimize_tuner."

// Datadog publishes benchmark results as Datadog series.
type Datadog struct {
	// Client is the Datadog API client
	Client *datadog.Client
	// Host is reported with every series, defaults to the local host name
	Host string
	// Tags are attached to every series
	Tags []string
	// Log receives a line per publication
	Log logr.Logger

	now func() time.Time
}

// NewDatadog returns a publisher for the supplied keys; an empty site uses the default API location.
func NewDatadog(apiKey, appKey, site string, tags []string) *Datadog {
	client := datadog.NewClient(apiKey, appKey)
	if site != "" {
		client.SetBaseUrl(site)
	}
	client.HttpClient = &http.Client{
		Transport: version.NewTransport(nil, "datadog"),
		Timeout:   30 * time.Second,
	}
	return &Datadog{Client: client, Tags: tags}
}

// Publish posts the measurement and the per-operator latencies.
func (d *Datadog) Publish(ctx context.Context, tgt string, m *v1alpha1.Measurement, p *v1alpha1.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := float64(d.timestamp().Unix())
	tags := append([]string{"target:" + tgt}, d.Tags...)
	var series []datadog.Metric
	gauge := func(name string, value float64, extra ...string) {
		metric := datadog.Metric{
			Metric: datadog.String(MetricPrefix + name),
			Type:   datadog.String("gauge"),
			Points: []datadog.DataPoint{{datadog.Float64(ts), datadog.Float64(value)}},
			Tags:   append(append([]string(nil), tags...), extra...),
		}
		if d.Host != "" {
			metric.Host = datadog.String(d.Host)
		}
		series = append(series, metric)
	}

	if m != nil {
		gauge("benchmark.mean", m.Mean)
		gauge("benchmark.median", m.Median)
		gauge("benchmark.min", m.Min)
		gauge("benchmark.max", m.Max)
		gauge("benchmark.std", m.Std)
	}
	if p != nil {
		for i := range p.Operators {
			op := &p.Operators[i]
			gauge("operator.latency", op.Latency/1e6, "operator:"+op.Name)
			gauge("operator.speed", op.Speed, "operator:"+op.Name)
			if op.PeakPercent > 0 {
				gauge("operator.peak_percent", op.PeakPercent, "operator:"+op.Name)
			}
		}
		gauge("profile.trials", float64(p.TotalTrials))
		if p.PeakSpeed > 0 {
			gauge("profile.peak_speed", p.PeakSpeed)
		}
	}
	if len(series) == 0 {
		return nil
	}

	if err := d.Client.PostMetrics(series); err != nil {
		return err
	}
	d.log().Info("Published benchmark series", "count", len(series))
	return nil
}

func (d *Datadog) timestamp() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Datadog) log() logr.Logger {
	if d.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return d.Log
}
