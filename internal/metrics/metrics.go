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

// Package metrics records tuning and benchmark observations as Prometheus metrics.
package metrics

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
)

// TextfileName is the name of the metrics file written into the work directory.
const TextfileName = "metrics.prom"

// Recorder holds the metrics of a single process. A nil recorder discards all observations.
type Recorder struct {
	registry *prometheus.Registry

	// Trials is a Prometheus counter metric which holds the number of tuning trials per task
	Trials *prometheus.CounterVec
	// BestCost is a Prometheus gauge metric which holds the best valid cost per task
	BestCost *prometheus.GaugeVec
	// SessionDuration is a Prometheus histogram metric of tuning session wall-clock times
	SessionDuration prometheus.Histogram
	// BenchmarkLatency is a Prometheus gauge metric which holds the end-to-end measurement summary
	BenchmarkLatency *prometheus.GaugeVec
	// OperatorLatency is a Prometheus gauge metric which holds the per-operator latency
	OperatorLatency *prometheus.GaugeVec
	// OperatorPeakPercent is a Prometheus gauge metric which holds the per-operator percentage of peak throughput
	OperatorPeakPercent *prometheus.GaugeVec
	// PhaseDuration is a Prometheus gauge metric which holds the last duration of each pipeline phase
	PhaseDuration *prometheus.GaugeVec
}

// NewRecorder returns a recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimize_tuner_trials_total",
			Help: "Total number of tuning trials per task",
		}, []string{"task", "valid"}),

		BestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimize_tuner_best_cost_seconds",
			Help: "Best measured cost of a valid candidate per task",
		}, []string{"task"}),

		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimize_tuner_session_duration_seconds",
			Help:    "Wall-clock duration of tuning sessions",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),

		BenchmarkLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimize_tuner_benchmark_latency_seconds",
			Help: "End-to-end benchmark latency summary",
		}, []string{"stat"}),

		OperatorLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimize_tuner_operator_latency_seconds",
			Help: "Profiled latency of a single operator call",
		}, []string{"operator"}),

		OperatorPeakPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimize_tuner_operator_peak_percent",
			Help: "Profiled throughput of a single operator as a percentage of the measured peak",
		}, []string{"operator"}),

		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "optimize_tuner_phase_duration_seconds",
			Help: "Wall-clock duration of the last run of each pipeline phase",
		}, []string{"phase"}),
	}

	r.registry.MustRegister(
		r.Trials,
		r.BestCost,
		r.SessionDuration,
		r.BenchmarkLatency,
		r.OperatorLatency,
		r.OperatorPeakPercent,
		r.PhaseDuration,
	)
	return r
}

// Gatherer exposes the recorder's registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveTrial counts a completed trial and tracks the best valid cost.
func (r *Recorder) ObserveTrial(task string, rec *v1alpha1.TuningRecord, best *v1alpha1.TuningRecord) {
	if r == nil {
		return
	}
	r.Trials.WithLabelValues(task, fmt.Sprintf("%t", rec.Valid)).Inc()
	if best != nil && best.Valid {
		r.BestCost.WithLabelValues(task).Set(best.Cost)
	}
}

// ObserveSession records the duration of a tuning session.
func (r *Recorder) ObserveSession(s *v1alpha1.Session) {
	if r == nil {
		return
	}
	r.SessionDuration.Observe(s.Elapsed.Seconds())
}

// ObserveMeasurement records the end-to-end measurement summary.
func (r *Recorder) ObserveMeasurement(m *v1alpha1.Measurement) {
	if r == nil || m == nil {
		return
	}
	r.BenchmarkLatency.WithLabelValues("mean").Set(m.Mean)
	r.BenchmarkLatency.WithLabelValues("median").Set(m.Median)
	r.BenchmarkLatency.WithLabelValues("min").Set(m.Min)
	r.BenchmarkLatency.WithLabelValues("max").Set(m.Max)
	r.BenchmarkLatency.WithLabelValues("std").Set(m.Std)
}

// ObserveProfile records the per-operator latencies (profiles report microseconds).
func (r *Recorder) ObserveProfile(p *v1alpha1.Profile) {
	if r == nil || p == nil {
		return
	}
	for _, op := range p.Operators {
		r.OperatorLatency.WithLabelValues(op.Name).Set(op.Latency / 1e6)
		if op.PeakPercent > 0 {
			r.OperatorPeakPercent.WithLabelValues(op.Name).Set(op.PeakPercent)
		}
	}
}

// ObservePhase records the duration of a completed pipeline phase.
func (r *Recorder) ObservePhase(phase string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.PhaseDuration.WithLabelValues(phase).Set(elapsed.Seconds())
}

// WriteTextfile writes the current metrics in the Prometheus text format, suitable for
// the node exporter textfile collector.
func (r *Recorder) WriteTextfile(filename string) error {
	if r == nil {
		return nil
	}

	mfs, err := r.registry.Gather()
	if err != nil {
		return err
	}

	tmp, err := ioutil.TempFile(filepath.Dir(filename), filepath.Base(filename))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}
