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

// Package tuner manages tuning sessions: it owns the work directory lifecycle and
// delegates the actual search to an engine which persists results into the tuning database.
package tuner

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/oklog/ulid"
	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/database"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"github.com/thestormforge/optimize-tuner/internal/metrics"
	"github.com/thestormforge/optimize-tuner/internal/target"
	"github.com/thestormforge/optimize-tuner/internal/workload"
	"go.uber.org/zap"
)

// Request describes a single tuning session.
type Request struct {
	// SessionID uniquely identifies the session
	SessionID string
	// Graph is the type-inferred graph to tune
	Graph *workload.Graph
	// Params are bound values for graph free variables
	Params workload.Params
	// Target is the target the candidates are measured on
	Target target.Target
	// TrialBudget is the total number of trials across every task of the graph
	TrialBudget int
	// WorkDir is the existing directory holding the tuning database
	WorkDir string
}

// Engine is a search engine capable of running trials and persisting them.
type Engine interface {
	// Search runs up to the requested trial budget, returning the populated database.
	Search(ctx context.Context, req *Request) (database.Database, error)
}

// TaskSummary describes the tuning state of one task after a session.
type TaskSummary struct {
	Name        string  `json:"name"`
	WorkloadKey string  `json:"workloadKey"`
	Trials      int     `json:"trials"`
	Done        bool    `json:"done"`
	Best        float64 `json:"best,omitempty"`
}

// TimingSummary is the profiling summary of a tuning session.
type TimingSummary struct {
	SessionID string        `json:"sessionID"`
	Elapsed   time.Duration `json:"elapsed"`
	Tasks     []TaskSummary `json:"tasks"`
}

// String renders the summary as a short table.
func (s *TimingSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tuning session %s completed in %s\n", s.SessionID, s.Elapsed.Round(time.Millisecond))
	for _, t := range s.Tasks {
		best := "-"
		if t.Best > 0 {
			best = fmt.Sprintf("%.4f ms", t.Best*1e3)
		}
		fmt.Fprintf(&b, "  %s: trials=%d done=%t best=%s\n", t.Name, t.Trials, t.Done, best)
	}
	return b.String()
}

// Result is the outcome of a tuning session.
type Result struct {
	// Database is the populated tuning database, the caller must close it
	Database database.Database
	// Summary is the timing summary of the session
	Summary TimingSummary
}

// Manager runs tuning sessions.
type Manager struct {
	// Engine performs the search
	Engine Engine
	// Log receives the session summary
	Log logr.Logger
	// Metrics optionally records the session duration
	Metrics *metrics.Recorder
}

// Tune ensures the work directory exists and runs a tuning session against it.
func (m *Manager) Tune(ctx context.Context, g *workload.Graph, params workload.Params, tgt target.Target, trialBudget int, workDir string) (*Result, error) {
	if workDir == "" {
		return nil, errdefs.NewConfigurationError("workDir", "missing work directory")
	}
	if tgt.IsZero() {
		return nil, errdefs.NewConfigurationError("target", "missing target")
	}
	if trialBudget <= 0 {
		return nil, errdefs.NewConfigurationError("trials", "trial budget must be positive, got %d", trialBudget)
	}
	if m.Engine == nil {
		return nil, errdefs.NewConfigurationError("engine", "missing search engine")
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, errdefs.NewConfigurationError("workDir", "%s", err.Error())
	}

	log := m.log().WithValues("workDir", workDir, "target", tgt.String())
	req := &Request{
		SessionID:   NewSessionID(),
		Graph:       g,
		Params:      params,
		Target:      tgt,
		TrialBudget: trialBudget,
		WorkDir:     workDir,
	}

	log.V(1).Info("Starting tuning session", "session", req.SessionID, "trials", trialBudget)
	start := time.Now()
	db, err := m.Engine.Search(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, errdefs.Delegate("search", err)
	}

	result := &Result{
		Database: db,
		Summary:  TimingSummary{SessionID: req.SessionID, Elapsed: elapsed},
	}

	tasks, err := g.Tasks()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for i := range tasks {
		ts, err := summarize(ctx, db, tasks[i].Name, tasks[i].Signature(tgt).Key())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		result.Summary.Tasks = append(result.Summary.Tasks, ts)
	}

	m.Metrics.ObserveSession(&v1alpha1.Session{ID: req.SessionID, Elapsed: v1alpha1.NewDuration(elapsed)})
	log.Info("Tuning session completed", "session", req.SessionID, "elapsed", elapsed.String(), "tasks", len(result.Summary.Tasks))
	return result, nil
}

func summarize(ctx context.Context, db database.Database, name, key string) (TaskSummary, error) {
	ts := TaskSummary{Name: name, WorkloadKey: key}
	st, err := database.TaskStatus(ctx, db, key)
	if err != nil {
		return ts, err
	}
	ts.Trials, ts.Done = st.Trials, st.Done

	best, err := database.Best(ctx, db, key)
	if err != nil {
		return ts, err
	}
	if best != nil {
		ts.Best = best.Cost
	}
	return ts, nil
}

func (m *Manager) log() logr.Logger {
	if m.Log == nil {
		return zapr.NewLogger(zap.NewNop())
	}
	return m.Log
}

// NewSessionID returns a new lexically sortable session identifier.
func NewSessionID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
