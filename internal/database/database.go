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

// Package database implements the persistent, append-only tuning database stored in a
// work directory. Records are keyed by workload signature and ranked by measured cost.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	"github.com/thestormforge/optimize-tuner/internal/errdefs"
	"golang.org/x/mod/semver"
)

// FormatVersion is the on-disk format version written by this package. Databases with
// a different major version cannot be opened.
const FormatVersion = "v1.0.0"

// Backend kinds
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// Kinds returns the supported backend kinds.
func Kinds() []string { return []string{KindJSON, KindSQLite} }

// Database is a persistent store of tuning records keyed by workload signature.
type Database interface {
	// Dir returns the work directory holding the database.
	Dir() string
	// Target returns the canonical target the database is populated under.
	Target() string
	// CommitWorkload registers a workload, it is a no-op for known workloads.
	CommitWorkload(ctx context.Context, sig v1alpha1.Signature) (v1alpha1.Workload, error)
	// CommitRecord appends a tuning record.
	CommitRecord(ctx context.Context, rec v1alpha1.TuningRecord) error
	// CommitSession appends an entry to the session log.
	CommitSession(ctx context.Context, s v1alpha1.Session) error
	// Workloads returns all registered workloads.
	Workloads(ctx context.Context) ([]v1alpha1.Workload, error)
	// Records returns the ranked records of a workload.
	Records(ctx context.Context, workloadKey string) ([]v1alpha1.TuningRecord, error)
	// Sessions returns the session log in commit order.
	Sessions(ctx context.Context) ([]v1alpha1.Session, error)
	// Close releases any resources held by the database.
	Close() error
}

// Options control how a database is opened.
type Options struct {
	// Dir is the work directory, it must already exist
	Dir string
	// Kind is the backend kind, defaults to "json"
	Kind string
	// Target is the canonical target of the caller; the first writer pins the database target
	Target string
	// ReadOnly prevents pinning the target on an empty database
	ReadOnly bool
}

// Open opens (or creates) the database in the configured work directory.
func Open(ctx context.Context, opts Options) (Database, error) {
	if opts.Dir == "" {
		return nil, errdefs.NewConfigurationError("workDir", "missing work directory")
	}
	if fi, err := os.Stat(opts.Dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NewConfigurationError("workDir", "work directory %s does not exist", opts.Dir)
		}
		return nil, err
	} else if !fi.IsDir() {
		return nil, errdefs.NewConfigurationError("workDir", "%s is not a directory", opts.Dir)
	}

	m, err := readMeta(opts.Dir)
	if err != nil {
		return nil, err
	}

	if opts.Kind == "" {
		opts.Kind = m.Kind
	}
	if opts.Kind == "" {
		opts.Kind = KindJSON
	}
	if m.Kind != "" && m.Kind != opts.Kind {
		return nil, errdefs.NewConfigurationError("database", "work directory %s contains a %s database, not %s", opts.Dir, m.Kind, opts.Kind)
	}

	if m.FormatVersion != "" {
		if !semver.IsValid(m.FormatVersion) {
			return nil, fmt.Errorf("invalid database format version %q", m.FormatVersion)
		}
		if semver.Major(m.FormatVersion) != semver.Major(FormatVersion) {
			return nil, fmt.Errorf("unsupported database format version %s (expected %s)", m.FormatVersion, semver.Major(FormatVersion))
		}
	}

	if m.Target != "" && opts.Target != "" && m.Target != opts.Target {
		return nil, &errdefs.TargetMismatchError{Database: m.Target, Requested: opts.Target}
	}

	if m.Target == "" && opts.Target != "" && !opts.ReadOnly {
		m = meta{FormatVersion: FormatVersion, Kind: opts.Kind, Target: opts.Target}
		if err := writeMeta(opts.Dir, &m); err != nil {
			return nil, err
		}
	}

	switch opts.Kind {
	case KindJSON:
		return openJSON(opts.Dir, m.Target)
	case KindSQLite:
		return openSQLite(ctx, opts.Dir, m.Target)
	default:
		return nil, errdefs.NewConfigurationError("database", "unknown database kind %q", opts.Kind)
	}
}

// Exists returns true if the directory contains a tuning database.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, metaFilename))
	return err == nil
}

// Best returns the best valid record for a workload.
func Best(ctx context.Context, db Database, workloadKey string) (*v1alpha1.TuningRecord, error) {
	records, err := db.Records(ctx, workloadKey)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || !records[0].Valid {
		return nil, nil
	}
	return &records[0], nil
}

// Status summarizes the tuning progress of a workload.
type Status struct {
	// Trials is the number of records for the workload
	Trials int
	// Allocation is the largest trial allocation any session made to the workload
	Allocation int
	// Done is true once the trials reach the allocation
	Done bool
}

// TaskStatus computes the tuning status of a workload.
func TaskStatus(ctx context.Context, db Database, workloadKey string) (Status, error) {
	records, err := db.Records(ctx, workloadKey)
	if err != nil {
		return Status{}, err
	}
	sessions, err := db.Sessions(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Trials: len(records)}
	for _, s := range sessions {
		if a := s.Allocations[workloadKey]; a > st.Allocation {
			st.Allocation = a
		}
	}
	st.Done = st.Allocation > 0 && st.Trials >= st.Allocation
	return st, nil
}

// sortedWorkloads returns workloads ordered by key for stable listings.
func sortedWorkloads(m map[string]v1alpha1.Workload) []v1alpha1.Workload {
	result := make([]v1alpha1.Workload, 0, len(m))
	for _, w := range m {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
