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

package database

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
)

const (
	workloadFilename = "database_workload.json"
	recordFilename   = "database_tuning_record.json"
	sessionFilename  = "database_session.json"
)

// jsonDatabase keeps the full database in memory and appends each commit as a
// single JSON line to the corresponding file.
type jsonDatabase struct {
	dir    string
	target string

	mu        sync.RWMutex
	workloads map[string]v1alpha1.Workload
	records   map[string][]v1alpha1.TuningRecord
	sessions  []v1alpha1.Session
}

func openJSON(dir, target string) (*jsonDatabase, error) {
	db := &jsonDatabase{
		dir:       dir,
		target:    target,
		workloads: make(map[string]v1alpha1.Workload),
		records:   make(map[string][]v1alpha1.TuningRecord),
	}

	if err := readLines(filepath.Join(dir, workloadFilename), func(b []byte) error {
		w := v1alpha1.Workload{}
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		db.workloads[w.Key] = w
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readLines(filepath.Join(dir, recordFilename), func(b []byte) error {
		r := v1alpha1.TuningRecord{}
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		db.records[r.WorkloadKey] = append(db.records[r.WorkloadKey], r)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readLines(filepath.Join(dir, sessionFilename), func(b []byte) error {
		s := v1alpha1.Session{}
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		db.sessions = append(db.sessions, s)
		return nil
	}); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *jsonDatabase) Dir() string    { return db.dir }
func (db *jsonDatabase) Target() string { return db.target }
func (db *jsonDatabase) Close() error   { return nil }

func (db *jsonDatabase) CommitWorkload(_ context.Context, sig v1alpha1.Signature) (v1alpha1.Workload, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := sig.Key()
	if w, ok := db.workloads[key]; ok {
		return w, nil
	}

	w := v1alpha1.Workload{Key: key, Signature: sig}
	if err := appendLine(filepath.Join(db.dir, workloadFilename), &w); err != nil {
		return w, err
	}
	db.workloads[key] = w
	return w, nil
}

func (db *jsonDatabase) CommitRecord(_ context.Context, rec v1alpha1.TuningRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.workloads[rec.WorkloadKey]; !ok {
		return fmt.Errorf("unknown workload %q", rec.WorkloadKey)
	}
	if err := appendLine(filepath.Join(db.dir, recordFilename), &rec); err != nil {
		return err
	}
	db.records[rec.WorkloadKey] = append(db.records[rec.WorkloadKey], rec)
	return nil
}

func (db *jsonDatabase) CommitSession(_ context.Context, s v1alpha1.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := appendLine(filepath.Join(db.dir, sessionFilename), &s); err != nil {
		return err
	}
	db.sessions = append(db.sessions, s)
	return nil
}

func (db *jsonDatabase) Workloads(context.Context) ([]v1alpha1.Workload, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return sortedWorkloads(db.workloads), nil
}

func (db *jsonDatabase) Records(_ context.Context, workloadKey string) ([]v1alpha1.TuningRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	records := append([]v1alpha1.TuningRecord(nil), db.records[workloadKey]...)
	v1alpha1.SortRecords(records)
	return records, nil
}

func (db *jsonDatabase) Sessions(context.Context) ([]v1alpha1.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]v1alpha1.Session(nil), db.sessions...), nil
}

func readLines(filename string, fn func([]byte) error) error {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for s.Scan() {
		line++
		if len(s.Bytes()) == 0 {
			continue
		}
		if err := fn(s.Bytes()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(filename), line, err)
		}
	}
	return s.Err()
}

func appendLine(filename string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
