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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/thestormforge/optimize-tuner/api/v1alpha1"
	_ "modernc.org/sqlite"
)

const sqliteFilename = "database.sqlite3"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS workloads (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tuning_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workload_key TEXT NOT NULL REFERENCES workloads(key),
		valid INTEGER NOT NULL,
		cost REAL NOT NULL,
		trial INTEGER NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tuning_records_workload ON tuning_records(workload_key)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
}

// sqliteDatabase stores each entity as a JSON document alongside the columns needed for ranking.
type sqliteDatabase struct {
	dir    string
	target string
	db     *sql.DB
	mu     sync.RWMutex
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

func sqliteDSN(dir string) string {
	q := url.Values{"_pragma": sqlitePragmas}
	return filepath.Join(dir, sqliteFilename) + "?" + q.Encode()
}

func openSQLite(ctx context.Context, dir, target string) (*sqliteDatabase, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &sqliteDatabase{dir: dir, target: target, db: db}, nil
}

func (s *sqliteDatabase) Dir() string    { return s.dir }
func (s *sqliteDatabase) Target() string { return s.target }
func (s *sqliteDatabase) Close() error   { return s.db.Close() }

func (s *sqliteDatabase) CommitWorkload(ctx context.Context, sig v1alpha1.Signature) (v1alpha1.Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := v1alpha1.Workload{Key: sig.Key(), Signature: sig}
	b, err := json.Marshal(&w)
	if err != nil {
		return w, err
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR IGNORE INTO workloads (key, data) VALUES (?, ?)", w.Key, string(b))
	return w, err
}

func (s *sqliteDatabase) CommitRecord(ctx context.Context, rec v1alpha1.TuningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO tuning_records (workload_key, valid, cost, trial, data) VALUES (?, ?, ?, ?, ?)",
		rec.WorkloadKey, rec.Valid, rec.Cost, rec.Trial, string(b))
	if err != nil {
		return fmt.Errorf("failed to commit record for workload %q: %w", rec.WorkloadKey, err)
	}
	return nil
}

func (s *sqliteDatabase) CommitSession(ctx context.Context, sess v1alpha1.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(&sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO sessions (id, data) VALUES (?, ?)", sess.ID, string(b))
	return err
}

func (s *sqliteDatabase) Workloads(ctx context.Context) ([]v1alpha1.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []v1alpha1.Workload
	err := s.query(ctx, func(b []byte) error {
		w := v1alpha1.Workload{}
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		result = append(result, w)
		return nil
	}, "SELECT data FROM workloads ORDER BY key")
	return result, err
}

func (s *sqliteDatabase) Records(ctx context.Context, workloadKey string) ([]v1alpha1.TuningRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []v1alpha1.TuningRecord
	err := s.query(ctx, func(b []byte) error {
		r := v1alpha1.TuningRecord{}
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		result = append(result, r)
		return nil
	}, "SELECT data FROM tuning_records WHERE workload_key = ? ORDER BY valid DESC, cost ASC, trial ASC, id ASC", workloadKey)
	return result, err
}

func (s *sqliteDatabase) Sessions(ctx context.Context) ([]v1alpha1.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []v1alpha1.Session
	err := s.query(ctx, func(b []byte) error {
		sess := v1alpha1.Session{}
		if err := json.Unmarshal(b, &sess); err != nil {
			return err
		}
		result = append(result, sess)
		return nil
	}, "SELECT data FROM sessions ORDER BY rowid")
	return result, err
}

func (s *sqliteDatabase) query(ctx context.Context, fn func([]byte) error, query string, args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
