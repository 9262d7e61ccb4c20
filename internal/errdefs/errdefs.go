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

// Package errdefs defines the error taxonomy shared by all phases of the tuner.
// Errors are matched with the Is* predicates rather than by message.
package errdefs

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ConfigurationError is returned for a missing or invalid work directory, target, or option.
type ConfigurationError struct {
	// Field is the name of the offending setting
	Field string
	// Reason describes the problem
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError returns a new configuration error.
func NewConfigurationError(fieldName, format string, args ...interface{}) error {
	return &ConfigurationError{Field: fieldName, Reason: fmt.Sprintf(format, args...)}
}

// InvalidShapeError is returned when a graph cannot be constructed from the requested dimensions.
type InvalidShapeError struct {
	Errors field.ErrorList
}

func (e *InvalidShapeError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid shape"
	}
	return "invalid shape: " + e.Errors.ToAggregate().Error()
}

// TargetMismatchError is returned when a tuning database was populated for a different target.
type TargetMismatchError struct {
	// Database is the target the database was populated under
	Database string
	// Requested is the target supplied by the caller
	Requested string
}

func (e *TargetMismatchError) Error() string {
	return fmt.Sprintf("target mismatch: database was tuned for %q but %q was requested", e.Database, e.Requested)
}

// ArtifactExecutionError is returned when the inputs supplied to an artifact do not match what it expects.
type ArtifactExecutionError struct {
	// Missing are the expected input names that were not supplied
	Missing []string
	// Unexpected are the supplied input names the artifact does not accept
	Unexpected []string
	// Mismatched describes inputs whose shape or data type is wrong
	Mismatched []string
	// Reason is used for failures not described by the lists above
	Reason string
}

func (e *ArtifactExecutionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing inputs: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected inputs: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, strings.Join(e.Mismatched, "; "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return "artifact execution failed"
	}
	return "artifact execution failed: " + strings.Join(parts, "; ")
}

// UntunedError is returned when a compilation finds no valid tuning record for a task.
type UntunedError struct {
	// Task is the name of the task without a record
	Task string
	// WorkloadKey is the signature key that was looked up
	WorkloadKey string
}

func (e *UntunedError) Error() string {
	return fmt.Sprintf("no valid tuning record for %s (workload %.12s)", e.Task, e.WorkloadKey)
}

// DelegateFailure wraps an error produced by an external engine (search, compiler, or executor).
type DelegateFailure struct {
	// Delegate is the name of the engine which failed
	Delegate string
	// Err is the original error
	Err error
}

func (e *DelegateFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Delegate, e.Err)
}

// Unwrap returns the original error.
func (e *DelegateFailure) Unwrap() error { return e.Err }

// Delegate wraps the supplied error as a delegate failure unless it is nil or already part of the taxonomy.
func Delegate(delegate string, err error) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return &DelegateFailure{Delegate: delegate, Err: err}
}

// IsKnown returns true if the error (or anything it wraps) belongs to this taxonomy.
func IsKnown(err error) bool {
	return IsConfiguration(err) || IsInvalidShape(err) || IsTargetMismatch(err) ||
		IsArtifactExecution(err) || IsUntuned(err) || IsDelegateFailure(err)
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// IsInvalidShape returns true if the error is an invalid shape error.
func IsInvalidShape(err error) bool {
	var e *InvalidShapeError
	return errors.As(err, &e)
}

// IsTargetMismatch returns true if the error is a target mismatch error.
func IsTargetMismatch(err error) bool {
	var e *TargetMismatchError
	return errors.As(err, &e)
}

// IsArtifactExecution returns true if the error is an artifact execution error.
func IsArtifactExecution(err error) bool {
	var e *ArtifactExecutionError
	return errors.As(err, &e)
}

// IsUntuned returns true if the error is an untuned error.
func IsUntuned(err error) bool {
	var e *UntunedError
	return errors.As(err, &e)
}

// IsDelegateFailure returns true if the error is a delegate failure.
func IsDelegateFailure(err error) bool {
	var e *DelegateFailure
	return errors.As(err, &e)
}
