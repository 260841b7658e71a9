/*
Copyright 2026 The Codeheal Authors.

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

// Package errors provides a small set of structured, wrapped error types
// shared across the healing core so call sites log and compare errors
// consistently instead of formatting ad-hoc strings.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with optional component and
// resource context plus an underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal error for action. With no cause it is an
// OperationError reading "failed to <action>"; with a cause it reads
// "failed to <action>: <cause>" and wraps cause for errors.Is/errors.As.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return &OperationError{Operation: action}
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a full OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// DatabaseError wraps a storage-layer failure.
func DatabaseError(action string, cause error) error {
	return FailedToWithDetails(action, "database", "", cause)
}

// NetworkError wraps a remote-call failure with the endpoint attached.
func NetworkError(action, endpoint string, cause error) error {
	return FailedToWithDetails(action, "network", endpoint, cause)
}

// ValidationError reports a single invalid field.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports an invalid configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports a wall-clock ceiling being exceeded.
func TimeoutError(waitingFor, duration string) error {
	return fmt.Errorf("timeout while waiting for %s after %s", waitingFor, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports an authorization denial for an action on a resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse a resource in a given format.
func ParseError(resource, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", resource, format), "parser", resource, cause)
}

// Wrapf wraps err with additional formatted context, returning nil for a nil err.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"unavailable",
	"temporarily",
	"reset by peer",
	"try again",
}

// IsRetryable does a best-effort classification of transient vs. permanent
// errors based on common substrings. It never classifies a nil error as
// retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins multiple non-nil errors into one, ignoring nils. Returns nil
// if every argument is nil, and the bare error if exactly one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msgs := make([]string, len(nonNil))
		for i, e := range nonNil {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}

// FatalKind names a non-retriable failure category per the core's
// error-handling design (ground-truth tampering, schema violations).
type FatalKind string

const (
	// KindTampering marks a hash-invariant violation on an immutable packet.
	KindTampering FatalKind = "ground_truth_tampering"
	// KindSchemaViolation marks a programmer error: an envelope failed
	// schema validation before being returned to a caller.
	KindSchemaViolation FatalKind = "schema_violation"
)

// FatalError is the structured payload for the core's non-retriable
// failures. It deliberately does not implement IsRetryable's substrings.
type FatalError struct {
	Kind     FatalKind
	Expected string
	Computed string
	Detail   string
}

func (e *FatalError) Error() string {
	switch {
	case e.Expected != "" || e.Computed != "":
		return fmt.Sprintf("fatal(%s): expected=%s computed=%s detail=%s", e.Kind, e.Expected, e.Computed, e.Detail)
	default:
		return fmt.Sprintf("fatal(%s): %s", e.Kind, e.Detail)
	}
}
