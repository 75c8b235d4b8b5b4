// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inventory

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrProtected is returned when deleting a record still referenced by a protected foreign key.
	ErrProtected = errors.New("protected")
)

// NonFieldKey collects errors that are not bound to a single field.
const NonFieldKey = "non_field_errors"

// ValidationError carries per-field messages plus global ones.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty error ready to collect messages.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// Invalid builds a single-message error for field.
func Invalid(field, msg string) *ValidationError {
	e := NewValidationError()
	e.Add(field, msg)
	return e
}

// Add records msg for field. An empty field records a global error.
func (e *ValidationError) Add(field, msg string) {
	if field == "" {
		field = NonFieldKey
	}
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Merge copies every message of o into e.
func (e *ValidationError) Merge(o *ValidationError) {
	if o == nil {
		return
	}
	for f, msgs := range o.Fields {
		for _, m := range msgs {
			e.Add(f, m)
		}
	}
}

// Empty reports whether no message was recorded.
func (e *ValidationError) Empty() bool { return e == nil || len(e.Fields) == 0 }

// Err returns e, or nil when no message was recorded.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Messages returns all messages of field.
func (e *ValidationError) Messages(field string) []string { return e.Fields[field] }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
