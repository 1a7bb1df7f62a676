// Package services implements the persistence layer and the intake and
// status-lookup operations on top of it.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across services.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnavailable indicates a downstream dependency (store or cache)
	// could not serve the request.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError carries per-field validation messages for a rejected
// search request.
type ValidationError struct {
	Issues map[string][]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for field, msgs := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// add appends a message for a field, allocating the map lazily.
func (e *ValidationError) add(field, msg string) {
	if e.Issues == nil {
		e.Issues = make(map[string][]string)
	}
	e.Issues[field] = append(e.Issues[field], msg)
}

// ok reports whether no issues were recorded.
func (e *ValidationError) ok() bool {
	return len(e.Issues) == 0
}
