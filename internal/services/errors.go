package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ideavolution/coordinator/internal/database"
)

// Conflict reasons reported to callers
const (
	ReasonAlreadyAccepted   = "already accepted by another food bank"
	ReasonExpired           = "expired"
	ReasonInvalidTransition = "invalid transition"
	ReasonAlreadyAssigned   = "driver already assigned"
	ReasonDriverUnavailable = "driver not available"
	ReasonDriverBusy        = "driver has an active delivery"
)

// CancelReasonNoDriver is recorded when an accepted alert times out waiting
// for a driver
const CancelReasonNoDriver = "no_driver_assigned"

// ValidationError reports malformed or missing input, keyed by field
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records another field failure
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports a failed precondition. Current holds the canonical
// alert at the time of the failure so the caller can reconcile.
type ConflictError struct {
	Reason  string
	Current *database.Alert
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// NotFoundError reports an unknown id
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ForbiddenError reports an actor whose role or identity does not permit the
// requested edge
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func conflict(reason string, current *database.Alert) *ConflictError {
	return &ConflictError{Reason: reason, Current: current}
}
