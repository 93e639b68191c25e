package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrConflict         = errors.New("operation not allowed in current state")
	ErrSubmitInFlight   = errors.New("another submission is already in flight")
)

// ValidationError reports field-level problems with locally-inspectable input
// (billing details, incomplete card fields). Recoverable in place; no network
// side effect has happened when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type AuthReason string

const (
	AuthReasonMissing AuthReason = "missing" // no credential present locally
	AuthReasonExpired AuthReason = "expired" // credential rejected or past expiry
)

// AuthError pauses a checkout rather than terminating it. The coordinator
// keeps all in-flight state so the flow resumes after re-authentication.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string { return "authentication required: credential " + string(e.Reason) }

// ProcessorDeclineError is a charge rejection by the payment processor.
// No money moved and no settlement call may follow it; the user can edit the
// card and retry.
type ProcessorDeclineError struct {
	Code    string
	Message string
}

func (e *ProcessorDeclineError) Error() string {
	return fmt.Sprintf("processor declined charge: %s (%s)", e.Message, e.Code)
}

// NetworkError is a transient transport failure. Safe to retry as long as no
// charge has been captured yet.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// SettlementInconsistencyError marks the one outcome that must never be
// reported as an ordinary payment failure: the processor captured the charge
// but the backend has not yet recorded the grant. The intent id is retained so
// settlement can be retried with the exact same key.
type SettlementInconsistencyError struct {
	IntentID string
	Err      error
}

func (e *SettlementInconsistencyError) Error() string {
	return fmt.Sprintf("charge captured for intent %s but settlement is pending: %v", e.IntentID, e.Err)
}

func (e *SettlementInconsistencyError) Unwrap() error { return e.Err }
