package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write collided with an existing row
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store or downstream temporarily unavailable; safe to retry
// - ErrCircuitOpen: circuit breaker is rejecting calls without attempting them
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrCircuitOpen  = errors.New("circuit open")
)
