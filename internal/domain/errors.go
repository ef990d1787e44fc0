package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Numerics / bandit errors (C1/C2)
	ErrDimensionMismatch   = errors.New("feature vector dimension mismatch")
	ErrEmptyCandidates     = errors.New("no candidate actions supplied")
	ErrModelUninitialized  = errors.New("bandit model has not been initialized")

	// Pipeline errors (C6)
	ErrEmptyInput       = errors.New("event has no user id or item id")
	ErrInvariantViolated = errors.New("internal invariant violated")

	// Persistence errors (C9 / §6)
	ErrStorageUnavailable       = errors.New("state store is unavailable")
	ErrStateDimensionMismatch   = errors.New("persisted state dimension does not match configured model")
	ErrStateNotFound            = errors.New("no persisted state for user")

	// Segmentation errors (C7)
	ErrInvalidSegmentInput = errors.New("segment input has an inconsistent or negative count")
)
