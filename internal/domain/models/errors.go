package models

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrSnapshotNotFound    = errors.New("policy snapshot not found")
	ErrPersistence         = errors.New("policy persistence failed")
	ErrPolicyLocked        = errors.New("policy write lock held elsewhere")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrLearningUnavailable = errors.New("learning agent unavailable")
	ErrMalformedDeltas     = errors.New("malformed policy deltas")
	ErrScannerUnavailable  = errors.New("scanner agent unavailable")
)
