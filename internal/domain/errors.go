package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// Validation errors: rejected at the boundary, never retried.
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrAmountOverflow    = errors.New("amount overflow")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidHashFormat = errors.New("invalid hash format")
	ErrUnknownAlgorithm  = errors.New("unknown chain algorithm")
	ErrInvalidID         = errors.New("invalid id")
	ErrCurrencyRequired  = errors.New("currency required")

	// Concurrency errors: retried locally by the append caller, bounded.
	ErrStaleSequence = errors.New("stale sequence")

	// Integrity errors: fatal, surfaced for audit, never auto-repaired.
	ErrChainBroken = errors.New("hash chain broken")

	// Business rule errors: surfaced to the caller, not retried.
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("source and destination account are the same")

	// Workflow errors.
	ErrWorkflowNotFound         = errors.New("workflow not found")
	ErrWorkflowAlreadyCompleted = errors.New("workflow already completed")
	ErrWorkflowAlreadyFailed    = errors.New("workflow already failed")
	ErrWorkflowMismatch         = errors.New("workflow exists with different parameters")
	ErrTransferFailed           = errors.New("transfer failed")
	ErrCancelTooLate            = errors.New("transfer can no longer be cancelled")
	ErrTransferCancelled        = errors.New("transfer cancelled")
	ErrCompensationFailed       = errors.New("compensation failed")
	ErrStepAlreadyApplied       = errors.New("workflow step already applied")
)

// ChainBrokenError reports the exact sequence at which chain verification
// failed. It matches ErrChainBroken under errors.Is so callers can keep
// using sentinel switches.
type ChainBrokenError struct {
	AccountID  uuid.UUID
	AtSequence int64
	Reason     string
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("hash chain broken for account %s at sequence %d: %s", e.AccountID, e.AtSequence, e.Reason)
}

func (e *ChainBrokenError) Is(target error) bool {
	return target == ErrChainBroken
}
