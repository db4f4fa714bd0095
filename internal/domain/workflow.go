package domain

import (
	"time"

	"github.com/google/uuid"
)

type WorkflowState string

const (
	WorkflowCreated              WorkflowState = "created"
	WorkflowValidating           WorkflowState = "validating"
	WorkflowDebitingSource       WorkflowState = "debiting_source"
	WorkflowCreditingDestination WorkflowState = "crediting_destination"
	WorkflowCompensating         WorkflowState = "compensating"
	WorkflowCompleted            WorkflowState = "completed"
	WorkflowFailed               WorkflowState = "failed"
)

// Terminal reports whether the workflow can make no further transitions.
func (s WorkflowState) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// Saga step names. Each step is applied at most once per workflow identity.
const (
	StepDebitSource       = "debit_source"
	StepCreditDestination = "credit_destination"
	StepCompensateSource  = "compensate_source"
)

// WorkflowStep is one entry of the compensation log: a committed ledger
// mutation attributable to this workflow.
type WorkflowStep struct {
	Name      string    `json:"name"`
	Sequence  int64     `json:"sequence"`
	AppliedAt time.Time `json:"applied_at"`
}

// TransferWorkflow is the persisted saga state for one two-account transfer.
type TransferWorkflow struct {
	ID            uuid.UUID
	SourceID      uuid.UUID
	DestinationID uuid.UUID
	Amount        Money
	State         WorkflowState
	Steps         []WorkflowStep
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StepApplied reports whether the named step is already in the
// compensation log.
func (w TransferWorkflow) StepApplied(name string) bool {
	for _, s := range w.Steps {
		if s.Name == name {
			return true
		}
	}
	return false
}
