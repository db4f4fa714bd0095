package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cimillas/core-ledger/internal/clock"
	"github.com/cimillas/core-ledger/internal/domain"
)

// Ledger is the slice of LedgerService the saga needs.
type Ledger interface {
	Rebuild(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	ApplyAdd(ctx context.Context, in ApplyInput) (domain.Account, error)
	ApplySubtract(ctx context.Context, in ApplyInput) (domain.Account, error)
}

// WorkflowRepository persists saga state so an in-flight transfer survives a
// crash and can be resumed.
type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, wf domain.TransferWorkflow) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.TransferWorkflow, error)
}

// TransferService orchestrates two-account transfers as a saga: debit the
// source, credit the destination, and compensate the debit if the credit
// fails. The two account streams are never locked together; compensation,
// not rollback, keeps the ledger append-only and auditable.
type TransferService struct {
	workflows WorkflowRepository
	ledger    Ledger
	clock     clock.Clock
	logger    *zap.Logger
}

func NewTransferService(workflows WorkflowRepository, ledger Ledger, clk clock.Clock, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		workflows: workflows,
		ledger:    ledger,
		clock:     clk,
		logger:    logger,
	}
}

type StartTransferInput struct {
	WorkflowID    uuid.UUID
	SourceID      uuid.UUID
	DestinationID uuid.UUID
	Amount        domain.Money
}

// Start begins or resumes the transfer identified by WorkflowID. Re-invoking
// with the identity of a finished workflow is rejected, never double-spent.
func (s *TransferService) Start(ctx context.Context, in StartTransferInput) (domain.TransferWorkflow, error) {
	if in.WorkflowID == uuid.Nil {
		return domain.TransferWorkflow{}, domain.ErrInvalidID
	}

	existing, err := s.workflows.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return domain.TransferWorkflow{}, err
	}
	if existing != nil {
		switch {
		case existing.State == domain.WorkflowCompleted:
			return *existing, domain.ErrWorkflowAlreadyCompleted
		case existing.State == domain.WorkflowFailed:
			return *existing, domain.ErrWorkflowAlreadyFailed
		case existing.SourceID != in.SourceID ||
			existing.DestinationID != in.DestinationID ||
			!existing.Amount.Equal(in.Amount):
			return *existing, domain.ErrWorkflowMismatch
		default:
			return s.run(ctx, *existing)
		}
	}

	now := s.clock.Now()
	wf := domain.TransferWorkflow{
		ID:            in.WorkflowID,
		SourceID:      in.SourceID,
		DestinationID: in.DestinationID,
		Amount:        in.Amount,
		State:         domain.WorkflowCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.workflows.SaveWorkflow(ctx, wf); err != nil {
		return domain.TransferWorkflow{}, err
	}
	return s.run(ctx, wf)
}

// Resume re-drives a workflow recovered after a restart. Steps already in
// the compensation log are skipped; replayed appends are absorbed by the
// store's per-(workflow, step) uniqueness. Finished workflows are returned
// unchanged.
func (s *TransferService) Resume(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error) {
	wf, err := s.get(ctx, workflowID)
	if err != nil {
		return domain.TransferWorkflow{}, err
	}
	if wf.State.Terminal() {
		return wf, nil
	}
	return s.run(ctx, wf)
}

// Cancel aborts a transfer that has not yet produced side effects. Once the
// source debit has committed, an abort must go through the compensation
// path, so cancellation is rejected.
func (s *TransferService) Cancel(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error) {
	wf, err := s.get(ctx, workflowID)
	if err != nil {
		return domain.TransferWorkflow{}, err
	}
	switch wf.State {
	case domain.WorkflowCreated, domain.WorkflowValidating:
		return s.fail(ctx, wf, domain.ErrTransferCancelled)
	case domain.WorkflowCompleted:
		return wf, domain.ErrWorkflowAlreadyCompleted
	case domain.WorkflowFailed:
		return wf, domain.ErrWorkflowAlreadyFailed
	default:
		return wf, domain.ErrCancelTooLate
	}
}

// Status returns the persisted workflow state.
func (s *TransferService) Status(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error) {
	return s.get(ctx, workflowID)
}

func (s *TransferService) get(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error) {
	wf, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.TransferWorkflow{}, err
	}
	if wf == nil {
		return domain.TransferWorkflow{}, domain.ErrWorkflowNotFound
	}
	return *wf, nil
}

// run drives the state machine to a terminal state, persisting at every
// transition boundary so a crash between steps is resumable.
func (s *TransferService) run(ctx context.Context, wf domain.TransferWorkflow) (domain.TransferWorkflow, error) {
	for !wf.State.Terminal() {
		var err error
		switch wf.State {
		case domain.WorkflowCreated:
			wf, err = s.transition(ctx, wf, domain.WorkflowValidating)
		case domain.WorkflowValidating:
			wf, err = s.validate(ctx, wf)
		case domain.WorkflowDebitingSource:
			wf, err = s.debitSource(ctx, wf)
		case domain.WorkflowCreditingDestination:
			wf, err = s.creditDestination(ctx, wf)
		case domain.WorkflowCompensating:
			return s.compensate(ctx, wf)
		default:
			return wf, fmt.Errorf("workflow %s in unknown state %q", wf.ID, wf.State)
		}
		if err != nil {
			return wf, err
		}
	}
	return wf, nil
}

func (s *TransferService) validate(ctx context.Context, wf domain.TransferWorkflow) (domain.TransferWorkflow, error) {
	if wf.SourceID == wf.DestinationID {
		return s.fail(ctx, wf, domain.ErrSameAccount)
	}
	if !wf.Amount.IsPositive() {
		return s.fail(ctx, wf, domain.ErrInvalidAmount)
	}

	source, err := s.ledger.Rebuild(ctx, wf.SourceID)
	if err != nil {
		return s.fail(ctx, wf, err)
	}
	destination, err := s.ledger.Rebuild(ctx, wf.DestinationID)
	if err != nil {
		return s.fail(ctx, wf, err)
	}
	if source.Frozen || destination.Frozen {
		return s.fail(ctx, wf, domain.ErrAccountFrozen)
	}
	if wf.Amount.Currency != source.Currency || wf.Amount.Currency != destination.Currency {
		return s.fail(ctx, wf, domain.ErrCurrencyMismatch)
	}

	return s.transition(ctx, wf, domain.WorkflowDebitingSource)
}

func (s *TransferService) debitSource(ctx context.Context, wf domain.TransferWorkflow) (domain.TransferWorkflow, error) {
	if !wf.StepApplied(domain.StepDebitSource) {
		account, err := s.ledger.ApplySubtract(ctx, ApplyInput{
			AccountID:    wf.SourceID,
			Amount:       wf.Amount,
			WorkflowID:   wf.ID,
			WorkflowStep: domain.StepDebitSource,
		})
		switch {
		case errors.Is(err, domain.ErrStepAlreadyApplied):
			wf = s.recordStep(wf, domain.StepDebitSource, 0)
		case err != nil:
			// Nothing has been applied yet: fail without compensation.
			return s.fail(ctx, wf, err)
		default:
			wf = s.recordStep(wf, domain.StepDebitSource, account.LastSequence)
		}
	}
	return s.transition(ctx, wf, domain.WorkflowCreditingDestination)
}

func (s *TransferService) creditDestination(ctx context.Context, wf domain.TransferWorkflow) (domain.TransferWorkflow, error) {
	if !wf.StepApplied(domain.StepCreditDestination) {
		account, err := s.ledger.ApplyAdd(ctx, ApplyInput{
			AccountID:    wf.DestinationID,
			Amount:       wf.Amount,
			WorkflowID:   wf.ID,
			WorkflowStep: domain.StepCreditDestination,
		})
		switch {
		case errors.Is(err, domain.ErrStepAlreadyApplied):
			wf = s.recordStep(wf, domain.StepCreditDestination, 0)
		case err != nil:
			// The source debit is committed: reverse it with a compensating
			// event rather than aborting.
			wf.LastError = err.Error()
			return s.transition(ctx, wf, domain.WorkflowCompensating)
		default:
			wf = s.recordStep(wf, domain.StepCreditDestination, account.LastSequence)
		}
	}
	return s.transition(ctx, wf, domain.WorkflowCompleted)
}

func (s *TransferService) compensate(ctx context.Context, wf domain.TransferWorkflow) (domain.TransferWorkflow, error) {
	stepErr := errors.New(wf.LastError)
	if !wf.StepApplied(domain.StepCompensateSource) {
		account, err := s.ledger.ApplyAdd(ctx, ApplyInput{
			AccountID:    wf.SourceID,
			Amount:       wf.Amount,
			WorkflowID:   wf.ID,
			WorkflowStep: domain.StepCompensateSource,
		})
		switch {
		case errors.Is(err, domain.ErrStepAlreadyApplied):
			wf = s.recordStep(wf, domain.StepCompensateSource, 0)
		case err != nil:
			// The ledger has diverged: a committed debit with no committed
			// compensation. Terminal, escalated, never auto-retried.
			s.logger.Error("compensation failed, operator intervention required",
				zap.String("workflow_id", wf.ID.String()),
				zap.String("source_account_id", wf.SourceID.String()),
				zap.String("step_error", wf.LastError),
				zap.Error(err),
			)
			escalated := fmt.Errorf("%w: %v (after step failure: %s)", domain.ErrCompensationFailed, err, wf.LastError)
			wf.LastError = escalated.Error()
			wf, saveErr := s.transition(ctx, wf, domain.WorkflowFailed)
			if saveErr != nil {
				return wf, saveErr
			}
			return wf, escalated
		default:
			wf = s.recordStep(wf, domain.StepCompensateSource, account.LastSequence)
		}
	}

	wf, err := s.transition(ctx, wf, domain.WorkflowFailed)
	if err != nil {
		return wf, err
	}
	return wf, fmt.Errorf("%w: %v", domain.ErrTransferFailed, stepErr)
}

func (s *TransferService) fail(ctx context.Context, wf domain.TransferWorkflow, cause error) (domain.TransferWorkflow, error) {
	wf.LastError = cause.Error()
	wf, err := s.transition(ctx, wf, domain.WorkflowFailed)
	if err != nil {
		return wf, err
	}
	return wf, cause
}

func (s *TransferService) transition(ctx context.Context, wf domain.TransferWorkflow, next domain.WorkflowState) (domain.TransferWorkflow, error) {
	wf.State = next
	wf.UpdatedAt = s.clock.Now()
	if err := s.workflows.SaveWorkflow(ctx, wf); err != nil {
		return wf, fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	s.logger.Debug("workflow transition",
		zap.String("workflow_id", wf.ID.String()),
		zap.String("state", string(wf.State)),
	)
	return wf, nil
}

func (s *TransferService) recordStep(wf domain.TransferWorkflow, name string, sequence int64) domain.TransferWorkflow {
	// Sequence 0 means the step was found already applied during a resume;
	// the committed event still carries the (workflow, step) provenance.
	wf.Steps = append(wf.Steps, domain.WorkflowStep{
		Name:      name,
		Sequence:  sequence,
		AppliedAt: s.clock.Now(),
	})
	return wf
}
