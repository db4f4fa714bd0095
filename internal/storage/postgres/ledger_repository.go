package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/core-ledger/internal/domain"
)

// Constraint names from migrations; append conflicts are mapped to domain
// errors by constraint.
const (
	eventSequenceConstraint = "ledger_events_pkey"
	workflowStepConstraint  = "ledger_events_workflow_step_idx"
)

// LedgerRepository is the Postgres event store and account registry. Events
// for one account are totally ordered by sequence; order across accounts is
// never guaranteed.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	const stmt = `
INSERT INTO accounts (id, currency, frozen, created_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, stmt, account.ID, account.Currency, account.Frozen, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	const query = `SELECT id, currency, frozen, created_at FROM accounts WHERE id = $1`

	var a domain.Account
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Currency, &a.Frozen, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.Balance = domain.NewMoney(0, a.Currency)
	a.LastHash = domain.Genesis()
	return a, nil
}

func (r *LedgerRepository) SetFrozen(ctx context.Context, id uuid.UUID, frozen bool) error {
	const stmt = `UPDATE accounts SET frozen = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, stmt, id, frozen)
	if err != nil {
		return fmt.Errorf("set frozen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// AppendEvent commits one chain link. The (account_id, sequence) primary key
// is the optimistic concurrency check: a writer that lost the race gets
// ErrStaleSequence and must re-read the head. The partial unique index on
// (workflow_id, workflow_step) turns a replayed saga step into
// ErrStepAlreadyApplied instead of a duplicate event.
func (r *LedgerRepository) AppendEvent(ctx context.Context, event domain.LedgerEvent) error {
	const stmt = `
INSERT INTO ledger_events
	(account_id, sequence, event_type, amount, currency, hash, algorithm, workflow_id, workflow_step, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var workflowID *uuid.UUID
	var workflowStep *string
	if event.WorkflowID != uuid.Nil {
		workflowID = &event.WorkflowID
		workflowStep = &event.WorkflowStep
	}

	_, err := r.pool.Exec(ctx, stmt,
		event.AccountID,
		event.Sequence,
		event.Type,
		event.Amount.Amount,
		event.Amount.Currency,
		event.Hash.String(),
		event.Algorithm,
		workflowID,
		workflowStep,
		event.CreatedAt,
	)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok {
			if name == workflowStepConstraint {
				return domain.ErrStepAlreadyApplied
			}
			return domain.ErrStaleSequence
		}
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListEvents(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEvent, error) {
	return r.EventsSince(ctx, accountID, 0)
}

// EventsSince returns the account's events with sequence greater than
// afterSequence, in ascending commit order. Read models cache safely keyed
// by the last sequence they have seen: committed events never change.
func (r *LedgerRepository) EventsSince(ctx context.Context, accountID uuid.UUID, afterSequence int64) ([]domain.LedgerEvent, error) {
	const query = `
SELECT account_id, sequence, event_type, amount, currency, hash, algorithm, workflow_id, workflow_step, created_at
FROM ledger_events
WHERE account_id = $1 AND sequence > $2
ORDER BY sequence ASC`

	rows, err := r.pool.Query(ctx, query, accountID, afterSequence)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (domain.LedgerEvent, error) {
	var e domain.LedgerEvent
	var amount int64
	var currency, hash, algorithm string
	var workflowID *uuid.UUID
	var workflowStep *string

	if err := row.Scan(&e.AccountID, &e.Sequence, &e.Type, &amount, &currency, &hash, &algorithm, &workflowID, &workflowStep, &e.CreatedAt); err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("scan event: %w", err)
	}

	e.Amount = domain.NewMoney(amount, currency)

	h, err := domain.NewHash(hash)
	if err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("scan event hash: %w", err)
	}
	e.Hash = h

	algo, err := domain.ParseAlgorithm(algorithm)
	if err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("scan event algorithm: %w", err)
	}
	e.Algorithm = algo

	if workflowID != nil {
		e.WorkflowID = *workflowID
	}
	if workflowStep != nil {
		e.WorkflowStep = *workflowStep
	}
	return e, nil
}
