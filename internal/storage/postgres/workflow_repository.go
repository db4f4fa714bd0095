package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/core-ledger/internal/domain"
)

// WorkflowRepository is the durability store for in-flight transfer sagas.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

// SaveWorkflow upserts the workflow state and its compensation log. The saga
// calls this at every transition boundary.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, wf domain.TransferWorkflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("marshal workflow steps: %w", err)
	}

	const stmt = `
INSERT INTO transfer_workflows
	(id, source_account_id, destination_account_id, amount, currency, state, steps, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	steps = EXCLUDED.steps,
	last_error = EXCLUDED.last_error,
	updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, stmt,
		wf.ID,
		wf.SourceID,
		wf.DestinationID,
		wf.Amount.Amount,
		wf.Amount.Currency,
		wf.State,
		steps,
		wf.LastError,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow loads a workflow by id, nil when unknown.
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.TransferWorkflow, error) {
	const query = `
SELECT id, source_account_id, destination_account_id, amount, currency, state, steps, last_error, created_at, updated_at
FROM transfer_workflows
WHERE id = $1`

	var wf domain.TransferWorkflow
	var amount int64
	var currency, state string
	var steps []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.SourceID,
		&wf.DestinationID,
		&amount,
		&currency,
		&state,
		&steps,
		&wf.LastError,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	wf.Amount = domain.NewMoney(amount, currency)
	wf.State = domain.WorkflowState(state)
	if err := json.Unmarshal(steps, &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal workflow steps: %w", err)
	}
	return &wf, nil
}

// ListUnfinished returns workflows that were in flight when the process
// stopped, oldest first, so a restarted orchestrator can resume them.
func (r *WorkflowRepository) ListUnfinished(ctx context.Context) ([]uuid.UUID, error) {
	const query = `
SELECT id FROM transfer_workflows
WHERE state NOT IN ('completed', 'failed')
ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unfinished workflows: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unfinished workflows: %w", err)
	}
	return ids, nil
}
