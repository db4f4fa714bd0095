package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cimillas/core-ledger/internal/app"
	"github.com/cimillas/core-ledger/internal/domain"
)

// TransferService is the minimal interface needed for transfer endpoints.
type TransferService interface {
	Start(ctx context.Context, in app.StartTransferInput) (domain.TransferWorkflow, error)
	Status(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error)
	Cancel(ctx context.Context, workflowID uuid.UUID) (domain.TransferWorkflow, error)
}

// HandleStartTransfer returns an HTTP handler for starting transfers. The
// caller may supply a workflow id to make the request safely repeatable;
// one is generated otherwise.
func HandleStartTransfer(svc TransferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req startTransferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			return
		}

		wf, err := svc.Start(r.Context(), in)
		if err != nil {
			writeTransferError(w, wf, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(newTransferResponse(wf))
	}
}

// HandleTransfer routes `/transfers/{id}` status reads and
// `/transfers/{id}/cancel` requests.
func HandleTransfer(svc TransferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/transfers/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")

		workflowID, err := uuid.Parse(parts[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid transfer id")
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			wf, err := svc.Status(r.Context(), workflowID)
			if err != nil {
				writeTransferError(w, wf, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(newTransferResponse(wf))
		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			wf, err := svc.Cancel(r.Context(), workflowID)
			if err != nil {
				writeTransferError(w, wf, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(newTransferResponse(wf))
		case len(parts) == 1 || (len(parts) == 2 && parts[1] == "cancel"):
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func writeTransferError(w http.ResponseWriter, wf domain.TransferWorkflow, err error) {
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, codeTransferNotFound, err.Error())
	case errors.Is(err, domain.ErrWorkflowAlreadyCompleted):
		writeError(w, http.StatusConflict, codeTransferCompleted, err.Error())
	case errors.Is(err, domain.ErrWorkflowAlreadyFailed):
		writeError(w, http.StatusConflict, codeTransferFailed, err.Error())
	case errors.Is(err, domain.ErrWorkflowMismatch):
		writeError(w, http.StatusConflict, codeTransferMismatch, err.Error())
	case errors.Is(err, domain.ErrCancelTooLate):
		writeError(w, http.StatusConflict, codeCancelTooLate, err.Error())
	case errors.Is(err, domain.ErrSameAccount):
		writeError(w, http.StatusBadRequest, codeSameAccount, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrCompensationFailed):
		writeError(w, http.StatusInternalServerError, codeCompensationFailed, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrAccountFrozen),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrStaleSequence),
		errors.Is(err, domain.ErrChainBroken):
		writeAccountError(w, err)
	case errors.Is(err, domain.ErrTransferFailed), errors.Is(err, domain.ErrTransferCancelled):
		// The workflow reached Failed with the ledger consistent; report the
		// terminal state rather than masking it as a transport error.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(newTransferResponse(wf))
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type startTransferRequest struct {
	WorkflowID    string `json:"workflow_id"`
	SourceID      string `json:"source_account_id"`
	DestinationID string `json:"destination_account_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func (r startTransferRequest) toInput() (app.StartTransferInput, error) {
	in := app.StartTransferInput{
		WorkflowID: uuid.New(),
		Amount:     domain.Money{Amount: r.Amount, Currency: r.Currency},
	}
	if r.WorkflowID != "" {
		id, err := uuid.Parse(r.WorkflowID)
		if err != nil {
			return app.StartTransferInput{}, errors.New("invalid workflow_id")
		}
		in.WorkflowID = id
	}

	sourceID, err := uuid.Parse(r.SourceID)
	if err != nil {
		return app.StartTransferInput{}, errors.New("invalid source_account_id")
	}
	destinationID, err := uuid.Parse(r.DestinationID)
	if err != nil {
		return app.StartTransferInput{}, errors.New("invalid destination_account_id")
	}
	in.SourceID = sourceID
	in.DestinationID = destinationID
	return in, nil
}

type transferStepPayload struct {
	Name      string    `json:"name"`
	Sequence  int64     `json:"sequence"`
	AppliedAt time.Time `json:"applied_at"`
}

type transferResponse struct {
	ID            string                `json:"id"`
	SourceID      string                `json:"source_account_id"`
	DestinationID string                `json:"destination_account_id"`
	Amount        moneyPayload          `json:"amount"`
	State         string                `json:"state"`
	Steps         []transferStepPayload `json:"steps"`
	LastError     string                `json:"last_error,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func newTransferResponse(wf domain.TransferWorkflow) transferResponse {
	steps := make([]transferStepPayload, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		steps = append(steps, transferStepPayload{
			Name:      step.Name,
			Sequence:  step.Sequence,
			AppliedAt: step.AppliedAt,
		})
	}
	return transferResponse{
		ID:            wf.ID.String(),
		SourceID:      wf.SourceID.String(),
		DestinationID: wf.DestinationID.String(),
		Amount:        moneyPayload{Amount: wf.Amount.Amount, Currency: wf.Amount.Currency},
		State:         string(wf.State),
		Steps:         steps,
		LastError:     wf.LastError,
		CreatedAt:     wf.CreatedAt,
		UpdatedAt:     wf.UpdatedAt,
	}
}
