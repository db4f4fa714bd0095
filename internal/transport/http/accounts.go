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
	"github.com/cimillas/core-ledger/internal/readmodel"
)

// AccountService is the minimal interface needed for account endpoints.
type AccountService interface {
	OpenAccount(ctx context.Context, in app.OpenAccountInput) (domain.Account, error)
	Rebuild(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	SetFrozen(ctx context.Context, accountID uuid.UUID, frozen bool) error
	ApplyAdd(ctx context.Context, in app.ApplyInput) (domain.Account, error)
	ApplySubtract(ctx context.Context, in app.ApplyInput) (domain.Account, error)
}

// TurnoverSummarizer is the read-model side of the account endpoints.
type TurnoverSummarizer interface {
	Summarize(ctx context.Context, accountID uuid.UUID) (readmodel.Turnover, error)
}

// HandleOpenAccount returns an HTTP handler for opening accounts.
func HandleOpenAccount(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req openAccountRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		account, err := svc.OpenAccount(r.Context(), app.OpenAccountInput{Currency: req.Currency})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrCurrencyRequired):
				writeError(w, http.StatusBadRequest, codeCurrencyRequired, err.Error())
			case errors.Is(err, domain.ErrAccountExists):
				writeError(w, http.StatusConflict, codeAccountExists, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(openAccountResponse{
			ID:        account.ID.String(),
			Currency:  account.Currency,
			CreatedAt: account.CreatedAt,
		})
	}
}

// HandleAccount routes `/accounts/{id}/<action>` requests: balance and
// turnover reads, freeze, and direct deposit/withdraw postings.
func HandleAccount(svc AccountService, turnover TurnoverSummarizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/accounts/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) != 2 {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		accountID, err := uuid.Parse(parts[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidID, "invalid account id")
			return
		}

		switch parts[1] {
		case "balance":
			handleBalance(w, r, svc, accountID)
		case "turnover":
			handleTurnover(w, r, turnover, accountID)
		case "freeze":
			handleSetFrozen(w, r, svc, accountID, true)
		case "unfreeze":
			handleSetFrozen(w, r, svc, accountID, false)
		case "deposit":
			handlePosting(w, r, svc.ApplyAdd, accountID)
		case "withdraw":
			handlePosting(w, r, svc.ApplySubtract, accountID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleBalance(w http.ResponseWriter, r *http.Request, svc AccountService, accountID uuid.UUID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	account, err := svc.Rebuild(r.Context(), accountID)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(balanceResponse{
		AccountUuid: account.ID.String(),
		Balance:     moneyPayload{Amount: account.Balance.Amount, Currency: account.Balance.Currency},
		Frozen:      account.Frozen,
		LastUpdated: account.LastUpdated,
	})
}

func handleTurnover(w http.ResponseWriter, r *http.Request, turnover TurnoverSummarizer, accountID uuid.UUID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	if turnover == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}

	summary, err := turnover.Summarize(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(turnoverResponse{
		AccountUuid: summary.AccountID.String(),
		Currency:    summary.Currency,
		Credits:     summary.Credits.String(),
		Debits:      summary.Debits.String(),
		CreditCount: summary.CreditCount,
		DebitCount:  summary.DebitCount,
	})
}

func handleSetFrozen(w http.ResponseWriter, r *http.Request, svc AccountService, accountID uuid.UUID, frozen bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	if err := svc.SetFrozen(r.Context(), accountID, frozen); err != nil {
		writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handlePosting(w http.ResponseWriter, r *http.Request, apply func(context.Context, app.ApplyInput) (domain.Account, error), accountID uuid.UUID) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	var req postingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	account, err := apply(r.Context(), app.ApplyInput{
		AccountID: accountID,
		Amount:    domain.Money{Amount: req.Amount, Currency: req.Currency},
	})
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(balanceResponse{
		AccountUuid: account.ID.String(),
		Balance:     moneyPayload{Amount: account.Balance.Amount, Currency: account.Balance.Currency},
		Frozen:      account.Frozen,
		LastUpdated: account.LastUpdated,
	})
}

func writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
	case errors.Is(err, domain.ErrAccountFrozen):
		writeError(w, http.StatusConflict, codeAccountFrozen, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, codeInsufficientFunds, err.Error())
	case errors.Is(err, domain.ErrCurrencyMismatch):
		writeError(w, http.StatusBadRequest, codeCurrencyMismatch, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrAmountOverflow):
		writeError(w, http.StatusUnprocessableEntity, codeAmountOverflow, err.Error())
	case errors.Is(err, domain.ErrStaleSequence):
		writeError(w, http.StatusConflict, codeStaleSequence, err.Error())
	case errors.Is(err, domain.ErrChainBroken):
		writeError(w, http.StatusInternalServerError, codeChainBroken, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type openAccountRequest struct {
	Currency string `json:"currency"`
}

type openAccountResponse struct {
	ID        string    `json:"id"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type postingRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type moneyPayload struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type balanceResponse struct {
	AccountUuid string       `json:"accountUuid"`
	Balance     moneyPayload `json:"balance"`
	Frozen      bool         `json:"frozen"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

type turnoverResponse struct {
	AccountUuid string `json:"accountUuid"`
	Currency    string `json:"currency"`
	Credits     string `json:"credits"`
	Debits      string `json:"debits"`
	CreditCount int    `json:"creditCount"`
	DebitCount  int    `json:"debitCount"`
}
