package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidID          = "invalid_id"
	codeCurrencyRequired   = "currency_required"
	codeCurrencyMismatch   = "currency_mismatch"
	codeInvalidAmount      = "invalid_amount"
	codeAmountOverflow     = "amount_overflow"
	codeAccountNotFound    = "account_not_found"
	codeAccountExists      = "account_already_exists"
	codeAccountFrozen      = "account_frozen"
	codeInsufficientFunds  = "insufficient_funds"
	codeChainBroken        = "chain_broken"
	codeStaleSequence      = "stale_sequence"
	codeSameAccount        = "same_account_transfer"
	codeTransferNotFound   = "transfer_not_found"
	codeTransferCompleted  = "transfer_already_completed"
	codeTransferFailed     = "transfer_already_failed"
	codeTransferMismatch   = "transfer_identity_mismatch"
	codeCancelTooLate      = "cancel_too_late"
	codeCompensationFailed = "compensation_failed"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
