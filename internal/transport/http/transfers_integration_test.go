package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cimillas/core-ledger/internal/app"
	"github.com/cimillas/core-ledger/internal/clock"
	"github.com/cimillas/core-ledger/internal/domain"
	"github.com/cimillas/core-ledger/internal/storage/postgres"
	"github.com/cimillas/core-ledger/internal/testutil"
)

func TestTransfer_HTTPIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	ledgerRepo := postgres.NewLedgerRepository(pool)
	workflowRepo := postgres.NewWorkflowRepository(pool)
	ledger := app.NewLedgerService(ledgerRepo, clock.NewSystem())
	transfers := app.NewTransferService(workflowRepo, ledger, clock.NewSystem(), nil)

	sourceID := testutil.InsertAccount(t, ctx, pool, "USD", false)
	destinationID := testutil.InsertAccount(t, ctx, pool, "USD", false)
	testutil.SeedEvents(t, ctx, pool, sourceID, "USD", 50_000)

	body := `{"source_account_id":"` + sourceID.String() +
		`","destination_account_id":"` + destinationID.String() +
		`","amount":20000,"currency":"USD"}`

	rec := httptest.NewRecorder()
	HandleStartTransfer(transfers).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	var started transferResponse
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if started.State != string(domain.WorkflowCompleted) {
		t.Fatalf("expected completed transfer, got %s (%s)", started.State, started.LastError)
	}
	if len(started.Steps) != 2 {
		t.Fatalf("expected 2 recorded steps, got %d", len(started.Steps))
	}

	checkBalance := func(accountID, wantAmount string) {
		t.Helper()
		rec := httptest.NewRecorder()
		HandleAccount(ledger, nil).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/accounts/"+accountID+"/balance", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("balance status = %d (body %s)", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"amount":`+wantAmount) {
			t.Fatalf("balance body %s, want amount %s", rec.Body.String(), wantAmount)
		}
	}
	checkBalance(sourceID.String(), "30000")
	checkBalance(destinationID.String(), "20000")

	rec2 := httptest.NewRecorder()
	HandleTransfer(transfers).ServeHTTP(rec2,
		httptest.NewRequest(http.MethodGet, "/transfers/"+started.ID, nil))

	if rec2.Code != http.StatusOK {
		t.Fatalf("status read = %d (body %s)", rec2.Code, rec2.Body.String())
	}
	var read transferResponse
	if err := json.NewDecoder(rec2.Body).Decode(&read); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if read.State != string(domain.WorkflowCompleted) {
		t.Fatalf("expected completed on re-read, got %s", read.State)
	}

	// Replaying the same workflow identity must be rejected, not re-applied.
	rec3 := httptest.NewRecorder()
	replay := `{"workflow_id":"` + started.ID + `",` + body[1:]
	HandleStartTransfer(transfers).ServeHTTP(rec3,
		httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(replay)))

	if rec3.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d (body %s)", rec3.Code, rec3.Body.String())
	}
	checkBalance(sourceID.String(), "30000")
}
