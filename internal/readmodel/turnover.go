package readmodel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cimillas/core-ledger/internal/domain"
)

// EventSource is the read side of the event store: committed events in
// per-account sequence order, starting after a known sequence.
type EventSource interface {
	EventsSince(ctx context.Context, accountID uuid.UUID, afterSequence int64) ([]domain.LedgerEvent, error)
}

// Turnover is a per-account debit/credit summary. Totals are in major
// currency units for reporting.
type Turnover struct {
	AccountID   uuid.UUID
	Currency    string
	Credits     decimal.Decimal
	Debits      decimal.Decimal
	CreditCount int
	DebitCount  int

	// LastSequence is the sequence of the last event folded into the
	// summary; the cache key for incremental updates.
	LastSequence int64
}

// minorUnitDigits maps ISO currency codes to their minor-unit exponent.
// Unlisted currencies default to 2.
var minorUnitDigits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
	"TND": 3,
}

func toMajor(m domain.Money) decimal.Decimal {
	digits, ok := minorUnitDigits[m.Currency]
	if !ok {
		digits = 2
	}
	return decimal.New(m.Amount, -digits)
}

// TurnoverAggregator folds committed events into per-account summaries.
// Because committed events are never mutated or deleted, summaries are
// cached and only the tail past LastSequence is ever re-read.
type TurnoverAggregator struct {
	source EventSource

	mu    sync.Mutex
	cache map[uuid.UUID]Turnover
}

func NewTurnoverAggregator(source EventSource) *TurnoverAggregator {
	return &TurnoverAggregator{
		source: source,
		cache:  make(map[uuid.UUID]Turnover),
	}
}

// Summarize returns the account's running turnover, updated incrementally
// from events committed since the last call.
func (a *TurnoverAggregator) Summarize(ctx context.Context, accountID uuid.UUID) (Turnover, error) {
	a.mu.Lock()
	summary, ok := a.cache[accountID]
	a.mu.Unlock()
	if !ok {
		summary = Turnover{
			AccountID: accountID,
			Credits:   decimal.Zero,
			Debits:    decimal.Zero,
		}
	}

	events, err := a.source.EventsSince(ctx, accountID, summary.LastSequence)
	if err != nil {
		return Turnover{}, err
	}
	summary = fold(summary, events, nil)

	a.mu.Lock()
	a.cache[accountID] = summary
	a.mu.Unlock()
	return summary, nil
}

// SummarizeRange folds only events committed within [from, to). It bypasses
// the cache since ranges are arbitrary.
func (a *TurnoverAggregator) SummarizeRange(ctx context.Context, accountID uuid.UUID, from, to time.Time) (Turnover, error) {
	events, err := a.source.EventsSince(ctx, accountID, 0)
	if err != nil {
		return Turnover{}, err
	}
	summary := Turnover{
		AccountID: accountID,
		Credits:   decimal.Zero,
		Debits:    decimal.Zero,
	}
	inRange := func(e domain.LedgerEvent) bool {
		return !e.CreatedAt.Before(from) && e.CreatedAt.Before(to)
	}
	return fold(summary, events, inRange), nil
}

func fold(summary Turnover, events []domain.LedgerEvent, include func(domain.LedgerEvent) bool) Turnover {
	for _, e := range events {
		if e.Sequence > summary.LastSequence {
			summary.LastSequence = e.Sequence
		}
		if include != nil && !include(e) {
			continue
		}
		summary.Currency = e.Amount.Currency
		switch e.Type {
		case domain.EventMoneyAdded:
			summary.Credits = summary.Credits.Add(toMajor(e.Amount))
			summary.CreditCount++
		case domain.EventMoneySubtracted:
			summary.Debits = summary.Debits.Add(toMajor(e.Amount))
			summary.DebitCount++
		}
	}
	return summary
}
