package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the derived view of an account: existence, currency and frozen
// come from the registry row, balance and chain head are always a fold over
// the event stream and are never stored as ground truth.
type Account struct {
	ID           uuid.UUID
	Currency     string
	Frozen       bool
	Balance      Money
	LastSequence int64
	LastHash     Hash
	LastUpdated  time.Time
	CreatedAt    time.Time
}

// Apply folds one event into the aggregate, returning a new value
// (copy-on-apply: previously returned snapshots are never mutated).
func (a Account) Apply(e LedgerEvent) (Account, error) {
	var balance Money
	var err error
	switch e.Type {
	case EventMoneyAdded:
		balance, err = a.Balance.Add(e.Amount)
	case EventMoneySubtracted:
		balance, err = a.Balance.Subtract(e.Amount)
	default:
		return Account{}, &ChainBrokenError{
			AccountID:  a.ID,
			AtSequence: e.Sequence,
			Reason:     "unknown event type " + string(e.Type),
		}
	}
	if err != nil {
		return Account{}, err
	}

	a.Balance = balance
	a.LastSequence = e.Sequence
	a.LastHash = e.Hash
	a.LastUpdated = e.CreatedAt
	return a, nil
}

// Fold replays an ordered, chain-verified history into the aggregate.
// Verification happens link by link so a broken chain fails fast instead of
// trusting a partially folded balance.
func (a Account) Fold(events []LedgerEvent) (Account, error) {
	if err := VerifyChain(events); err != nil {
		return Account{}, err
	}
	out := a
	var err error
	for _, e := range events {
		out, err = out.Apply(e)
		if err != nil {
			return Account{}, err
		}
	}
	return out, nil
}
