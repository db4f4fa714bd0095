package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func buildChain(t *testing.T, accountID uuid.UUID, entries []struct {
	typ    EventType
	amount int64
}) []LedgerEvent {
	t.Helper()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	events := make([]LedgerEvent, 0, len(entries))
	var head *LedgerEvent
	for i, entry := range entries {
		e, err := NextEvent(head, accountID, entry.typ, NewMoney(entry.amount, "USD"), DefaultAlgorithm, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("next event %d: %v", i, err)
		}
		events = append(events, e)
		head = &events[len(events)-1]
	}
	return events
}

func TestNextEvent(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("roots at genesis with sequence one", func(t *testing.T) {
		e, err := NextEvent(nil, accountID, EventMoneyAdded, NewMoney(100, "USD"), DefaultAlgorithm, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.Sequence != 1 {
			t.Fatalf("expected sequence 1, got %d", e.Sequence)
		}
		want, _ := DefaultAlgorithm.Chain(Genesis(), e.ChainContent())
		if !e.Hash.Equal(want) {
			t.Fatalf("expected genesis-rooted digest")
		}
	})

	t.Run("chains from head", func(t *testing.T) {
		events := buildChain(t, accountID, []struct {
			typ    EventType
			amount int64
		}{{EventMoneyAdded, 100}, {EventMoneySubtracted, 30}})

		if events[1].Sequence != 2 {
			t.Fatalf("expected sequence 2, got %d", events[1].Sequence)
		}
		want, _ := DefaultAlgorithm.Chain(events[0].Hash, events[1].ChainContent())
		if !events[1].Hash.Equal(want) {
			t.Fatalf("expected second link to incorporate first link's digest")
		}
	})

	t.Run("rejects algorithm change mid-chain", func(t *testing.T) {
		head, err := NextEvent(nil, accountID, EventMoneyAdded, NewMoney(100, "USD"), AlgorithmBlake2b512, now)
		if err != nil {
			t.Fatalf("next event: %v", err)
		}
		_, err = NextEvent(&head, accountID, EventMoneyAdded, NewMoney(1, "USD"), AlgorithmSHA512, now)
		if !errors.Is(err, ErrChainBroken) {
			t.Fatalf("expected ErrChainBroken, got %v", err)
		}
	})

	t.Run("rejects unknown event type", func(t *testing.T) {
		if _, err := NextEvent(nil, accountID, EventType("bogus"), NewMoney(1, "USD"), DefaultAlgorithm, now); err == nil {
			t.Fatalf("expected error for unknown event type")
		}
	})
}

func TestVerifyChain(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	validHistory := func() []LedgerEvent {
		return buildChain(t, accountID, []struct {
			typ    EventType
			amount int64
		}{
			{EventMoneyAdded, 500},
			{EventMoneySubtracted, 200},
			{EventMoneyAdded, 50},
			{EventMoneySubtracted, 10},
		})
	}

	t.Run("valid history verifies", func(t *testing.T) {
		if err := VerifyChain(validHistory()); err != nil {
			t.Fatalf("expected valid chain, got %v", err)
		}
	})

	t.Run("empty history verifies", func(t *testing.T) {
		if err := VerifyChain(nil); err != nil {
			t.Fatalf("expected empty chain to verify, got %v", err)
		}
	})

	t.Run("tampered amount fails at exactly that sequence", func(t *testing.T) {
		for i := range validHistory() {
			events := validHistory()
			events[i].Amount.Amount++

			err := VerifyChain(events)
			var broken *ChainBrokenError
			if !errors.As(err, &broken) {
				t.Fatalf("expected ChainBrokenError, got %v", err)
			}
			if broken.AtSequence != events[i].Sequence {
				t.Fatalf("expected break at sequence %d, got %d", events[i].Sequence, broken.AtSequence)
			}
		}
	})

	t.Run("tampered type fails at exactly that sequence", func(t *testing.T) {
		events := validHistory()
		events[1].Type = EventMoneyAdded

		err := VerifyChain(events)
		var broken *ChainBrokenError
		if !errors.As(err, &broken) {
			t.Fatalf("expected ChainBrokenError, got %v", err)
		}
		if broken.AtSequence != 2 {
			t.Fatalf("expected break at sequence 2, got %d", broken.AtSequence)
		}
	})

	t.Run("reordered events fail", func(t *testing.T) {
		events := validHistory()
		events[1], events[2] = events[2], events[1]
		if err := VerifyChain(events); !errors.Is(err, ErrChainBroken) {
			t.Fatalf("expected ErrChainBroken, got %v", err)
		}
	})

	t.Run("sequence gap fails", func(t *testing.T) {
		events := validHistory()
		if err := VerifyChain(append(events[:1], events[2:]...)); !errors.Is(err, ErrChainBroken) {
			t.Fatalf("expected ErrChainBroken on gap, got %v", err)
		}
	})

	t.Run("mixed algorithms fail", func(t *testing.T) {
		events := validHistory()
		events[2].Algorithm = AlgorithmSHA512
		err := VerifyChain(events)
		var broken *ChainBrokenError
		if !errors.As(err, &broken) {
			t.Fatalf("expected ChainBrokenError, got %v", err)
		}
		if broken.AtSequence != 3 {
			t.Fatalf("expected break at sequence 3, got %d", broken.AtSequence)
		}
	})
}

func TestAccountFold(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	account := Account{ID: accountID, Currency: "USD", Balance: NewMoney(0, "USD")}
	history := buildChain(t, accountID, []struct {
		typ    EventType
		amount int64
	}{
		{EventMoneyAdded, 500},
		{EventMoneySubtracted, 200},
		{EventMoneyAdded, 50},
	})

	t.Run("balance is credits minus debits", func(t *testing.T) {
		folded, err := account.Fold(history)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		if folded.Balance.Amount != 350 {
			t.Fatalf("expected balance 350, got %d", folded.Balance.Amount)
		}
		if folded.LastSequence != 3 {
			t.Fatalf("expected last sequence 3, got %d", folded.LastSequence)
		}
		if !folded.LastHash.Equal(history[2].Hash) {
			t.Fatalf("expected last hash to match head")
		}
	})

	t.Run("folding is idempotent", func(t *testing.T) {
		first, err := account.Fold(history)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		second, err := account.Fold(history)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		if first.Balance != second.Balance || first.LastSequence != second.LastSequence {
			t.Fatalf("expected identical folds, got %+v vs %+v", first, second)
		}
	})

	t.Run("does not mutate the receiver", func(t *testing.T) {
		if _, err := account.Fold(history); err != nil {
			t.Fatalf("fold: %v", err)
		}
		if account.Balance.Amount != 0 || account.LastSequence != 0 {
			t.Fatalf("expected receiver untouched, got %+v", account)
		}
	})

	t.Run("broken chain fails fast", func(t *testing.T) {
		tampered := append([]LedgerEvent{}, history...)
		tampered[0].Amount.Amount = 9999
		if _, err := account.Fold(tampered); !errors.Is(err, ErrChainBroken) {
			t.Fatalf("expected ErrChainBroken, got %v", err)
		}
	})
}
