package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

// The event set is closed: aggregates are folded with exhaustive matching
// over these two variants.
const (
	EventMoneyAdded      EventType = "money_added"
	EventMoneySubtracted EventType = "money_subtracted"
)

func (t EventType) Valid() bool {
	return t == EventMoneyAdded || t == EventMoneySubtracted
}

// LedgerEvent is one immutable link in an account's hash chain. Events are
// appended by the ledger service in response to committed operations and are
// never edited or deleted.
type LedgerEvent struct {
	AccountID uuid.UUID
	Sequence  int64
	Type      EventType
	Amount    Money
	Hash      Hash
	Algorithm ChainAlgorithm

	// WorkflowID and WorkflowStep record saga provenance when the event was
	// appended by a transfer step. Zero values mean a direct operation.
	WorkflowID   uuid.UUID
	WorkflowStep string

	CreatedAt time.Time
}

// ChainContent is the deterministic byte encoding digested into the next
// link. It covers everything chain verification must protect: stream
// identity, event type, amount, currency and position.
func (e LedgerEvent) ChainContent() []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%s\n%d\n%d",
		e.AccountID, e.Type, e.Amount.Currency, e.Amount.Amount, e.Sequence))
}

// NextEvent builds the successor of head for an account stream. A nil head
// roots the chain at Genesis with sequence 1.
func NextEvent(head *LedgerEvent, accountID uuid.UUID, eventType EventType, amount Money, algo ChainAlgorithm, now time.Time) (LedgerEvent, error) {
	if !eventType.Valid() {
		return LedgerEvent{}, fmt.Errorf("next event: unknown event type %q", eventType)
	}

	prev := Genesis()
	var seq int64 = 1
	if head != nil {
		if head.Algorithm != algo {
			return LedgerEvent{}, &ChainBrokenError{
				AccountID:  accountID,
				AtSequence: head.Sequence + 1,
				Reason:     fmt.Sprintf("chain algorithm changed from %s to %s", head.Algorithm, algo),
			}
		}
		prev = head.Hash
		seq = head.Sequence + 1
	}

	event := LedgerEvent{
		AccountID: accountID,
		Sequence:  seq,
		Type:      eventType,
		Amount:    amount,
		Algorithm: algo,
		CreatedAt: now,
	}
	hash, err := algo.Chain(prev, event.ChainContent())
	if err != nil {
		return LedgerEvent{}, err
	}
	event.Hash = hash
	return event, nil
}

// VerifyChain recomputes every link of an ordered per-account history and
// fails with ChainBrokenError at the first mismatch, gap or algorithm mix.
// An empty history is a valid chain.
func VerifyChain(events []LedgerEvent) error {
	prev := Genesis()
	var prevSeq int64
	var algo ChainAlgorithm

	for i, e := range events {
		if e.Sequence != prevSeq+1 {
			return &ChainBrokenError{
				AccountID:  e.AccountID,
				AtSequence: e.Sequence,
				Reason:     fmt.Sprintf("sequence gap: expected %d", prevSeq+1),
			}
		}
		if i == 0 {
			algo = e.Algorithm
		} else if e.Algorithm != algo {
			return &ChainBrokenError{
				AccountID:  e.AccountID,
				AtSequence: e.Sequence,
				Reason:     fmt.Sprintf("chain algorithm changed from %s to %s", algo, e.Algorithm),
			}
		}

		expected, err := e.Algorithm.Chain(prev, e.ChainContent())
		if err != nil {
			return &ChainBrokenError{
				AccountID:  e.AccountID,
				AtSequence: e.Sequence,
				Reason:     err.Error(),
			}
		}
		if !expected.Equal(e.Hash) {
			return &ChainBrokenError{
				AccountID:  e.AccountID,
				AtSequence: e.Sequence,
				Reason:     "digest mismatch",
			}
		}

		prev = e.Hash
		prevSeq = e.Sequence
	}
	return nil
}
