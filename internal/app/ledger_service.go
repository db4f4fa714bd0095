package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cimillas/core-ledger/internal/clock"
	"github.com/cimillas/core-ledger/internal/domain"
)

// LedgerRepository is the append/read contract with the event store plus the
// account registry. Appends rely on optimistic concurrency: the store rejects
// an event whose sequence is not exactly one past the committed head.
type LedgerRepository interface {
	CreateAccount(ctx context.Context, account domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	SetFrozen(ctx context.Context, id uuid.UUID, frozen bool) error
	AppendEvent(ctx context.Context, event domain.LedgerEvent) error
	ListEvents(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEvent, error)
}

// LedgerService owns the account aggregate: it rebuilds balances from the
// event stream and appends new chain links.
type LedgerService struct {
	repo          LedgerRepository
	clock         clock.Clock
	algorithm     domain.ChainAlgorithm
	appendRetries int
}

const defaultAppendRetries = 3

func NewLedgerService(repo LedgerRepository, clk clock.Clock, opts ...LedgerServiceOption) *LedgerService {
	svc := &LedgerService{
		repo:          repo,
		clock:         clk,
		algorithm:     domain.DefaultAlgorithm,
		appendRetries: defaultAppendRetries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type LedgerServiceOption func(*LedgerService)

// WithAppendRetries overrides the bounded retry count for stale-sequence
// contention on append.
func WithAppendRetries(n int) LedgerServiceOption {
	return func(s *LedgerService) {
		if n > 0 {
			s.appendRetries = n
		}
	}
}

// WithAlgorithm pins a different chain digest algorithm for new links.
func WithAlgorithm(a domain.ChainAlgorithm) LedgerServiceOption {
	return func(s *LedgerService) {
		s.algorithm = a
	}
}

type OpenAccountInput struct {
	Currency string
}

// OpenAccount registers a new account with an empty event stream.
func (s *LedgerService) OpenAccount(ctx context.Context, in OpenAccountInput) (domain.Account, error) {
	if in.Currency == "" {
		return domain.Account{}, domain.ErrCurrencyRequired
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:          uuid.New(),
		Currency:    in.Currency,
		Balance:     domain.NewMoney(0, in.Currency),
		LastHash:    domain.Genesis(),
		LastUpdated: now,
		CreatedAt:   now,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// Rebuild folds the account's full ordered history, verifying the chain as
// it folds. It is a pure read: concurrent callers each get their own
// point-in-time snapshot.
func (s *LedgerService) Rebuild(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	account, _, err := s.rebuild(ctx, accountID)
	return account, err
}

func (s *LedgerService) rebuild(ctx context.Context, accountID uuid.UUID) (domain.Account, []domain.LedgerEvent, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, nil, err
	}

	events, err := s.repo.ListEvents(ctx, accountID)
	if err != nil {
		return domain.Account{}, nil, err
	}

	account.Balance = domain.NewMoney(0, account.Currency)
	account.LastHash = domain.Genesis()
	folded, err := account.Fold(events)
	if err != nil {
		return domain.Account{}, nil, err
	}
	return folded, events, nil
}

// SetFrozen freezes or unfreezes an account. Frozen accounts reject both
// debits and credits.
func (s *LedgerService) SetFrozen(ctx context.Context, accountID uuid.UUID, frozen bool) error {
	return s.repo.SetFrozen(ctx, accountID, frozen)
}

// ApplyInput describes one ledger mutation. WorkflowID and WorkflowStep are
// set by the transfer saga so the store can enforce at-most-once application
// per (workflow, step); direct operations leave them zero.
type ApplyInput struct {
	AccountID    uuid.UUID
	Amount       domain.Money
	WorkflowID   uuid.UUID
	WorkflowStep string
}

// ApplyAdd credits the account and returns the updated aggregate snapshot.
func (s *LedgerService) ApplyAdd(ctx context.Context, in ApplyInput) (domain.Account, error) {
	return s.apply(ctx, in, domain.EventMoneyAdded)
}

// ApplySubtract debits the account, rejecting overdrafts, and returns the
// updated aggregate snapshot.
func (s *LedgerService) ApplySubtract(ctx context.Context, in ApplyInput) (domain.Account, error) {
	return s.apply(ctx, in, domain.EventMoneySubtracted)
}

func (s *LedgerService) apply(ctx context.Context, in ApplyInput, eventType domain.EventType) (domain.Account, error) {
	if !in.Amount.IsPositive() {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	// Optimistic concurrency: rebuild from the observed head, attempt the
	// append, and on a lost race re-read and reapply, up to the bound.
	for attempt := 0; attempt < s.appendRetries; attempt++ {
		account, events, err := s.rebuild(ctx, in.AccountID)
		if err != nil {
			return domain.Account{}, err
		}
		if account.Frozen {
			return domain.Account{}, domain.ErrAccountFrozen
		}
		if in.Amount.Currency != account.Currency {
			return domain.Account{}, domain.ErrCurrencyMismatch
		}
		if eventType == domain.EventMoneySubtracted {
			remaining, err := account.Balance.Subtract(in.Amount)
			if err != nil {
				return domain.Account{}, err
			}
			if remaining.IsNegative() {
				return domain.Account{}, domain.ErrInsufficientFunds
			}
		}

		var head *domain.LedgerEvent
		if len(events) > 0 {
			head = &events[len(events)-1]
		}
		event, err := domain.NextEvent(head, in.AccountID, eventType, in.Amount, s.algorithm, s.clock.Now())
		if err != nil {
			return domain.Account{}, err
		}
		event.WorkflowID = in.WorkflowID
		event.WorkflowStep = in.WorkflowStep

		if err := s.repo.AppendEvent(ctx, event); err != nil {
			if errors.Is(err, domain.ErrStaleSequence) {
				continue
			}
			return domain.Account{}, err
		}
		return account.Apply(event)
	}
	return domain.Account{}, domain.ErrStaleSequence
}
