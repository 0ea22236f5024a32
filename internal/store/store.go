// Package store defines the persistence contract the ledger core depends on.
// Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"time"

	"corebanking/internal/domain"
)

// Period is a half-open time range [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p *Period) Contains(ts time.Time) bool {
	if p == nil {
		return true
	}
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// Tx is the unit of work a mutating ledger operation runs in. Nothing written
// through a Tx is visible to other callers until WithinTx returns nil.
type Tx interface {
	// GetAccount returns a copy of the account. SQL stores lock the row.
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
	// SaveAccount persists the account if its stored version still equals
	// account.Version, then increments account.Version. Otherwise it returns
	// domain.ErrConflict.
	SaveAccount(ctx context.Context, account *domain.Account) error
	// AppendTransaction validates and stores t, assigning t.ID.
	AppendTransaction(ctx context.Context, t *domain.Transaction) error
	EnqueueOutbox(ctx context.Context, msg *domain.OutboxMessage) error
	// RecordInbox returns domain.ErrMessageAlreadyProcessed for a known id.
	RecordInbox(ctx context.Context, msg *domain.InboxMessage) error
}

type Store interface {
	// WithinTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	AccountExists(ctx context.Context, number string) (bool, error)
	ListAccountsByHolder(ctx context.Context, holderID string) ([]domain.Account, error)

	// QueryTransactions returns every transaction where the account is source
	// or destination, newest first, optionally restricted to period.
	QueryTransactions(ctx context.Context, number string, period *Period) ([]domain.Transaction, error)
	QueryRecentBySource(ctx context.Context, number string, limit int) ([]domain.Transaction, error)
	QueryRecentByDestination(ctx context.Context, number string, limit int) ([]domain.Transaction, error)
}
