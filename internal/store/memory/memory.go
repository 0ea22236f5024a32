// Package memory is an in-process ledger store. Writes made through a Tx are
// staged and applied at commit after a version check on every touched
// account, so concurrent units of work behave like optimistic SQL
// transactions.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"corebanking/internal/domain"
	"corebanking/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[string]domain.Account
	transactions []domain.Transaction
	outbox       []domain.OutboxMessage
	inbox        map[string]domain.InboxMessage
	nextTxID     atomic.Int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		inbox:    make(map[string]domain.InboxMessage),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	tx := &memTx{
		s:        s,
		staged:   make(map[string]*domain.Account),
		expected: make(map[string]int64),
		created:  make(map[string]bool),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) GetAccount(_ context.Context, number string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[number]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", number, domain.ErrAccountNotFound)
	}
	return &acct, nil
}

func (s *Store) AccountExists(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[number]
	return ok, nil
}

func (s *Store) ListAccountsByHolder(_ context.Context, holderID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Account
	for _, acct := range s.accounts {
		if acct.HolderID == holderID {
			out = append(out, acct)
		}
	}
	slices.SortFunc(out, func(a, b domain.Account) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) QueryTransactions(_ context.Context, number string, period *store.Period) ([]domain.Transaction, error) {
	return s.collect(func(t *domain.Transaction) bool {
		return t.Touches(number) && period.Contains(t.Timestamp)
	}, 0), nil
}

func (s *Store) QueryRecentBySource(_ context.Context, number string, limit int) ([]domain.Transaction, error) {
	return s.collect(func(t *domain.Transaction) bool {
		return t.Source != nil && *t.Source == number
	}, limit), nil
}

func (s *Store) QueryRecentByDestination(_ context.Context, number string, limit int) ([]domain.Transaction, error) {
	return s.collect(func(t *domain.Transaction) bool {
		return t.Destination != nil && *t.Destination == number
	}, limit), nil
}

// collect returns matching transactions newest first. limit <= 0 means all.
func (s *Store) collect(match func(*domain.Transaction) bool, limit int) []domain.Transaction {
	s.mu.RLock()
	var out []domain.Transaction
	for i := range s.transactions {
		if match(&s.transactions[i]) {
			out = append(out, s.transactions[i])
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, domain.NewestFirst)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetPendingMessages(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OutboxMessage
	for _, msg := range s.outbox {
		if msg.Status != domain.OutboxStatusPending {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkMessagesAsSent(_ context.Context, ids []string) error {
	now := time.Now()
	return s.markOutbox(ids, domain.OutboxStatusSent, &now)
}

func (s *Store) MarkMessagesAsFailed(_ context.Context, ids []string) error {
	return s.markOutbox(ids, domain.OutboxStatusFailed, nil)
}

func (s *Store) markOutbox(ids []string, status domain.OutboxMessageStatus, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for i := range s.outbox {
		if slices.Contains(ids, s.outbox[i].ID) {
			s.outbox[i].Status = status
			s.outbox[i].SentAt = sentAt
			updated++
		}
	}
	if updated != len(ids) {
		return fmt.Errorf("not all outbox messages were marked as %s; expected %d, got %d", status, len(ids), updated)
	}
	return nil
}

type memTx struct {
	s            *Store
	staged       map[string]*domain.Account
	expected     map[string]int64
	created      map[string]bool
	transactions []domain.Transaction
	outbox       []domain.OutboxMessage
	inbox        []domain.InboxMessage
}

func (tx *memTx) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	if acct, ok := tx.staged[number]; ok {
		cp := *acct
		return &cp, nil
	}
	return tx.s.GetAccount(ctx, number)
}

func (tx *memTx) CreateAccount(_ context.Context, account *domain.Account) error {
	if _, ok := tx.staged[account.Number]; ok {
		return domain.ErrAccountAlreadyExists
	}
	tx.s.mu.RLock()
	_, exists := tx.s.accounts[account.Number]
	tx.s.mu.RUnlock()
	if exists {
		return domain.ErrAccountAlreadyExists
	}
	account.Version = 1
	cp := *account
	tx.staged[account.Number] = &cp
	tx.created[account.Number] = true
	return nil
}

func (tx *memTx) SaveAccount(_ context.Context, account *domain.Account) error {
	if staged, ok := tx.staged[account.Number]; ok {
		if staged.Version != account.Version {
			return fmt.Errorf("account %s: %w", account.Number, domain.ErrConflict)
		}
	} else {
		tx.s.mu.RLock()
		current, exists := tx.s.accounts[account.Number]
		tx.s.mu.RUnlock()
		if !exists {
			return fmt.Errorf("account %s: %w", account.Number, domain.ErrAccountNotFound)
		}
		if current.Version != account.Version {
			return fmt.Errorf("account %s: %w", account.Number, domain.ErrConflict)
		}
		tx.expected[account.Number] = account.Version
	}

	account.Version++
	cp := *account
	tx.staged[account.Number] = &cp
	return nil
}

func (tx *memTx) AppendTransaction(_ context.Context, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.ID = tx.s.nextTxID.Add(1)
	tx.transactions = append(tx.transactions, *t)
	return nil
}

func (tx *memTx) EnqueueOutbox(_ context.Context, msg *domain.OutboxMessage) error {
	tx.outbox = append(tx.outbox, *msg)
	return nil
}

func (tx *memTx) RecordInbox(_ context.Context, msg *domain.InboxMessage) error {
	tx.s.mu.RLock()
	_, seen := tx.s.inbox[msg.ID]
	tx.s.mu.RUnlock()
	if seen || slices.ContainsFunc(tx.inbox, func(m domain.InboxMessage) bool { return m.ID == msg.ID }) {
		return domain.ErrMessageAlreadyProcessed
	}
	tx.inbox = append(tx.inbox, *msg)
	return nil
}

func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for number, version := range tx.expected {
		if current, ok := s.accounts[number]; !ok || current.Version != version {
			return fmt.Errorf("account %s: %w", number, domain.ErrConflict)
		}
	}
	for number := range tx.created {
		if _, ok := s.accounts[number]; ok {
			return domain.ErrAccountAlreadyExists
		}
	}
	for _, msg := range tx.inbox {
		if _, ok := s.inbox[msg.ID]; ok {
			return domain.ErrMessageAlreadyProcessed
		}
	}

	for number, acct := range tx.staged {
		s.accounts[number] = *acct
	}
	s.transactions = append(s.transactions, tx.transactions...)
	s.outbox = append(s.outbox, tx.outbox...)
	for _, msg := range tx.inbox {
		s.inbox[msg.ID] = msg
	}
	return nil
}
