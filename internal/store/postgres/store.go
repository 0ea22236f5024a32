// Package postgres implements the ledger store on PostgreSQL using the
// repositories under internal/repository. Every mutating operation runs in
// one sql.Tx; accounts are read with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"corebanking/internal/domain"
	"corebanking/internal/repository/accounts_repo"
	"corebanking/internal/repository/inbox_repo"
	"corebanking/internal/repository/outbox_repo"
	"corebanking/internal/repository/transactions_repo"
	"corebanking/internal/store"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Store struct {
	db              *sql.DB
	accountRepo     accounts_repo.AccountRepository
	transactionRepo transactions_repo.TransactionRepository
	outboxRepo      outbox_repo.OutboxRepository
	inboxRepo       inbox_repo.InboxRepository
	logger          *zap.Logger
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:              db,
		accountRepo:     accounts_repo.NewAccountRepository(),
		transactionRepo: transactions_repo.NewTransactionRepository(),
		outboxRepo:      outbox_repo.NewOutboxRepository(),
		inboxRepo:       inbox_repo.NewInboxRepository(),
		logger:          logger,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin ledger transaction", zap.Error(err))
		return fmt.Errorf("%w: begin transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic during ledger transaction, rolling back", zap.Any("panic", r))
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, &pgTx{s: s, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back ledger transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		s.logger.Error("Failed to commit ledger transaction", zap.Error(err))
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	acct, err := s.accountRepo.GetAccountTx(ctx, s.db, number, false)
	return acct, classify(err)
}

func (s *Store) AccountExists(ctx context.Context, number string) (bool, error) {
	exists, err := s.accountRepo.ExistsTx(ctx, s.db, number)
	return exists, classify(err)
}

func (s *Store) ListAccountsByHolder(ctx context.Context, holderID string) ([]domain.Account, error) {
	accounts, err := s.accountRepo.ListByHolderTx(ctx, s.db, holderID)
	return accounts, classify(err)
}

func (s *Store) QueryTransactions(ctx context.Context, number string, period *store.Period) ([]domain.Transaction, error) {
	if period == nil {
		txs, err := s.transactionRepo.ListByAccountTx(ctx, s.db, number, nil, nil)
		return txs, classify(err)
	}
	txs, err := s.transactionRepo.ListByAccountTx(ctx, s.db, number, &period.Start, &period.End)
	return txs, classify(err)
}

func (s *Store) QueryRecentBySource(ctx context.Context, number string, limit int) ([]domain.Transaction, error) {
	txs, err := s.transactionRepo.RecentBySourceTx(ctx, s.db, number, limit)
	return txs, classify(err)
}

func (s *Store) QueryRecentByDestination(ctx context.Context, number string, limit int) ([]domain.Transaction, error) {
	txs, err := s.transactionRepo.RecentByDestinationTx(ctx, s.db, number, limit)
	return txs, classify(err)
}

// GetPendingMessages, MarkMessagesAsSent and MarkMessagesAsFailed let the
// outbox processor work against the same database.
func (s *Store) GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return s.outboxRepo.GetPendingMessages(ctx, s.db, limit)
}

func (s *Store) MarkMessagesAsSent(ctx context.Context, ids []string) error {
	return s.outboxRepo.MarkMessagesAsSent(ctx, s.db, ids)
}

func (s *Store) MarkMessagesAsFailed(ctx context.Context, ids []string) error {
	return s.outboxRepo.MarkMessagesAsFailed(ctx, s.db, ids)
}

type pgTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	acct, err := t.s.accountRepo.GetAccountTx(ctx, t.tx, number, true)
	return acct, classify(err)
}

func (t *pgTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	return classify(t.s.accountRepo.CreateAccountTx(ctx, t.tx, account))
}

func (t *pgTx) SaveAccount(ctx context.Context, account *domain.Account) error {
	return classify(t.s.accountRepo.UpdateAccountTx(ctx, t.tx, account))
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	return classify(t.s.transactionRepo.AppendTx(ctx, t.tx, txn))
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg *domain.OutboxMessage) error {
	return classify(t.s.outboxRepo.CreateMessageTx(ctx, t.tx, msg))
}

func (t *pgTx) RecordInbox(ctx context.Context, msg *domain.InboxMessage) error {
	return classify(t.s.inboxRepo.CreateMessageTx(ctx, t.tx, msg))
}

// domainErrors pass through classify untouched.
var domainErrors = []error{
	domain.ErrAccountNotFound,
	domain.ErrAccountAlreadyExists,
	domain.ErrConflict,
	domain.ErrMessageAlreadyProcessed,
}

// classify maps driver failures onto the ledger error taxonomy: serialization
// failures and deadlocks become ErrConflict, everything else that is not
// already a domain error becomes ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
