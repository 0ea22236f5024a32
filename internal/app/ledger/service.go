// Package ledger moves funds between accounts. Every mutating operation locks
// the accounts it touches, then applies balance changes, the transaction
// record and its outbox event in one store transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"corebanking/internal/domain"
	"corebanking/internal/lock"
	"corebanking/internal/store"
	"corebanking/internal/util"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "corebanking/internal/app/ledger"

const (
	DefaultMaxAttempts          = 3
	DefaultRetryInitialInterval = 10 * time.Millisecond
)

type Config struct {
	// MaxAttempts bounds how often an operation is re-run after ErrConflict.
	MaxAttempts          int
	RetryInitialInterval time.Duration
	// CheckingOverdraft is granted to new checking accounts. Nil means
	// domain.DefaultCheckingOverdraft; zero disables overdraft.
	CheckingOverdraft *decimal.Decimal
}

type Option func(*Service)

// WithClock replaces time.Now for transaction and account timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNumberGenerator(g NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

type Service struct {
	store   store.Store
	locker  lock.Locker
	numbers NumberGenerator
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewService(st store.Store, locker lock.Locker, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if cfg.CheckingOverdraft == nil {
		limit := domain.DefaultCheckingOverdraft
		cfg.CheckingOverdraft = &limit
	}

	s := &Service{
		store:   st,
		locker:  locker,
		numbers: NewRandomNumberGenerator(st),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "ledger")),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Deposit(ctx context.Context, number string, amount decimal.Decimal) (*domain.Transaction, error) {
	return s.deposit(ctx, number, amount, nil)
}

func (s *Service) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*domain.Transaction, error) {
	return s.withdraw(ctx, number, amount, nil)
}

// Transfer moves amount from source to dest. The source pays the fee of its
// account kind on top of amount; dest receives amount.
func (s *Service) Transfer(ctx context.Context, source, dest string, amount decimal.Decimal) (*domain.Transaction, error) {
	return s.transfer(ctx, domain.TransactionKindTransfer, source, dest, amount, nil)
}

// InstantTransfer is a fee-free Transfer.
func (s *Service) InstantTransfer(ctx context.Context, source, dest string, amount decimal.Decimal) (*domain.Transaction, error) {
	return s.transfer(ctx, domain.TransactionKindInstantTransfer, source, dest, amount, nil)
}

// ExecuteCommand runs a command received from another service. The command id
// is recorded in the inbox inside the same store transaction, so a replay
// returns domain.ErrMessageAlreadyProcessed and leaves balances untouched.
func (s *Service) ExecuteCommand(ctx context.Context, cmd domain.LedgerCommand, raw []byte) (*domain.Transaction, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	inbox := &domain.InboxMessage{
		ID:          cmd.CommandID,
		CommandType: string(cmd.Type),
		Payload:     raw,
		Status:      domain.InboxStatusProcessed,
		ReceivedAt:  now,
		ProcessedAt: &now,
	}

	switch cmd.Type {
	case domain.CommandDeposit:
		return s.deposit(ctx, cmd.Account, cmd.Amount, inbox)
	case domain.CommandWithdraw:
		return s.withdraw(ctx, cmd.Account, cmd.Amount, inbox)
	case domain.CommandTransfer:
		return s.transfer(ctx, domain.TransactionKindTransfer, cmd.Source, cmd.Destination, cmd.Amount, inbox)
	default:
		return s.transfer(ctx, domain.TransactionKindInstantTransfer, cmd.Source, cmd.Destination, cmd.Amount, inbox)
	}
}

func (s *Service) deposit(ctx context.Context, number string, amount decimal.Decimal, inbox *domain.InboxMessage) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return s.execute(ctx, domain.TransactionKindDeposit, []string{number}, inbox,
		func(ctx context.Context, tx store.Tx, now time.Time) (*domain.Transaction, error) {
			acct, err := tx.GetAccount(ctx, number)
			if err != nil {
				return nil, err
			}
			if err := acct.Credit(amount, now); err != nil {
				return nil, err
			}
			if err := tx.SaveAccount(ctx, acct); err != nil {
				return nil, err
			}
			return &domain.Transaction{
				Kind:        domain.TransactionKindDeposit,
				Amount:      amount,
				Fee:         decimal.Zero,
				Timestamp:   now,
				Destination: &number,
				Description: domain.TransactionKindDeposit.Description(),
			}, nil
		})
}

func (s *Service) withdraw(ctx context.Context, number string, amount decimal.Decimal, inbox *domain.InboxMessage) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return s.execute(ctx, domain.TransactionKindWithdrawal, []string{number}, inbox,
		func(ctx context.Context, tx store.Tx, now time.Time) (*domain.Transaction, error) {
			acct, err := tx.GetAccount(ctx, number)
			if err != nil {
				return nil, err
			}
			if err := acct.Debit(amount, now); err != nil {
				return nil, err
			}
			if err := tx.SaveAccount(ctx, acct); err != nil {
				return nil, err
			}
			return &domain.Transaction{
				Kind:        domain.TransactionKindWithdrawal,
				Amount:      amount,
				Fee:         decimal.Zero,
				Timestamp:   now,
				Source:      &number,
				Description: domain.TransactionKindWithdrawal.Description(),
			}, nil
		})
}

func (s *Service) transfer(ctx context.Context, kind domain.TransactionKind, source, dest string, amount decimal.Decimal, inbox *domain.InboxMessage) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if source == dest {
		return nil, fmt.Errorf("account %s: %w", source, domain.ErrSameAccount)
	}

	return s.execute(ctx, kind, []string{source, dest}, inbox,
		func(ctx context.Context, tx store.Tx, now time.Time) (*domain.Transaction, error) {
			// Row locks are taken in account-number order, like the locker's keys.
			accounts := make(map[string]*domain.Account, 2)
			for _, number := range slices.Sorted(slices.Values([]string{source, dest})) {
				acct, err := tx.GetAccount(ctx, number)
				if err != nil {
					return nil, err
				}
				accounts[number] = acct
			}
			src, dst := accounts[source], accounts[dest]
			if err := src.EnsureActive(); err != nil {
				return nil, err
			}
			if err := dst.EnsureActive(); err != nil {
				return nil, err
			}

			fee := decimal.Zero
			if kind == domain.TransactionKindTransfer {
				fee = domain.ComputeFee(src.Kind, amount)
			}

			if err := src.Debit(amount.Add(fee), now); err != nil {
				return nil, err
			}
			if err := dst.Credit(amount, now); err != nil {
				return nil, err
			}
			if err := tx.SaveAccount(ctx, src); err != nil {
				return nil, err
			}
			if err := tx.SaveAccount(ctx, dst); err != nil {
				return nil, err
			}

			return &domain.Transaction{
				Kind:        kind,
				Amount:      amount,
				Fee:         fee,
				Timestamp:   now,
				Source:      &source,
				Destination: &dest,
				Description: kind.Description(),
			}, nil
		})
}

type mutation func(ctx context.Context, tx store.Tx, now time.Time) (*domain.Transaction, error)

// execute locks keys, runs mutate inside a store transaction and appends the
// record it returns together with its outbox event. The whole attempt is
// repeated on ErrConflict.
func (s *Service) execute(ctx context.Context, kind domain.TransactionKind, keys []string, inbox *domain.InboxMessage, mutate mutation) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+string(kind),
		trace.WithAttributes(attribute.StringSlice("ledger.accounts", keys)))
	defer span.End()

	txn, err := withConflictRetry(ctx, s.cfg, func() (*domain.Transaction, error) {
		release, err := s.locker.Acquire(ctx, keys...)
		if err != nil {
			return nil, err
		}
		defer release()

		var recorded *domain.Transaction
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if inbox != nil {
				if err := tx.RecordInbox(ctx, inbox); err != nil {
					return err
				}
			}
			t, err := mutate(ctx, tx, s.now())
			if err != nil {
				return err
			}
			if err := s.record(ctx, tx, t); err != nil {
				return err
			}
			recorded = t
			return nil
		})
		return recorded, err
	})
	if err != nil {
		s.logFailure(kind, keys, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int64("ledger.transaction_id", txn.ID))
	s.logger.Info("Ledger transaction committed",
		zap.Int64("tx_id", txn.ID),
		zap.String("kind", string(txn.Kind)),
		zap.String("amount", txn.Amount.String()),
		zap.String("fee", txn.Fee.String()),
		zap.Strings("accounts", keys))
	return txn, nil
}

// record appends t and enqueues its TransactionRecorded event.
func (s *Service) record(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	if err := tx.AppendTransaction(ctx, t); err != nil {
		return err
	}

	payload, err := json.Marshal(domain.NewTransactionRecordedEvent(t))
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	key := ""
	if t.Source != nil {
		key = *t.Source
	} else if t.Destination != nil {
		key = *t.Destination
	}

	return tx.EnqueueOutbox(ctx, &domain.OutboxMessage{
		ID:            util.NewMessageID(),
		AggregateID:   strconv.FormatInt(t.ID, 10),
		AggregateType: domain.AggregateTypeTransaction,
		MessageType:   domain.MessageTypeTransactionRecorded,
		Key:           key,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     t.Timestamp,
	})
}

func (s *Service) logFailure(kind domain.TransactionKind, keys []string, err error) {
	fields := []zap.Field{zap.String("kind", string(kind)), zap.Strings("accounts", keys), zap.Error(err)}
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrConflict):
		s.logger.Error("Ledger operation failed", fields...)
	case errors.Is(err, domain.ErrMessageAlreadyProcessed):
		s.logger.Info("Ledger command already processed", fields...)
	default:
		s.logger.Warn("Ledger operation rejected", fields...)
	}
}

// withConflictRetry runs op until it succeeds, fails with anything other than
// ErrConflict, or cfg.MaxAttempts is used up. Exhaustion is reported as
// ErrStoreUnavailable wrapping the last conflict.
func withConflictRetry[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInitialInterval

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(cfg.MaxAttempts)))
	if err == nil {
		return res, nil
	}

	// The last attempt comes back still wrapped as permanent.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	switch {
	case errors.Is(err, domain.ErrConflict):
		return res, fmt.Errorf("%w: gave up after %d attempts: %w", domain.ErrStoreUnavailable, cfg.MaxAttempts, err)
	case domain.IsRetryable(err):
		return res, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return res, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return res, err
}
