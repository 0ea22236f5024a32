// Package statement answers read-only questions about account activity.
package statement

import (
	"context"
	"iter"
	"slices"

	"corebanking/internal/domain"
	"corebanking/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultRecentLimit = 10

// Reader is the slice of the ledger store statements need.
type Reader interface {
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	QueryTransactions(ctx context.Context, number string, period *store.Period) ([]domain.Transaction, error)
	QueryRecentBySource(ctx context.Context, number string, limit int) ([]domain.Transaction, error)
	QueryRecentByDestination(ctx context.Context, number string, limit int) ([]domain.Transaction, error)
}

type Service struct {
	reader Reader
	logger *zap.Logger
	tracer trace.Tracer
}

func NewService(reader Reader, logger *zap.Logger) *Service {
	return &Service{
		reader: reader,
		logger: logger.With(zap.String("component", "statement")),
		tracer: otel.Tracer("corebanking/internal/app/statement"),
	}
}

// Statement is an account snapshot with its history for a period.
type Statement struct {
	Account      domain.Account
	Period       *store.Period
	Transactions []domain.Transaction
}

// History yields the account's transactions newest first, as source or
// destination, restricted to period when it is not nil. Nothing is read until
// iteration starts and every iteration reads the store again. An unknown
// account yields domain.ErrAccountNotFound.
func (s *Service) History(ctx context.Context, number string, period *store.Period) iter.Seq2[domain.Transaction, error] {
	return func(yield func(domain.Transaction, error) bool) {
		if _, err := s.reader.GetAccount(ctx, number); err != nil {
			yield(domain.Transaction{}, err)
			return
		}
		txs, err := s.reader.QueryTransactions(ctx, number, period)
		if err != nil {
			s.logger.Error("Failed to query account history", zap.String("account", number), zap.Error(err))
			yield(domain.Transaction{}, err)
			return
		}
		for _, t := range txs {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (s *Service) Statement(ctx context.Context, number string, period *store.Period) (*Statement, error) {
	ctx, span := s.tracer.Start(ctx, "statement.Statement", trace.WithAttributes(attribute.String("ledger.account", number)))
	defer span.End()

	acct, err := s.reader.GetAccount(ctx, number)
	if err != nil {
		return nil, err
	}

	st := &Statement{Account: *acct, Period: period, Transactions: []domain.Transaction{}}
	for t, err := range s.History(ctx, number, period) {
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		st.Transactions = append(st.Transactions, t)
	}
	return st, nil
}

// RecentAcrossAccounts merges the latest activity of several accounts. A
// transfer between two of the given accounts appears once. limit <= 0 means
// DefaultRecentLimit.
func (s *Service) RecentAcrossAccounts(ctx context.Context, numbers []string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	ctx, span := s.tracer.Start(ctx, "statement.RecentAcrossAccounts",
		trace.WithAttributes(attribute.StringSlice("ledger.accounts", numbers), attribute.Int("limit", limit)))
	defer span.End()

	byID := make(map[int64]domain.Transaction)
	for _, number := range numbers {
		outgoing, err := s.reader.QueryRecentBySource(ctx, number, limit)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		incoming, err := s.reader.QueryRecentByDestination(ctx, number, limit)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, t := range slices.Concat(outgoing, incoming) {
			byID[t.ID] = t
		}
	}

	merged := make([]domain.Transaction, 0, len(byID))
	for _, t := range byID {
		merged = append(merged, t)
	}
	slices.SortFunc(merged, domain.NewestFirst)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
