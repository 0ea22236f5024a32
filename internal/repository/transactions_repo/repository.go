package transactions_repo

import (
	"context"
	"time"

	"corebanking/internal/domain"
)

type TransactionRepository interface {
	AppendTx(ctx context.Context, querier domain.Querier, t *domain.Transaction) error
	ListByAccountTx(ctx context.Context, querier domain.Querier, number string, start, end *time.Time) ([]domain.Transaction, error)
	RecentBySourceTx(ctx context.Context, querier domain.Querier, number string, limit int) ([]domain.Transaction, error)
	RecentByDestinationTx(ctx context.Context, querier domain.Querier, number string, limit int) ([]domain.Transaction, error)
}
