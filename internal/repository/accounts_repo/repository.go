package accounts_repo

import (
	"context"

	"corebanking/internal/domain"
)

type AccountRepository interface {
	CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	GetAccountTx(ctx context.Context, querier domain.Querier, number string, forUpdate bool) (*domain.Account, error)
	UpdateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	ExistsTx(ctx context.Context, querier domain.Querier, number string) (bool, error)
	ListByHolderTx(ctx context.Context, querier domain.Querier, holderID string) ([]domain.Account, error)
}
