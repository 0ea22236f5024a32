package inbox_repo

import (
	"context"

	"corebanking/internal/domain"
)

type InboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
}
