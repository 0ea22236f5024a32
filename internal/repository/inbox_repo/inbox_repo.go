package inbox_repo

import (
	"context"
	"database/sql"
	"fmt"

	"corebanking/internal/domain"
)

type inboxRepository struct{}

func NewInboxRepository() *inboxRepository {
	return &inboxRepository{}
}

// CreateMessageTx inserts the message, or returns
// domain.ErrMessageAlreadyProcessed if its id has been seen before.
func (r *inboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, command_type, payload, status, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	var processedAt sql.NullTime
	if msg.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *msg.ProcessedAt, Valid: true}
	}

	res, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.CommandType,
		msg.Payload,
		msg.Status,
		msg.ReceivedAt,
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox message: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message %s: %w", msg.ID, err)
	}
	if rowsAffected == 0 {
		return domain.ErrMessageAlreadyProcessed
	}
	return nil
}
