package transactions_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"corebanking/internal/domain"
)

const transactionColumns = `id, kind, amount, fee, occurred_at, source_number, destination_number, description`

type transactionRepository struct{}

func NewTransactionRepository() *transactionRepository {
	return &transactionRepository{}
}

// AppendTx inserts t and sets t.ID from the table sequence.
func (r *transactionRepository) AppendTx(ctx context.Context, querier domain.Querier, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (kind, amount, fee, occurred_at, source_number, destination_number, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := querier.QueryRowContext(ctx, query,
		string(t.Kind),
		t.Amount,
		t.Fee,
		t.Timestamp,
		nullString(t.Source),
		nullString(t.Destination),
		t.Description,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to append %s transaction: %w", t.Kind, err)
	}
	return nil
}

func (r *transactionRepository) ListByAccountTx(ctx context.Context, querier domain.Querier, number string, start, end *time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (source_number = $1 OR destination_number = $1)
		  AND ($2::TIMESTAMPTZ IS NULL OR occurred_at >= $2)
		  AND ($3::TIMESTAMPTZ IS NULL OR occurred_at < $3)
		ORDER BY occurred_at DESC, id DESC
	`
	return r.query(ctx, querier, query, number, nullTime(start), nullTime(end))
}

func (r *transactionRepository) RecentBySourceTx(ctx context.Context, querier domain.Querier, number string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_number = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`
	return r.query(ctx, querier, query, number, limit)
}

func (r *transactionRepository) RecentByDestinationTx(ctx context.Context, querier domain.Querier, number string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE destination_number = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`
	return r.query(ctx, querier, query, number, limit)
}

func (r *transactionRepository) query(ctx context.Context, querier domain.Querier, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var (
			t           domain.Transaction
			kind        string
			source      sql.NullString
			destination sql.NullString
		)
		err := rows.Scan(
			&t.ID,
			&kind,
			&t.Amount,
			&t.Fee,
			&t.Timestamp,
			&source,
			&destination,
			&t.Description,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Kind = domain.TransactionKind(kind)
		if source.Valid {
			t.Source = &source.String
		}
		if destination.Valid {
			t.Destination = &destination.String
		}
		transactions = append(transactions, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
