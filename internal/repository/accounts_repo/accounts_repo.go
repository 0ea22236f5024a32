package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"corebanking/internal/domain"

	"github.com/lib/pq"
)

const accountColumns = `number, agency, holder_id, kind, balance, overdraft_limit, active, version, created_at, updated_at`

type accountRepository struct{}

func NewAccountRepository() *accountRepository {
	return &accountRepository{}
}

func (r *accountRepository) CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	account.Version = 1
	_, err := querier.ExecContext(ctx, query,
		account.Number,
		account.Agency,
		account.HolderID,
		string(account.Kind),
		account.Balance,
		account.OverdraftLimit,
		account.Active,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.Number, err)
	}
	return nil
}

func (r *accountRepository) GetAccountTx(ctx context.Context, querier domain.Querier, number string, forUpdate bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	account, err := scanAccount(querier.QueryRowContext(ctx, query, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", number, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", number, err)
	}
	return account, nil
}

// UpdateAccountTx writes balance and status only if the stored version still
// matches account.Version.
func (r *accountRepository) UpdateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, active = $2, updated_at = $3, version = version + 1
		WHERE number = $4 AND version = $5
	`
	res, err := querier.ExecContext(ctx, query,
		account.Balance,
		account.Active,
		account.UpdatedAt,
		account.Number,
		account.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", account.Number, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s at version %d: %w", account.Number, account.Version, domain.ErrConflict)
	}
	account.Version++
	return nil
}

func (r *accountRepository) ExistsTx(ctx context.Context, querier domain.Querier, number string) (bool, error) {
	var exists bool
	err := querier.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account %s: %w", number, err)
	}
	return exists, nil
}

func (r *accountRepository) ListByHolderTx(ctx context.Context, querier domain.Querier, holderID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE holder_id = $1 ORDER BY created_at ASC`
	rows, err := querier.QueryContext(ctx, query, holderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for holder %s: %w", holderID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var kind string
	err := row.Scan(
		&account.Number,
		&account.Agency,
		&account.HolderID,
		&kind,
		&account.Balance,
		&account.OverdraftLimit,
		&account.Active,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Kind = domain.AccountKind(kind)
	return account, nil
}
