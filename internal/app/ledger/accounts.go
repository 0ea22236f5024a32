package ledger

import (
	"context"
	"errors"

	"corebanking/internal/domain"
	"corebanking/internal/store"

	"go.uber.org/zap"
)

// OpenAccount creates an active account with a zero balance under a freshly
// generated number.
func (s *Service) OpenAccount(ctx context.Context, holderID string, kind domain.AccountKind) (*domain.Account, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	for range maxNumberAttempts {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			return nil, err
		}

		acct, err := domain.NewAccount(number, holderID, kind, *s.cfg.CheckingOverdraft, s.now())
		if err != nil {
			return nil, err
		}

		err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateAccount(ctx, acct)
		})
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			s.logger.Debug("Account number taken concurrently, drawing another", zap.String("account", number))
			continue
		}
		if err != nil {
			s.logger.Error("Failed to open account", zap.String("holder_id", holderID), zap.Error(err))
			return nil, err
		}

		s.logger.Info("Account opened",
			zap.String("account", acct.Number),
			zap.String("holder_id", holderID),
			zap.String("kind", string(kind)))
		return acct, nil
	}
	return nil, errNumberSpaceExhausted
}

// CloseAccount deactivates a settled account.
func (s *Service) CloseAccount(ctx context.Context, number string) (*domain.Account, error) {
	acct, err := withConflictRetry(ctx, s.cfg, func() (*domain.Account, error) {
		release, err := s.locker.Acquire(ctx, number)
		if err != nil {
			return nil, err
		}
		defer release()

		var closed *domain.Account
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			acct, err := tx.GetAccount(ctx, number)
			if err != nil {
				return err
			}
			if err := acct.Close(s.now()); err != nil {
				return err
			}
			if err := tx.SaveAccount(ctx, acct); err != nil {
				return err
			}
			closed = acct
			return nil
		})
		return closed, err
	})
	if err != nil {
		s.logger.Warn("Failed to close account", zap.String("account", number), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Account closed", zap.String("account", number))
	return acct, nil
}

func (s *Service) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, number)
}

func (s *Service) ListAccounts(ctx context.Context, holderID string) ([]domain.Account, error) {
	return s.store.ListAccountsByHolder(ctx, holderID)
}
