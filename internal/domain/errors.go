package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrSameAccount          = errors.New("source and destination accounts are the same")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrConflict             = errors.New("concurrent modification detected")
	ErrStoreUnavailable     = errors.New("ledger store unavailable")
	ErrLockTimeout          = errors.New("timed out acquiring account lock")
	ErrNonZeroBalance       = errors.New("account balance is not zero")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInvalidAccountKind   = errors.New("invalid account kind")

	ErrMessageAlreadyProcessed = errors.New("message already processed")
)

// InsufficientFundsError reports how much the account could pay against what
// the operation needed. It matches ErrInsufficientFunds with errors.Is.
type InsufficientFundsError struct {
	Account   string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: available %s, required %s",
		e.Account, e.Available.StringFixed(MoneyScale), e.Required.StringFixed(MoneyScale))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// IsRetryable reports whether the whole operation may be attempted again
// without changing its input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrStoreUnavailable)
}
