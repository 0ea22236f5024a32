package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountKindChecking AccountKind = "CHECKING"
	AccountKindSavings  AccountKind = "SAVINGS"
)

// DefaultAgency is the branch code every account is opened under.
const DefaultAgency = "0001"

// DefaultCheckingOverdraft is the overdraft limit granted to new checking accounts.
var DefaultCheckingOverdraft = decimal.RequireFromString("500.00")

func ParseAccountKind(s string) (AccountKind, error) {
	kind := AccountKind(strings.ToUpper(strings.TrimSpace(s)))
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}

func (k AccountKind) Validate() error {
	switch k {
	case AccountKindChecking, AccountKindSavings:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAccountKind, string(k))
	}
}

// Account is a single holder balance. Balance is authoritative; Version is
// bumped on every successful save and used for optimistic concurrency.
type Account struct {
	Number         string
	Agency         string
	HolderID       string
	Kind           AccountKind
	Balance        decimal.Decimal
	OverdraftLimit decimal.Decimal
	Active         bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount returns an active account with a zero balance and the overdraft
// limit of its kind. Savings accounts never get an overdraft.
func NewAccount(number, holderID string, kind AccountKind, checkingOverdraft decimal.Decimal, now time.Time) (*Account, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if checkingOverdraft.IsNegative() {
		return nil, fmt.Errorf("overdraft limit cannot be negative: %s", checkingOverdraft)
	}

	limit := decimal.Zero
	if kind == AccountKindChecking {
		limit = checkingOverdraft
	}

	return &Account{
		Number:         number,
		Agency:         DefaultAgency,
		HolderID:       holderID,
		Kind:           kind,
		Balance:        decimal.Zero,
		OverdraftLimit: limit,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Available is the amount the account can still pay out: balance plus overdraft.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Add(a.OverdraftLimit)
}

// EnsureActive returns ErrAccountInactive for closed accounts.
func (a *Account) EnsureActive() error {
	if !a.Active {
		return fmt.Errorf("account %s: %w", a.Number, ErrAccountInactive)
	}
	return nil
}

// Debit removes total from the balance if the overdraft allows it.
func (a *Account) Debit(total decimal.Decimal, now time.Time) error {
	if err := a.EnsureActive(); err != nil {
		return err
	}
	available := a.Available()
	if available.LessThan(total) {
		return &InsufficientFundsError{Account: a.Number, Available: available, Required: total}
	}
	a.Balance = a.Balance.Sub(total)
	a.UpdatedAt = now
	return nil
}

func (a *Account) Credit(amount decimal.Decimal, now time.Time) error {
	if err := a.EnsureActive(); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = now
	return nil
}

// Close deactivates the account. Only settled accounts can be closed.
func (a *Account) Close(now time.Time) error {
	if err := a.EnsureActive(); err != nil {
		return err
	}
	if !a.Balance.IsZero() {
		return fmt.Errorf("account %s has balance %s: %w", a.Number, a.Balance.StringFixed(MoneyScale), ErrNonZeroBalance)
	}
	a.Active = false
	a.UpdatedAt = now
	return nil
}
