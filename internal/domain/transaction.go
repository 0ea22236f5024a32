package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindDeposit         TransactionKind = "DEPOSIT"
	TransactionKindWithdrawal      TransactionKind = "WITHDRAWAL"
	TransactionKindTransfer        TransactionKind = "TRANSFER"
	TransactionKindInstantTransfer TransactionKind = "INSTANT_TRANSFER"
)

// Transaction is the immutable audit record of one balance-affecting event.
// ID is assigned by the store on append.
type Transaction struct {
	ID          int64
	Kind        TransactionKind
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Timestamp   time.Time
	Source      *string
	Destination *string
	Description string
}

// Touches reports whether the account is the source or destination.
func (t *Transaction) Touches(number string) bool {
	return (t.Source != nil && *t.Source == number) ||
		(t.Destination != nil && *t.Destination == number)
}

// Validate checks the shape of a record before it is appended.
func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction amount %s: %w", t.Amount, ErrInvalidAmount)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("transaction fee cannot be negative: %s", t.Fee)
	}

	hasSource, hasDest := t.Source != nil, t.Destination != nil
	switch t.Kind {
	case TransactionKindDeposit:
		if hasSource || !hasDest {
			return fmt.Errorf("deposit must reference a destination only")
		}
	case TransactionKindWithdrawal:
		if !hasSource || hasDest {
			return fmt.Errorf("withdrawal must reference a source only")
		}
	case TransactionKindTransfer, TransactionKindInstantTransfer:
		if !hasSource || !hasDest {
			return fmt.Errorf("%s must reference both accounts", t.Kind)
		}
		if *t.Source == *t.Destination {
			return ErrSameAccount
		}
	default:
		return fmt.Errorf("unknown transaction kind %q", string(t.Kind))
	}

	if t.Kind != TransactionKindTransfer && !t.Fee.IsZero() {
		return fmt.Errorf("%s cannot carry a fee", t.Kind)
	}
	return nil
}

func (k TransactionKind) Description() string {
	switch k {
	case TransactionKindDeposit:
		return "Deposit"
	case TransactionKindWithdrawal:
		return "Withdrawal"
	case TransactionKindTransfer:
		return "Transfer between accounts"
	case TransactionKindInstantTransfer:
		return "Instant transfer"
	default:
		return string(k)
	}
}

// NewestFirst orders transactions by timestamp descending, then id descending.
func NewestFirst(a, b Transaction) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
