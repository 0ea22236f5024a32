package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits the ledger keeps.
const MoneyScale int32 = 4

var (
	checkingTransferRate = decimal.RequireFromString("0.003")
	savingsTransferRate  = decimal.RequireFromString("0.001")
	savingsFeeFreeLimit  = decimal.NewFromInt(1000)
)

type feeSchedule func(amount decimal.Decimal) decimal.Decimal

var feeSchedules = map[AccountKind]feeSchedule{
	AccountKindChecking: func(amount decimal.Decimal) decimal.Decimal {
		return amount.Mul(checkingTransferRate)
	},
	AccountKindSavings: func(amount decimal.Decimal) decimal.Decimal {
		if amount.LessThanOrEqual(savingsFeeFreeLimit) {
			return decimal.Zero
		}
		return amount.Mul(savingsTransferRate)
	},
}

// ComputeFee returns the fee charged to the source account of an outgoing
// transfer, rounded to MoneyScale. Deposits, withdrawals and instant
// transfers are never charged.
func ComputeFee(kind AccountKind, amount decimal.Decimal) decimal.Decimal {
	schedule, ok := feeSchedules[kind]
	if !ok || !amount.IsPositive() {
		return decimal.Zero
	}
	return schedule(amount).Round(MoneyScale)
}

// ValidateAmount checks that amount is a positive value representable at MoneyScale.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount.String(), MoneyScale)
	}
	return nil
}
