package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name   string
		kind   AccountKind
		amount string
		want   string
	}{
		{"checking flat rate", AccountKindChecking, "1000", "3"},
		{"checking small amount rounds to scale", AccountKindChecking, "0.01", "0"},
		{"checking sub-cent kept at scale", AccountKindChecking, "12.5", "0.0375"},
		{"savings at fee-free limit", AccountKindSavings, "1000", "0"},
		{"savings just above limit", AccountKindSavings, "1001", "1.001"},
		{"savings large amount", AccountKindSavings, "25000", "25"},
		{"unknown kind", AccountKind("BROKERAGE"), "1000", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFee(tt.kind, dec(tt.amount))
			assert.Truef(t, got.Equal(dec(tt.want)), "ComputeFee(%s, %s) = %s, want %s", tt.kind, tt.amount, got, tt.want)
		})
	}
}

func TestComputeFee_IsPure(t *testing.T) {
	first := ComputeFee(AccountKindChecking, dec("777.77"))
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(ComputeFee(AccountKindChecking, dec("777.77"))))
	}
}

func TestValidateAmount(t *testing.T) {
	require.NoError(t, ValidateAmount(dec("0.0001")))
	require.NoError(t, ValidateAmount(dec("1000")))

	for _, bad := range []string{"0", "-1", "-0.01", "1.00001"} {
		err := ValidateAmount(dec(bad))
		assert.ErrorIsf(t, err, ErrInvalidAmount, "amount %s", bad)
	}
}
