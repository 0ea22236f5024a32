package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccount_LimitsPerKind(t *testing.T) {
	now := time.Now()

	checking, err := NewAccount("00000001", "holder-1", AccountKindChecking, DefaultCheckingOverdraft, now)
	require.NoError(t, err)
	assert.True(t, checking.OverdraftLimit.Equal(dec("500")))
	assert.True(t, checking.Balance.IsZero())
	assert.True(t, checking.Active)
	assert.Equal(t, DefaultAgency, checking.Agency)

	savings, err := NewAccount("00000002", "holder-1", AccountKindSavings, DefaultCheckingOverdraft, now)
	require.NoError(t, err)
	assert.True(t, savings.OverdraftLimit.IsZero())

	_, err = NewAccount("00000003", "holder-1", AccountKind("GOLD"), DefaultCheckingOverdraft, now)
	assert.ErrorIs(t, err, ErrInvalidAccountKind)
}

func TestAccount_DebitRespectsOverdraft(t *testing.T) {
	now := time.Now()
	acct, err := NewAccount("00000001", "h", AccountKindChecking, dec("500"), now)
	require.NoError(t, err)
	require.NoError(t, acct.Credit(dec("200"), now))

	require.NoError(t, acct.Debit(dec("650"), now))
	assert.True(t, acct.Balance.Equal(dec("-450")))

	err = acct.Debit(dec("51"), now)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var insufficient *InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Equal(dec("50")))
	assert.True(t, insufficient.Required.Equal(dec("51")))
	assert.True(t, acct.Balance.Equal(dec("-450")), "failed debit must not change the balance")
}

func TestAccount_InactiveRejectsMutations(t *testing.T) {
	now := time.Now()
	acct, err := NewAccount("00000001", "h", AccountKindSavings, dec("500"), now)
	require.NoError(t, err)
	require.NoError(t, acct.Close(now))

	assert.ErrorIs(t, acct.Credit(dec("1"), now), ErrAccountInactive)
	assert.ErrorIs(t, acct.Debit(dec("1"), now), ErrAccountInactive)
	assert.ErrorIs(t, acct.Close(now), ErrAccountInactive)
}

func TestAccount_CloseRequiresZeroBalance(t *testing.T) {
	now := time.Now()
	acct, err := NewAccount("00000001", "h", AccountKindSavings, dec("0"), now)
	require.NoError(t, err)
	require.NoError(t, acct.Credit(dec("10"), now))

	assert.ErrorIs(t, acct.Close(now), ErrNonZeroBalance)
	assert.True(t, acct.Active)
}

func TestParseAccountKind(t *testing.T) {
	kind, err := ParseAccountKind(" checking ")
	require.NoError(t, err)
	assert.Equal(t, AccountKindChecking, kind)

	_, err = ParseAccountKind("current")
	assert.ErrorIs(t, err, ErrInvalidAccountKind)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrConflict))
	assert.True(t, IsRetryable(errors.Join(ErrStoreUnavailable, ErrConflict)))
	assert.True(t, IsRetryable(ErrLockTimeout))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
	assert.False(t, IsRetryable(ErrInvalidAmount))
}
