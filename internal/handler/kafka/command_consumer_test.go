package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"corebanking/internal/app/ledger"
	"corebanking/internal/domain"
	"corebanking/internal/lock"
	"corebanking/internal/store/memory"
)

type stubExecutor struct {
	err   error
	calls int
}

func (s *stubExecutor) ExecuteCommand(context.Context, domain.LedgerCommand, []byte) (*domain.Transaction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Transaction{ID: 1}, nil
}

func message(t *testing.T, cmd domain.LedgerCommand) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return kafka.Message{Topic: "ledger_commands", Value: raw}
}

var deposit = domain.LedgerCommand{
	CommandID: "c-1",
	Type:      domain.CommandDeposit,
	Account:   "00000001",
	Amount:    decimal.NewFromInt(5),
}

func TestLedgerCommandHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		execErr   error
		wantErr   bool
		wantLevel string
	}{
		{name: "applied"},
		{name: "replay", execErr: domain.ErrMessageAlreadyProcessed},
		{name: "rejected", execErr: fmt.Errorf("x: %w", domain.ErrInsufficientFunds), wantLevel: "warn"},
		{name: "conflict exhausted", execErr: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, domain.ErrConflict), wantErr: true},
		{name: "lock timeout", execErr: domain.ErrLockTimeout, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			exec := &stubExecutor{err: tt.execErr}
			err := LedgerCommandHandler(exec, zap.New(core))(context.Background(), message(t, deposit))

			assert.Equal(t, 1, exec.calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantLevel == "warn" {
				assert.Equal(t, 1, logs.FilterMessage("Ledger command rejected").Len())
			}
		})
	}
}

func TestLedgerCommandHandler_SkipsMalformed(t *testing.T) {
	exec := &stubExecutor{}
	handler := LedgerCommandHandler(exec, zap.NewNop())

	assert.NoError(t, handler(context.Background(), kafka.Message{Value: []byte("{not json")}))
	assert.NoError(t, handler(context.Background(), message(t, domain.LedgerCommand{Type: domain.CommandDeposit})))
	assert.Zero(t, exec.calls)
}

func TestLedgerCommandHandler_RedeliveryAppliesOnce(t *testing.T) {
	st := memory.New()
	svc := ledger.NewService(st, lock.NewLocal(time.Second), ledger.Config{}, zap.NewNop())
	acct, err := svc.OpenAccount(context.Background(), "holder", domain.AccountKindSavings)
	require.NoError(t, err)

	cmd := deposit
	cmd.Account = acct.Number
	handler := LedgerCommandHandler(svc, zap.NewNop())
	for i := 0; i < 3; i++ {
		require.NoError(t, handler(context.Background(), message(t, cmd)))
	}

	got, err := svc.GetAccount(context.Background(), acct.Number)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))
}
