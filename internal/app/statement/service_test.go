package statement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"corebanking/internal/app/ledger"
	"corebanking/internal/domain"
	"corebanking/internal/lock"
	"corebanking/internal/store"
	"corebanking/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type steppingClock struct{ t time.Time }

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

type sequentialNumbers struct{ n int }

func (g *sequentialNumbers) Next(context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("%08d", g.n), nil
}

type fixture struct {
	ledger *ledger.Service
	svc    *Service
	store  *memory.Store
	start  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &steppingClock{t: start}
	st := memory.New()
	return &fixture{
		ledger: ledger.NewService(st, lock.NewLocal(time.Second), ledger.Config{}, zap.NewNop(),
			ledger.WithClock(clock.now), ledger.WithNumberGenerator(&sequentialNumbers{})),
		svc:   NewService(st, zap.NewNop()),
		store: st,
		start: start,
	}
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	acct, err := f.ledger.OpenAccount(context.Background(), "holder", domain.AccountKindChecking)
	require.NoError(t, err)
	return acct.Number
}

func collect(t *testing.T, seq func(func(domain.Transaction, error) bool)) []domain.Transaction {
	t.Helper()
	var out []domain.Transaction
	for txn, err := range seq {
		require.NoError(t, err)
		out = append(out, txn)
	}
	return out
}

func ids(txs []domain.Transaction) []int64 {
	out := make([]int64, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func TestHistory_NewestFirstBothDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.open(t), f.open(t)

	d, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(100))
	require.NoError(t, err)
	tr, err := f.ledger.Transfer(ctx, a, b, decimal.NewFromInt(10))
	require.NoError(t, err)
	in, err := f.ledger.InstantTransfer(ctx, b, a, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = f.ledger.Deposit(ctx, b, decimal.NewFromInt(1))
	require.NoError(t, err)

	history := collect(t, f.svc.History(ctx, a, nil))
	assert.Equal(t, []int64{in.ID, tr.ID, d.ID}, ids(history))
}

func TestHistory_IsLazyAndRestartable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.open(t)

	seq := f.svc.History(ctx, a, nil)
	_, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(1))
	require.NoError(t, err)

	first := collect(t, seq)
	second := collect(t, seq)
	assert.Len(t, first, 1, "store is read when iteration starts")
	assert.Equal(t, first, second)

	_, err = f.ledger.Deposit(ctx, a, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Len(t, collect(t, seq), 2)
}

func TestHistory_EarlyBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.open(t)
	for i := 0; i < 3; i++ {
		_, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(1))
		require.NoError(t, err)
	}

	n := 0
	for _, err := range f.svc.History(ctx, a, nil) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestHistory_PeriodIsHalfOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.open(t)

	var txs []*domain.Transaction
	for i := 0; i < 4; i++ {
		txn, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(1))
		require.NoError(t, err)
		txs = append(txs, txn)
	}

	period := &store.Period{Start: txs[1].Timestamp, End: txs[3].Timestamp}
	history := collect(t, f.svc.History(ctx, a, period))
	assert.Equal(t, []int64{txs[2].ID, txs[1].ID}, ids(history))
}

func TestHistory_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	var errs []error
	for _, err := range f.svc.History(context.Background(), "00000404", nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrAccountNotFound)

	_, err := f.svc.Statement(context.Background(), "00000404", nil)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.open(t)

	st, err := f.svc.Statement(ctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, a, st.Account.Number)
	assert.NotNil(t, st.Transactions)
	assert.Empty(t, st.Transactions)

	_, err = f.ledger.Deposit(ctx, a, decimal.NewFromInt(7))
	require.NoError(t, err)
	st, err = f.svc.Statement(ctx, a, nil)
	require.NoError(t, err)
	assert.Len(t, st.Transactions, 1)
	assert.True(t, st.Account.Balance.Equal(decimal.NewFromInt(7)))
}

func TestRecentAcrossAccounts_DeduplicatesOwnTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, other := f.open(t), f.open(t), f.open(t)

	_, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(100))
	require.NoError(t, err)
	own, err := f.ledger.Transfer(ctx, a, b, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.ledger.Deposit(ctx, other, decimal.NewFromInt(100))
	require.NoError(t, err)
	ext, err := f.ledger.InstantTransfer(ctx, other, b, decimal.NewFromInt(3))
	require.NoError(t, err)

	recent, err := f.svc.RecentAcrossAccounts(ctx, []string{a, b}, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ext.ID, recent[0].ID)
	assert.Equal(t, own.ID, recent[1].ID)

	seen := map[int64]int{}
	for _, txn := range recent {
		seen[txn.ID]++
	}
	assert.Equal(t, 1, seen[own.ID])
}

func TestRecentAcrossAccounts_Limit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.open(t), f.open(t)

	var last *domain.Transaction
	for i := 0; i < 15; i++ {
		txn, err := f.ledger.Deposit(ctx, a, decimal.NewFromInt(1))
		require.NoError(t, err)
		_, err = f.ledger.Deposit(ctx, b, decimal.NewFromInt(1))
		require.NoError(t, err)
		last = txn
	}

	recent, err := f.svc.RecentAcrossAccounts(ctx, []string{a, b}, 0)
	require.NoError(t, err)
	assert.Len(t, recent, DefaultRecentLimit)

	recent, err = f.svc.RecentAcrossAccounts(ctx, []string{a}, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, last.ID, recent[0].ID)

	for i := 1; i < len(recent); i++ {
		assert.LessOrEqual(t, domain.NewestFirst(recent[i-1], recent[i]), 0)
	}
}

func TestRecentAcrossAccounts_SameTimestampOrdersByID(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	n := "00000001"
	reader := stubReader{
		bySource: []domain.Transaction{{ID: 3, Timestamp: ts, Source: &n}},
		byDest:   []domain.Transaction{{ID: 9, Timestamp: ts, Destination: &n}, {ID: 3, Timestamp: ts, Source: &n}},
	}

	recent, err := NewService(reader, zap.NewNop()).RecentAcrossAccounts(context.Background(), []string{n}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 3}, ids(recent))
}

func TestRecentAcrossAccounts_StoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewService(stubReader{err: boom}, zap.NewNop()).RecentAcrossAccounts(context.Background(), []string{"1"}, 0)
	assert.ErrorIs(t, err, boom)
}

type stubReader struct {
	bySource []domain.Transaction
	byDest   []domain.Transaction
	err      error
}

func (r stubReader) GetAccount(_ context.Context, number string) (*domain.Account, error) {
	return &domain.Account{Number: number}, r.err
}

func (r stubReader) QueryTransactions(context.Context, string, *store.Period) ([]domain.Transaction, error) {
	return nil, r.err
}

func (r stubReader) QueryRecentBySource(context.Context, string, int) ([]domain.Transaction, error) {
	return r.bySource, r.err
}

func (r stubReader) QueryRecentByDestination(context.Context, string, int) ([]domain.Transaction, error) {
	return r.byDest, r.err
}
