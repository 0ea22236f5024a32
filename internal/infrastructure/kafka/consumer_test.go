package kafka_infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sliceReader hands out msgs in order and then blocks until the fetch
// context ends, like a reader on an idle topic.
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	next      int
	committed []int64
	onCommit  func(n int)
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.msgs) {
		m := r.msgs[r.next]
		r.next++
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	n := len(r.committed)
	r.mu.Unlock()
	if r.onCommit != nil {
		r.onCommit(n)
	}
	return nil
}

func (r *sliceReader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "ledger_commands", GroupID: "test"}
}

func (r *sliceReader) Close() error { return nil }

func (r *sliceReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsume_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{
		msgs: []kafka.Message{{Topic: "ledger_commands", Offset: 0}, {Topic: "ledger_commands", Offset: 1}},
		onCommit: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}

	var (
		mu      sync.Mutex
		handled []int64
	)
	failures := 2
	handler := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		if m.Offset == 0 && failures > 0 {
			failures--
			return errors.New("lock timeout")
		}
		return nil
	}

	c := newConsumer(reader, handler, zap.NewNop())
	c.retryInitialInterval = time.Millisecond
	c.retryMaxInterval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{0, 0, 0, 1}, handled)
	assert.Equal(t, []int64{0, 1}, reader.commits())
}

func TestConsume_StopsWithoutCommittingUnhandledMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{msgs: []kafka.Message{{Offset: 7}, {Offset: 8}}}
	attempts := make(chan struct{}, 100)
	handler := func(context.Context, kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("store unavailable")
	}

	c := newConsumer(reader, handler, zap.NewNop())
	c.retryInitialInterval = time.Millisecond
	c.retryMaxInterval = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx) }()

	for range 3 {
		select {
		case <-attempts:
		case <-time.After(5 * time.Second):
			t.Fatal("handler was not retried")
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, reader.commits())

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, 1, reader.next, "offset 8 must not be fetched while 7 is unhandled")
}
