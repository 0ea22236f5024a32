package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	fetchTimeout   = 5 * time.Second
	handleTimeout  = 25 * time.Second
	commitTimeout  = 5 * time.Second
	fetchErrorWait = time.Second

	defaultRetryInitialInterval = 200 * time.Millisecond
	defaultRetryMaxInterval     = 30 * time.Second
)

// MessageHandler processes one message. A nil error commits the offset. Any
// other error makes the consumer hand the same message to the handler again,
// with backoff, until it succeeds or the consumer is stopped; later offsets
// are not read in the meantime.
type MessageHandler func(ctx context.Context, message kafka.Message) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *zap.Logger
	handler MessageHandler

	retryInitialInterval time.Duration
	retryMaxInterval     time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, handler MessageHandler, l *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokers,
		Topic:                  topic,
		GroupID:                groupID,
		MinBytes:               10e3,
		MaxBytes:               10e6,
		HeartbeatInterval:      3 * time.Second,
		PartitionWatchInterval: 5 * time.Second,
		Logger:                 kafka.LoggerFunc(l.Sugar().Debugf),
		ErrorLogger:            kafka.LoggerFunc(l.Sugar().Errorf),
	})

	return newConsumer(reader, handler, l)
}

func newConsumer(reader messageReader, handler MessageHandler, l *zap.Logger) *Consumer {
	return &Consumer{
		reader:               reader,
		logger:               l,
		handler:              handler,
		retryInitialInterval: defaultRetryInitialInterval,
		retryMaxInterval:     defaultRetryMaxInterval,
	}
}

// Consume blocks until ctx is cancelled or the reader is closed.
func (c *Consumer) Consume(ctx context.Context) error {
	topic := c.reader.Config().Topic
	c.logger.Info("Kafka consumer starting message consumption",
		zap.String("topic", topic),
		zap.String("group_id", c.reader.Config().GroupID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer.", zap.String("topic", topic))
			return ctx.Err()
		default:
		}

		fetchCtx, cancelFetch := context.WithTimeout(ctx, fetchTimeout)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancelFetch()

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Info("Consumer stopping due to context cancellation or reader closure.", zap.Error(err), zap.String("topic", topic))
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.Error("Error fetching message from Kafka", zap.Error(err), zap.String("topic", topic))
			select {
			case <-ctx.Done():
			case <-time.After(fetchErrorWait):
			}
			continue
		}

		if err := c.handleUntilDone(ctx, m); err != nil {
			// Left uncommitted: the group redelivers it after a restart.
			c.logger.Info("Consumer stopping with message unhandled",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			return nil
		}

		commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		if err := c.reader.CommitMessages(commitCtx, m); err != nil {
			c.logger.Error("Failed to commit offset for message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
		cancelCommit()
	}
}

// handleUntilDone runs the handler on m until it returns nil. It only gives up
// when ctx is done.
func (c *Consumer) handleUntilDone(ctx context.Context, m kafka.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitialInterval
	b.MaxInterval = c.retryMaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		// The handler gets its own deadline so shutdown does not abort a
		// ledger operation halfway through its store transaction.
		handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
		defer cancel()
		if err := c.handler(handleCtx, m); err != nil {
			c.logger.Error("Error handling Kafka message, will retry",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
	return err
}

func (c *Consumer) Close() error {
	topic := c.reader.Config().Topic
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka consumer reader", zap.Error(err), zap.String("topic", topic))
		return fmt.Errorf("failed to close Kafka consumer reader: %w", err)
	}
	c.logger.Info("Kafka consumer reader closed.", zap.String("topic", topic))
	return nil
}
