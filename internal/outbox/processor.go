// Package outbox publishes ledger events that were written to the outbox in
// the same store transaction as the balance change they describe.
package outbox

import (
	"context"
	"sync"
	"time"

	"corebanking/internal/domain"
	kafkaInfra "corebanking/internal/infrastructure/kafka"

	"go.uber.org/zap"
)

const (
	DefaultBatchSize       = 10
	DefaultMaxSendAttempts = 5
)

type Repository interface {
	GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkMessagesAsSent(ctx context.Context, ids []string) error
	MarkMessagesAsFailed(ctx context.Context, ids []string) error
}

type Config struct {
	Topic        string
	PollInterval time.Duration
	PollTimeout  time.Duration
	BatchSize    int
	// MaxSendAttempts is how many polls may fail to publish a message before
	// it is parked as FAILED.
	MaxSendAttempts int
}

// Processor delivers pending messages at least once, in creation order.
type Processor struct {
	repo          Repository
	kafkaProducer kafkaInfra.Producer
	cfg           Config
	logger        *zap.Logger

	failures       map[string]int
	shutdownSignal chan struct{}
	shutdownOnce   sync.Once
}

func NewProcessor(repo Repository, kafkaProducer kafkaInfra.Producer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxSendAttempts <= 0 {
		cfg.MaxSendAttempts = DefaultMaxSendAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = cfg.PollInterval
	}
	return &Processor{
		repo:           repo,
		kafkaProducer:  kafkaProducer,
		cfg:            cfg,
		logger:         logger,
		failures:       make(map[string]int),
		shutdownSignal: make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.String("topic", p.cfg.Topic))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor context cancelled.")
			return
		case <-p.shutdownSignal:
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

func (p *Processor) Stop() {
	p.shutdownOnce.Do(func() {
		p.logger.Info("Signaling outbox processor to stop...")
		close(p.shutdownSignal)
	})
}

// ProcessOnce publishes one batch and returns how many messages were sent.
func (p *Processor) ProcessOnce(ctx context.Context) int {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	messages, err := p.repo.GetPendingMessages(queryCtx, p.cfg.BatchSize)
	cancel()
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	var sent, failed []string
	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(ctx, p.cfg.Topic, msg.Key, msg.Payload); err != nil {
			p.failures[msg.ID]++
			p.logger.Error("Failed to send outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", p.cfg.Topic),
				zap.Int("attempt", p.failures[msg.ID]),
				zap.Error(err))
			if p.failures[msg.ID] >= p.cfg.MaxSendAttempts {
				failed = append(failed, msg.ID)
			}
			// Later messages wait so events for an account stay in order.
			break
		}
		delete(p.failures, msg.ID)
		sent = append(sent, msg.ID)
	}

	if len(sent) > 0 {
		if err := p.repo.MarkMessagesAsSent(ctx, sent); err != nil {
			p.logger.Error("Failed to mark outbox messages as SENT", zap.Strings("message_ids", sent), zap.Error(err))
		} else {
			p.logger.Info("Outbox messages published", zap.Int("count", len(sent)))
		}
	}
	if len(failed) > 0 {
		if err := p.repo.MarkMessagesAsFailed(ctx, failed); err != nil {
			p.logger.Error("Failed to mark outbox messages as FAILED", zap.Strings("message_ids", failed), zap.Error(err))
		} else {
			for _, id := range failed {
				delete(p.failures, id)
			}
			p.logger.Warn("Outbox messages parked after repeated send failures", zap.Strings("message_ids", failed))
		}
	}
	return len(sent)
}
