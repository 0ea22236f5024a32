package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"corebanking/internal/domain"
	kafka_infra "corebanking/internal/infrastructure/kafka"
)

type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, cmd domain.LedgerCommand, raw []byte) (*domain.Transaction, error)
}

// LedgerCommandHandler applies ledger commands from Kafka. Malformed commands,
// replays and business rejections are acknowledged; only retryable failures
// leave the offset uncommitted.
func LedgerCommandHandler(executor CommandExecutor, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		}

		var cmd domain.LedgerCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Error("Failed to unmarshal ledger command, skipping",
				append(fields, zap.Error(err), zap.ByteString("value", msg.Value))...)
			return nil
		}
		if err := cmd.Validate(); err != nil {
			logger.Error("Invalid ledger command, skipping", append(fields, zap.Error(err))...)
			return nil
		}

		fields = append(fields, zap.String("command_id", cmd.CommandID), zap.String("type", string(cmd.Type)))

		txn, err := executor.ExecuteCommand(ctx, cmd, msg.Value)
		switch {
		case err == nil:
			logger.Info("Ledger command applied", append(fields, zap.Int64("tx_id", txn.ID))...)
			return nil
		case errors.Is(err, domain.ErrMessageAlreadyProcessed):
			logger.Info("Ledger command already applied, skipping", fields...)
			return nil
		case domain.IsRetryable(err):
			logger.Error("Ledger command failed, will be redelivered", append(fields, zap.Error(err))...)
			return fmt.Errorf("apply ledger command %s: %w", cmd.CommandID, err)
		default:
			logger.Warn("Ledger command rejected", append(fields, zap.Error(err))...)
			return nil
		}
	}
}
