package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateTypeTransaction = "transaction"

	MessageTypeTransactionRecorded = "TransactionRecorded"
)

// TransactionRecordedEvent is published for every committed ledger transaction.
type TransactionRecordedEvent struct {
	TransactionID int64           `json:"transaction_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Source        *string         `json:"source,omitempty"`
	Destination   *string         `json:"destination,omitempty"`
	Description   string          `json:"description"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewTransactionRecordedEvent(t *Transaction) TransactionRecordedEvent {
	return TransactionRecordedEvent{
		TransactionID: t.ID,
		Kind:          t.Kind,
		Amount:        t.Amount,
		Fee:           t.Fee,
		Source:        t.Source,
		Destination:   t.Destination,
		Description:   t.Description,
		Timestamp:     t.Timestamp,
	}
}

type CommandType string

const (
	CommandDeposit         CommandType = "deposit"
	CommandWithdraw        CommandType = "withdraw"
	CommandTransfer        CommandType = "transfer"
	CommandInstantTransfer CommandType = "instant_transfer"
)

// LedgerCommand is a funds movement requested by another service over Kafka.
// CommandID is the idempotency key.
type LedgerCommand struct {
	CommandID   string          `json:"command_id"`
	Type        CommandType     `json:"type"`
	Account     string          `json:"account,omitempty"`
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

func (c LedgerCommand) Validate() error {
	if c.CommandID == "" {
		return fmt.Errorf("command_id is required")
	}
	switch c.Type {
	case CommandDeposit, CommandWithdraw:
		if c.Account == "" {
			return fmt.Errorf("%s command requires account", c.Type)
		}
	case CommandTransfer, CommandInstantTransfer:
		if c.Source == "" || c.Destination == "" {
			return fmt.Errorf("%s command requires source and destination", c.Type)
		}
	default:
		return fmt.Errorf("unknown command type %q", string(c.Type))
	}
	return nil
}
