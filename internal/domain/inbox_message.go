package domain

import "time"

type InboxMessageStatus string

const (
	InboxStatusProcessed InboxMessageStatus = "PROCESSED"
)

// InboxMessage records an inbound command id so a redelivered Kafka message
// is applied to the ledger at most once.
type InboxMessage struct {
	ID          string
	CommandType string
	Payload     []byte
	Status      InboxMessageStatus
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
