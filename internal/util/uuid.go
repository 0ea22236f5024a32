package util

import (
	"github.com/google/uuid"
)

// NewMessageID returns a time-ordered UUIDv7, so outbox ids sort in creation
// order. It falls back to a random UUIDv4 if the clock source fails.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
