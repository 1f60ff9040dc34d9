package chat

import "github.com/google/uuid"

// IDGenerator produces persisted identifiers for sessions and messages.
type IDGenerator func() string

// NewMessageID returns a canonical time-ordered UUID (v7), falling back to a
// random v4 if the v7 generator fails.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
