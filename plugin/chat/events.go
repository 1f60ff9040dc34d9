package chat

import "github.com/hrygo/callsight/internal/pubsub"

// Session event types published on the service broker.
const (
	EventSessionCreated pubsub.EventType = "session.created"
	EventSessionUpdated pubsub.EventType = "session.updated"
	EventSessionDeleted pubsub.EventType = "session.deleted"
	EventMessagesSaved  pubsub.EventType = "messages.saved"
	// EventSessionChanged comes from the database change feed and may repeat
	// a locally published event. Subscribers treat events as refetch hints.
	EventSessionChanged pubsub.EventType = "session.changed"
)

// SessionEvent identifies what changed. UserID is empty only for
// feed-reconnect events, which mean "refetch everything".
type SessionEvent struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	// Count is the number of messages inserted for EventMessagesSaved.
	Count int `json:"count,omitempty"`
}

// ForUser returns a subscription filter matching events for userID,
// including broadcast reconnect events.
func ForUser(userID string) func(SessionEvent) bool {
	return func(e SessionEvent) bool {
		return e.UserID == "" || e.UserID == userID
	}
}
