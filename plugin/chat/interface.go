// Package chat implements chat session persistence: reconciling batches of
// streamed messages against the store, deriving session titles, and keeping
// the per-user session list cache coherent.
package chat

import (
	"context"
	"time"

	"github.com/hrygo/callsight/store"
)

// Repository is the row-access collaborator the Service is built on.
// *store.Store satisfies it; MockRepository is the in-memory fake.
type Repository interface {
	CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error)
	ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error)
	GetChatSession(ctx context.Context, find *store.FindChatSession) (*store.ChatSession, error)
	UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error)
	DeleteChatSession(ctx context.Context, delete *store.DeleteChatSession) error

	CreateChatMessages(ctx context.Context, creates []*store.ChatMessage) ([]*store.ChatMessage, error)
	ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error)
	ListChatMessageKeys(ctx context.Context, sessionID string) ([]*store.ChatMessageKey, error)

	WatchChatChanges(ctx context.Context) (<-chan *store.ChatChange, error)
}

var _ Repository = (*store.Store)(nil)

// Message is the shape the streaming chat UI sends and receives.
//
// On input ID is the transient id the UI assigned; it is never persisted.
// On output ID is the persisted UUID.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Parts     any       `json:"parts,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// SaveResult reports what a SaveMessages call did with its batch.
type SaveResult struct {
	// Inserted holds the persisted messages, in batch order.
	Inserted []Message `json:"inserted"`
	// Duplicates counts messages already accounted for by durable history.
	Duplicates int `json:"duplicates"`
	// InvalidRoles counts messages dropped for a role outside the whitelist.
	InvalidRoles int `json:"invalid_roles"`
}

// CreateSessionOptions are the caller-supplied fields of a new session.
type CreateSessionOptions struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Filter      store.ChatFilter `json:"filter"`
}
