package store

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a targeted row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrChangeFeedNotSupported is returned by drivers without push notifications.
	ErrChangeFeedNotSupported = errors.New("change feed is not supported by this driver")
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Dialect is the goose dialect name for migrations.
	Dialect() string

	IsInitialized(ctx context.Context) (bool, error)

	// ChatSession model related methods.
	CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error)
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error)
	DeleteChatSession(ctx context.Context, delete *DeleteChatSession) error

	// ChatMessage model related methods.
	// CreateChatMessages inserts the whole batch atomically.
	CreateChatMessages(ctx context.Context, creates []*ChatMessage) ([]*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	ListChatMessageKeys(ctx context.Context, sessionID string) ([]*ChatMessageKey, error)

	// WatchChatChanges streams row-level changes until ctx is done.
	WatchChatChanges(ctx context.Context) (<-chan *ChatChange, error)
}
