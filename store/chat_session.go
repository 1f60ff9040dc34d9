package store

import (
	"encoding/json"
	"time"
)

// ChatFilter scopes which transcripts a session is grounded in.
type ChatFilter struct {
	DateStart    *time.Time `json:"date_start,omitempty"`
	DateEnd      *time.Time `json:"date_end,omitempty"`
	Speakers     []string   `json:"speakers"`
	Categories   []string   `json:"categories"`
	RecordingIDs []int64    `json:"recording_ids"`
}

// Normalize replaces nil slices with empty ones so the filter is stored verbatim.
func (f ChatFilter) Normalize() ChatFilter {
	if f.Speakers == nil {
		f.Speakers = []string{}
	}
	if f.Categories == nil {
		f.Categories = []string{}
	}
	if f.RecordingIDs == nil {
		f.RecordingIDs = []int64{}
	}
	return f
}

// ChatSession is a persisted conversation thread.
//
// MessageCount and LastMessageAt are maintained by the database trigger on
// chat_messages inserts. They are read-only from the application's point of
// view: neither the create path nor UpdateChatSession can assign them.
type ChatSession struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Filter      ChatFilter `json:"filter"`
	Archived    bool       `json:"is_archived"`
	Pinned      bool       `json:"is_pinned"`

	MessageCount  int32      `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FindChatSession struct {
	ID       *string
	UserID   *string
	Archived *bool
	Pinned   *bool

	// UpdatedBefore matches sessions whose updated_at is strictly older.
	UpdatedBefore *time.Time
}

type UpdateChatSession struct {
	ID string
	// UserID, when set, restricts the update to sessions owned by the user.
	UserID *string

	Title       *string
	Description *string
	Pinned      *bool
	Archived    *bool

	// OnlyIfUntitled makes the update conditional on the title still being NULL.
	OnlyIfUntitled bool
}

type DeleteChatSession struct {
	ID     string
	UserID *string
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// IsValid reports whether the role is one the chat_messages table accepts.
func (r MessageRole) IsValid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem, MessageRoleTool:
		return true
	}
	return false
}

// ChatMessage is one persisted turn. Messages are append-only.
type ChatMessage struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Parts     json.RawMessage `json:"parts"`
	Model     *string         `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChatMessageKey is the minimal durable identity of a message used for dedup.
type ChatMessageKey struct {
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

type FindChatMessage struct {
	ID        *string
	SessionID *string
}

// ChatChangeOp is the row operation reported by the change feed.
type ChatChangeOp string

const (
	ChatChangeInsert ChatChangeOp = "INSERT"
	ChatChangeUpdate ChatChangeOp = "UPDATE"
	ChatChangeDelete ChatChangeOp = "DELETE"
)

// ChatChange is a row-level notification emitted by the database.
type ChatChange struct {
	Table     string       `json:"table"`
	Op        ChatChangeOp `json:"op"`
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
}
