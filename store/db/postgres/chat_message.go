package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/callsight/store"
)

const chatMessageColumns = `id, session_id, user_id, role, content, parts, model, created_at`

func scanChatMessage(row rowScanner) (*store.ChatMessage, error) {
	message := &store.ChatMessage{}
	var (
		role    string
		content sql.NullString
		parts   []byte
		model   sql.NullString
	)
	if err := row.Scan(&message.ID, &message.SessionID, &message.UserID, &role, &content, &parts, &model, &message.CreatedAt); err != nil {
		return nil, err
	}
	message.Role = store.MessageRole(role)
	message.Content = content.String
	if parts != nil {
		message.Parts = json.RawMessage(append([]byte(nil), parts...))
	}
	if model.Valid {
		message.Model = &model.String
	}
	return message, nil
}

// CreateChatMessages inserts the batch as one multi-row statement so the
// message rows and the trigger-maintained session counters commit together.
func (d *DB) CreateChatMessages(ctx context.Context, creates []*store.ChatMessage) ([]*store.ChatMessage, error) {
	if len(creates) == 0 {
		return []*store.ChatMessage{}, nil
	}

	const width = 8
	values := make([]string, 0, len(creates))
	args := make([]any, 0, len(creates)*width)
	for _, create := range creates {
		values = append(values, "("+placeholdersFrom(len(args)+1, width)+")")
		args = append(args,
			create.ID,
			create.SessionID,
			create.UserID,
			string(create.Role),
			nullString(create.Content),
			jsonbArg(create.Parts),
			create.Model,
			create.CreatedAt,
		)
	}

	stmt := `INSERT INTO chat_messages (` + chatMessageColumns + `) VALUES ` + strings.Join(values, ", ") + ` RETURNING ` + chatMessageColumns
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0, len(creates))
	for rows.Next() {
		message, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to create chat_messages: %w", err)
	}
	return list, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}

	query := `SELECT ` + chatMessageColumns + ` FROM chat_messages WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		message, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_messages: %w", err)
	}
	return list, nil
}

func (d *DB) ListChatMessageKeys(ctx context.Context, sessionID string) ([]*store.ChatMessageKey, error) {
	query := `SELECT role, COALESCE(content, ''), created_at FROM chat_messages WHERE session_id = ` + placeholder(1) + ` ORDER BY created_at ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_message keys: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessageKey, 0)
	for rows.Next() {
		key := &store.ChatMessageKey{}
		var role string
		if err := rows.Scan(&role, &key.Content, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message key: %w", err)
		}
		key.Role = store.MessageRole(role)
		list = append(list, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_message keys: %w", err)
	}
	return list, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// jsonbArg passes parts as text; lib/pq sends []byte as bytea.
func jsonbArg(parts json.RawMessage) any {
	if len(parts) == 0 {
		return nil
	}
	return string(parts)
}
