package sqlite

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
		role            string
		content, parts  sql.NullString
		model           sql.NullString
		createdAtMicros int64
	)
	if err := row.Scan(&message.ID, &message.SessionID, &message.UserID, &role, &content, &parts, &model, &createdAtMicros); err != nil {
		return nil, err
	}
	message.Role = store.MessageRole(role)
	message.Content = content.String
	if parts.Valid {
		message.Parts = json.RawMessage(parts.String)
	}
	if model.Valid {
		message.Model = &model.String
	}
	message.CreatedAt = fromMicros(createdAtMicros)
	return message, nil
}

// CreateChatMessages inserts the batch inside one transaction.
func (d *DB) CreateChatMessages(ctx context.Context, creates []*store.ChatMessage) ([]*store.ChatMessage, error) {
	if len(creates) == 0 {
		return []*store.ChatMessage{}, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin chat_messages tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_messages (`+chatMessageColumns+`) VALUES (`+placeholders(8)+`)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chat_messages insert: %w", err)
	}
	defer stmt.Close()

	list := make([]*store.ChatMessage, 0, len(creates))
	for _, create := range creates {
		var parts sql.NullString
		if len(create.Parts) > 0 {
			parts = sql.NullString{String: string(create.Parts), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			create.ID,
			create.SessionID,
			create.UserID,
			string(create.Role),
			sql.NullString{String: create.Content, Valid: create.Content != ""},
			parts,
			create.Model,
			toMicros(create.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("failed to create chat_message: %w", err)
		}
		message := *create
		message.CreatedAt = fromMicros(toMicros(create.CreatedAt))
		list = append(list, &message)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chat_messages: %w", err)
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
		var (
			role      string
			createdAt int64
		)
		if err := rows.Scan(&role, &key.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message key: %w", err)
		}
		key.Role = store.MessageRole(role)
		key.CreatedAt = fromMicros(createdAt)
		list = append(list, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_message keys: %w", err)
	}
	return list, nil
}
