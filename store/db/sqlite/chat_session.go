package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/callsight/store"
)

const chatSessionColumns = `id, user_id, title, description,
	filter_date_start, filter_date_end, filter_speakers, filter_categories, filter_recording_ids,
	is_archived, is_pinned, message_count, last_message_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatSession(row rowScanner) (*store.ChatSession, error) {
	session := &store.ChatSession{}
	var (
		title, description                 sql.NullString
		dateStart, dateEnd, lastMessageAt  sql.NullInt64
		speakers, categories, recordingIDs string
		createdAt, updatedAt               int64
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&title,
		&description,
		&dateStart,
		&dateEnd,
		&speakers,
		&categories,
		&recordingIDs,
		&session.Archived,
		&session.Pinned,
		&session.MessageCount,
		&lastMessageAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if title.Valid {
		session.Title = &title.String
	}
	if description.Valid {
		session.Description = &description.String
	}

	var err error
	if session.Filter.Speakers, err = decodeArray[string](speakers); err != nil {
		return nil, fmt.Errorf("failed to decode filter_speakers: %w", err)
	}
	if session.Filter.Categories, err = decodeArray[string](categories); err != nil {
		return nil, fmt.Errorf("failed to decode filter_categories: %w", err)
	}
	if session.Filter.RecordingIDs, err = decodeArray[int64](recordingIDs); err != nil {
		return nil, fmt.Errorf("failed to decode filter_recording_ids: %w", err)
	}
	session.Filter.DateStart = timeFromNull(dateStart)
	session.Filter.DateEnd = timeFromNull(dateEnd)
	session.LastMessageAt = timeFromNull(lastMessageAt)
	session.CreatedAt = fromMicros(createdAt)
	session.UpdatedAt = fromMicros(updatedAt)
	return session, nil
}

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	filter := create.Filter.Normalize()
	speakers, err := encodeArray(filter.Speakers)
	if err != nil {
		return nil, err
	}
	categories, err := encodeArray(filter.Categories)
	if err != nil {
		return nil, err
	}
	recordingIDs, err := encodeArray(filter.RecordingIDs)
	if err != nil {
		return nil, err
	}

	now := toMicros(time.Now())
	fields := []string{"id", "user_id", "title", "description", "filter_date_start", "filter_date_end", "filter_speakers", "filter_categories", "filter_recording_ids", "is_archived", "is_pinned", "created_at", "updated_at"}
	args := []any{
		create.ID,
		create.UserID,
		create.Title,
		create.Description,
		nullMicros(filter.DateStart),
		nullMicros(filter.DateEnd),
		speakers,
		categories,
		recordingIDs,
		create.Archived,
		create.Pinned,
		now,
		now,
	}

	stmt := `INSERT INTO chat_sessions (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING ` + chatSessionColumns
	session, err := scanChatSession(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_session: %w", err)
	}
	return session, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Archived != nil {
		where, args = append(where, "is_archived = "+placeholder(len(args)+1)), append(args, *find.Archived)
	}
	if find.Pinned != nil {
		where, args = append(where, "is_pinned = "+placeholder(len(args)+1)), append(args, *find.Pinned)
	}
	if find.UpdatedBefore != nil {
		where, args = append(where, "updated_at < "+placeholder(len(args)+1)), append(args, toMicros(*find.UpdatedBefore))
	}

	query := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_at DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatSession, 0)
	for rows.Next() {
		session, err := scanChatSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat_session: %w", err)
		}
		list = append(list, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_sessions: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Description != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *update.Description)
	}
	if update.Pinned != nil {
		set, args = append(set, "is_pinned = "+placeholder(len(args)+1)), append(args, *update.Pinned)
	}
	if update.Archived != nil {
		set, args = append(set, "is_archived = "+placeholder(len(args)+1)), append(args, *update.Archived)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	set, args = append(set, "updated_at = MAX(updated_at, "+placeholder(len(args)+1)+")"), append(args, toMicros(time.Now()))

	where := []string{"id = " + placeholder(len(args)+1)}
	args = append(args, update.ID)
	if update.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *update.UserID)
	}
	if update.OnlyIfUntitled {
		where = append(where, "title IS NULL")
	}

	stmt := `UPDATE chat_sessions SET ` + strings.Join(set, ", ") + ` WHERE ` + strings.Join(where, " AND ") + ` RETURNING ` + chatSessionColumns
	session, err := scanChatSession(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update chat_session: %w", err)
	}
	return session, nil
}

func (d *DB) DeleteChatSession(ctx context.Context, delete *store.DeleteChatSession) error {
	where, args := []string{"id = " + placeholder(1)}, []any{delete.ID}
	if delete.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *delete.UserID)
	}

	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return fmt.Errorf("failed to delete chat_session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete chat_session: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
