package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/callsight/store"
)

func TestDecodeChatChange(t *testing.T) {
	t.Run("message insert", func(t *testing.T) {
		change, err := decodeChatChange(`{"table":"chat_messages","op":"INSERT","session_id":"s-1","user_id":"u-1"}`)
		require.NoError(t, err)
		assert.Equal(t, "chat_messages", change.Table)
		assert.Equal(t, store.ChatChangeInsert, change.Op)
		assert.Equal(t, "s-1", change.SessionID)
		assert.Equal(t, "u-1", change.UserID)
	})

	t.Run("session delete", func(t *testing.T) {
		change, err := decodeChatChange(`{"table":"chat_sessions","op":"DELETE","session_id":"s-2","user_id":"u-1"}`)
		require.NoError(t, err)
		assert.Equal(t, store.ChatChangeDelete, change.Op)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := decodeChatChange(`{"table":`)
		assert.Error(t, err)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := decodeChatChange(`{"table":"chat_sessions","op":"UPDATE"}`)
		assert.Error(t, err)
	})
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$1, $2, $3", placeholders(3))
	assert.Equal(t, "$9, $10", placeholdersFrom(9, 2))
	assert.Equal(t, "", placeholders(0))
}
