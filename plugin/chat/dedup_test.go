package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/callsight/store"
)

func durableKeys(pairs ...string) []*store.ChatMessageKey {
	keys := make([]*store.ChatMessageKey, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		keys = append(keys, &store.ChatMessageKey{
			Role:      store.MessageRole(pairs[i]),
			Content:   pairs[i+1],
			CreatedAt: time.Unix(int64(i), 0),
		})
	}
	return keys
}

func batchOf(pairs ...string) []Message {
	batch := make([]Message, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		batch = append(batch, Message{ID: "tmp", Role: pairs[i], Content: pairs[i+1]})
	}
	return batch
}

func contents(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Role+":"+m.Content)
	}
	return out
}

func TestSelectNew(t *testing.T) {
	tests := []struct {
		name    string
		durable []*store.ChatMessageKey
		batch   []Message
		want    []string
	}{
		{
			name:  "empty batch",
			want:  []string{},
			batch: nil,
		},
		{
			name:    "already stored batch",
			durable: durableKeys("user", "Hello", "assistant", "Hi there!"),
			batch:   batchOf("user", "Hello", "assistant", "Hi there!"),
			want:    []string{},
		},
		{
			name:    "legitimate repeat is kept",
			durable: durableKeys("user", "Hello", "assistant", "Hi there!"),
			batch:   batchOf("user", "Hello", "assistant", "Hi there!", "user", "Hello"),
			want:    []string{"user:Hello"},
		},
		{
			name:  "repeats against empty history",
			batch: batchOf("user", "Test", "user", "Test"),
			want:  []string{"user:Test", "user:Test"},
		},
		{
			name:    "role is part of the key",
			durable: durableKeys("user", "ok"),
			batch:   batchOf("assistant", "ok", "user", "ok"),
			want:    []string{"assistant:ok"},
		},
		{
			name:    "order preserved",
			durable: durableKeys("user", "a"),
			batch:   batchOf("user", "c", "user", "a", "user", "b", "user", "a"),
			want:    []string{"user:c", "user:b", "user:a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contents(SelectNew(tt.durable, tt.batch)))
		})
	}
}

func TestSelectNewIgnoresParts(t *testing.T) {
	durable := durableKeys("assistant", "Done.")
	batch := []Message{{Role: "assistant", Content: "Done.", Parts: []any{map[string]any{"type": "tool-call", "toolName": "other"}}}}
	assert.Empty(t, SelectNew(durable, batch))
}
