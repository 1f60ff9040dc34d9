package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleDeriver(t *testing.T) {
	d := DefaultTitleDeriver()
	long := strings.Repeat("a", 60)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "What did Acme say about pricing?", "What did Acme say about pricing?"},
		{"context prefix", "[Context: @Acme call, @Q3 review]\n\nSummarize objections", "Summarize objections"},
		{"context prefix crlf", "[Context: @call]\r\n\r\nNext steps?", "Next steps?"},
		{"prefix without blank line is kept", "[Context: @call] hi there", "Context: @call] hi there"},
		{"leading symbols", "  ### >> Follow-ups", "Follow-ups"},
		{"leading emoji", "🔥🔥 hot leads", "hot leads"},
		{"unicode letters", "¿Qué dijo el cliente?", "Qué dijo el cliente?"},
		{"too short", "?!", "New Chat"},
		{"single rune", "k", "New Chat"},
		{"empty", "", "New Chat"},
		{"only prefix", "[Context: @call]\n\n", "New Chat"},
		{"exactly max", strings.Repeat("b", 50), strings.Repeat("b", 50)},
		{"truncated", long, strings.Repeat("a", 50) + "..."},
		{"truncated by runes", strings.Repeat("é", 51), strings.Repeat("é", 50) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Derive(tt.content))
		})
	}
}

func TestNewTitleDeriver(t *testing.T) {
	d, err := NewTitleDeriver(`^@\w+\s+`, "Untitled", 10)
	require.NoError(t, err)
	assert.Equal(t, "summarize ...", d.Derive("@bot summarize everything"))
	assert.Equal(t, "Untitled", d.Derive("@bot !"))

	_, err = NewTitleDeriver(`([`, "", 0)
	assert.Error(t, err)
}
