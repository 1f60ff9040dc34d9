package chat

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func TestSanitizeParts(t *testing.T) {
	cyclic := map[string]any{"type": "tool-call"}
	cyclic["self"] = cyclic

	var nilMap map[string]any
	var nilSlice []textPart
	var nilPtr *textPart

	tests := []struct {
		name  string
		parts any
		want  string
	}{
		{name: "nil", parts: nil},
		{name: "typed nil map", parts: nilMap},
		{name: "typed nil slice", parts: nilSlice},
		{name: "typed nil pointer", parts: nilPtr},
		{name: "empty raw", parts: json.RawMessage{}},
		{name: "raw null", parts: json.RawMessage(" null ")},
		{name: "cyclic", parts: cyclic},
		{name: "function", parts: []any{func() {}}},
		{name: "channel", parts: map[string]any{"c": make(chan int)}},
		{name: "NaN", parts: []any{math.NaN()}},
		{name: "invalid raw", parts: json.RawMessage(`{"type":`)},
		{name: "structs", parts: []textPart{{Type: "text", Text: "hi"}}, want: `[{"type":"text","text":"hi"}]`},
		{name: "maps", parts: []any{map[string]any{"type": "tool-result", "result": 3}}, want: `[{"type":"tool-result","result":3}]`},
		{name: "valid raw", parts: json.RawMessage(`[ {"type": "text"} ]`), want: `[{"type":"text"}]`},
		{name: "empty list", parts: []any{}, want: `[]`},
		{name: "scalar", parts: "plain", want: `"plain"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeParts(tt.parts)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

type panicky struct{}

func (panicky) MarshalJSON() ([]byte, error) {
	panic("boom")
}

func TestSanitizePartsRecoversFromPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Nil(t, SanitizeParts([]any{panicky{}}))
	})
}

func TestEffectiveContent(t *testing.T) {
	parts := json.RawMessage(`[
		{"type":"text","text":"Hello "},
		{"type":"tool-call","toolName":"search"},
		{"type":"text","text":"world"}
	]`)

	assert.Equal(t, "given", EffectiveContent("given", parts))
	assert.Equal(t, "Hello world", EffectiveContent("", parts))
	assert.Equal(t, "", EffectiveContent("", nil))
	assert.Equal(t, "", EffectiveContent("", json.RawMessage(`[{"type":"tool-call"}]`)))
}
