package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// SanitizeParts returns parts as JSON that is guaranteed to decode, or nil.
// nil input (including a typed nil and JSON null) maps to nil without a round
// trip. Values that cannot be encoded, such as cyclic structures, functions
// or channels, also map to nil and a warning is logged.
func SanitizeParts(parts any) (sanitized json.RawMessage) {
	if isNil(parts) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("failed to sanitize message parts", "error", fmt.Sprint(r))
			sanitized = nil
		}
	}()

	encoded, err := json.Marshal(parts)
	if err != nil {
		slog.Warn("failed to sanitize message parts", "error", err)
		return nil
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		slog.Warn("failed to sanitize message parts", "error", err)
		return nil
	}
	if decoded == nil {
		return nil
	}
	return encoded
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if raw, ok := v.(json.RawMessage); ok {
		trimmed := bytes.TrimSpace(raw)
		return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// EffectiveContent is the visible text of a message: content when set,
// otherwise the concatenated text of its "text" parts.
func EffectiveContent(content string, parts json.RawMessage) string {
	if content != "" || len(parts) == 0 {
		return content
	}
	texts := gjson.GetBytes(parts, `#(type=="text")#.text`).Array()
	var b strings.Builder
	for _, text := range texts {
		b.WriteString(text.String())
	}
	return b.String()
}
