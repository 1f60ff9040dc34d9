package chat

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/callsight/internal/profile"
)

const (
	DefaultTitlePlaceholder = "New Chat"
	DefaultTitleMaxLength   = 50
	DefaultTitleEllipsis    = "..."

	minTitleLength = 2
)

var leadingNonAlphanumeric = regexp.MustCompile(`^[^\p{L}\p{N}]+`)

// TitleDeriver turns the first user message of a session into its title.
type TitleDeriver struct {
	// ContextPrefix matches the annotation the UI prepends when the user
	// attaches context. Nil disables stripping.
	ContextPrefix *regexp.Regexp
	Placeholder   string
	// MaxLength is measured in runes.
	MaxLength int
	Ellipsis  string
}

// NewTitleDeriver compiles pattern as the context prefix. Empty values take
// the defaults.
func NewTitleDeriver(pattern, placeholder string, maxLength int) (*TitleDeriver, error) {
	if pattern == "" {
		pattern = profile.DefaultTitleContextPattern
	}
	prefix, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid title context pattern %q", pattern)
	}
	if placeholder == "" {
		placeholder = DefaultTitlePlaceholder
	}
	if maxLength <= 0 {
		maxLength = DefaultTitleMaxLength
	}
	return &TitleDeriver{
		ContextPrefix: prefix,
		Placeholder:   placeholder,
		MaxLength:     maxLength,
		Ellipsis:      DefaultTitleEllipsis,
	}, nil
}

// DefaultTitleDeriver returns a deriver with the default configuration.
func DefaultTitleDeriver() *TitleDeriver {
	d, err := NewTitleDeriver("", "", 0)
	if err != nil {
		panic(err)
	}
	return d
}

// Derive computes a title from message content.
func (d *TitleDeriver) Derive(content string) string {
	if d.ContextPrefix != nil {
		content = d.ContextPrefix.ReplaceAllString(content, "")
	}
	content = strings.TrimSpace(content)
	content = leadingNonAlphanumeric.ReplaceAllString(content, "")

	runes := []rune(content)
	if len(runes) < minTitleLength {
		return d.Placeholder
	}
	if d.MaxLength > 0 && len(runes) > d.MaxLength {
		return string(runes[:d.MaxLength]) + d.Ellipsis
	}
	return content
}
