package domain

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxTextSize bounds the text of inbound events.
	DefaultMaxTextSize = 4096
	// EnvMaxTextSize overrides DefaultMaxTextSize.
	EnvMaxTextSize = "CANOPY_MAX_TEXT_SIZE"
)

var (
	ErrTextTooLarge = errors.New("event text exceeds maximum allowed size")
	ErrInvalidUTF8  = errors.New("event text contains invalid UTF-8 sequences")
)

// SanitizeText validates inbound text and strips control characters other
// than newline, tab and carriage return. Oversized text is rejected rather
// than truncated so keys never match a prefix by accident.
func SanitizeText(text string) (string, error) {
	limit := maxTextSize()
	if len(text) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTextTooLarge, len(text), limit)
	}
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(text, unsafeControl) < 0 {
		return text, nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// Sanitize cleans the text and callback of e and derives its command again.
func (e *Event) Sanitize() error {
	text, err := SanitizeText(e.Text)
	if err != nil {
		return err
	}
	cb, err := SanitizeText(e.Callback)
	if err != nil {
		return err
	}
	e.Text, e.Callback = text, cb
	e.Command, e.Args = ParseCommand(text)
	return nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

func maxTextSize() int {
	if val := os.Getenv(EnvMaxTextSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxTextSize
}
