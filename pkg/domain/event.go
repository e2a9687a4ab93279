package domain

import (
	"strings"
	"time"
)

// Event is one inbound update from the messaging platform, already
// resolved to the session it belongs to.
type Event struct {
	ID       string   `json:"id"`
	Identity Identity `json:"identity"`

	// Text is the plain-text payload. Literal keys only match it when the
	// event carries no media.
	Text string `json:"text,omitempty"`

	// Command is the command name ("/start") when Text starts with a slash.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Callback is the callback token attached to an inline button press.
	Callback string `json:"callback,omitempty"`

	HasMedia bool `json:"has_media,omitempty"`

	// Language is an optional hint used when the event creates a session.
	Language string `json:"language,omitempty"`

	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NewTextEvent builds a text event and derives Command and Args from it.
func NewTextEvent(id Identity, text string) Event {
	ev := Event{
		Identity:   id,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	ev.Command, ev.Args = ParseCommand(text)
	return ev
}

// NewCallbackEvent builds an event for an inline button press.
func NewCallbackEvent(id Identity, token string) Event {
	return Event{
		Identity:   id,
		Callback:   token,
		ReceivedAt: time.Now(),
	}
}

// ParseCommand extracts "/name" and its arguments from a text payload.
// A "@botname" suffix on the command is discarded.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name, _, _ := strings.Cut(fields[0], "@")
	if name == "/" {
		return "", nil
	}
	if len(fields) == 1 {
		return name, nil
	}
	return name, fields[1:]
}

// IsPlainText reports whether literal keys may be matched against the event.
func (e *Event) IsPlainText() bool {
	return e.Text != "" && !e.HasMedia
}
