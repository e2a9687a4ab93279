package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity names a session: one participant inside one conversation.
// It is a comparable value type and can be used directly as a map key.
type Identity struct {
	ParticipantID  int64 `json:"participant_id" yaml:"participant_id" mapstructure:"participant_id"`
	ConversationID int64 `json:"conversation_id" yaml:"conversation_id" mapstructure:"conversation_id"`
}

// NewIdentity builds an Identity from its two components.
func NewIdentity(participant, conversation int64) Identity {
	return Identity{ParticipantID: participant, ConversationID: conversation}
}

// String renders the identity as "<participant>:<conversation>".
// The format is stable and used as a storage key by the adapters.
func (id Identity) String() string {
	return strconv.FormatInt(id.ParticipantID, 10) + ":" + strconv.FormatInt(id.ConversationID, 10)
}

// IsZero reports whether the identity has not been set.
func (id Identity) IsZero() bool {
	return id.ParticipantID == 0 && id.ConversationID == 0
}

// ParseIdentity is the inverse of Identity.String.
// A single number is accepted as a private conversation (participant == conversation).
func ParseIdentity(s string) (Identity, error) {
	left, right, found := strings.Cut(strings.TrimSpace(s), ":")
	p, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid participant id %q: %w", left, err)
	}
	if !found {
		return Identity{ParticipantID: p, ConversationID: p}, nil
	}
	c, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid conversation id %q: %w", right, err)
	}
	return Identity{ParticipantID: p, ConversationID: c}, nil
}
