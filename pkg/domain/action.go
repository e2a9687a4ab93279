package domain

import (
	"context"
	"time"
)

// ActionKind selects how an Action is executed.
type ActionKind string

const (
	// ActionCall performs an outbound call through the Performer.
	ActionCall ActionKind = "call"
	// ActionInvoke resolves Value for its side effects only.
	ActionInvoke ActionKind = "invoke"
	// ActionSet stores Value under Key in the session memory.
	ActionSet ActionKind = "set"
	// ActionWait sleeps for Wait.Duration, cancellable by interruption.
	ActionWait ActionKind = "wait"
	// ActionClearCache drops the memoized value named by Cache.
	ActionClearCache ActionKind = "clear_cache"
	// ActionKeyboard stores keyboard state under Key, owned by the active element.
	ActionKeyboard ActionKind = "keyboard"
	// ActionSwitchKeyboard replaces the state of an existing keyboard.
	ActionSwitchKeyboard ActionKind = "switch_keyboard"
)

// Standard outbound methods. The engine treats methods as opaque strings;
// these are the ones it issues itself.
const (
	MethodSend = "send_message"
	MethodEdit = "edit_message"
)

// Consumer receives the result of an outbound call.
type Consumer func(ctx context.Context, env Env, result any) error

// Listener observes events arriving while a wait sleeps.
// Returning true interrupts the wait.
type Listener func(ctx context.Context, ev Event) bool

// Wait configures an ActionWait.
type Wait struct {
	Duration time.Duration
	Listener Listener

	// OnInterrupt runs when the wait is cancelled. Without it the
	// interruption fails the current event with ErrWaitInterrupted.
	OnInterrupt []Action
}

// CacheRef names a memoized value to clear.
type CacheRef struct {
	Owner  string
	Member string
}

// Action is one step executed when an element is activated.
type Action struct {
	// Name identifies the action inside its element. Edit transitions use
	// it to find the message previously sent by this action.
	Name string
	Kind ActionKind

	// Method is the outbound method for ActionCall (default MethodSend).
	Method string
	Value  *Value

	// Key is the memory key for ActionSet and the keyboard name for the
	// keyboard kinds.
	Key string

	// Registry appends the sent message to the named message registry.
	Registry string
	// SaveTo stores the outbound call result under this memory key.
	SaveTo   string
	Consumer Consumer

	IgnoreError bool
	OnError     []Action

	Wait  *Wait
	Cache *CacheRef
}

// Call describes one outbound call handed to the Performer.
type Call struct {
	Identity Identity `json:"identity"`
	Method   string   `json:"method"`
	Payload  any      `json:"payload,omitempty"`

	// Action is "<element path>#<action name>" for traceability.
	Action string `json:"action,omitempty"`

	// Target is set for MethodEdit: the message being replaced.
	Target *MessageRef `json:"target,omitempty"`
}

// MessageRef points at a message delivered to the platform.
// A Performer returns one (or a pointer to one) for calls that deliver messages.
type MessageRef struct {
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	SentAt         time.Time `json:"sent_at"`
}
