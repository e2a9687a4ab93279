package domain

import "slices"

// Trigger lists the conditions under which an element matches an event.
// An element matches if ANY of them holds.
type Trigger struct {
	Keys      []string
	Callbacks []string
	Commands  []string
	Predicate *Value
}

// IsEmpty reports whether the trigger can never match.
func (t Trigger) IsEmpty() bool {
	return len(t.Keys) == 0 && len(t.Callbacks) == 0 && len(t.Commands) == 0 && t.Predicate == nil
}

// MatchesKey reports whether a literal key equals the event's plain text.
func (t Trigger) MatchesKey(ev *Event) bool {
	return ev.IsPlainText() && slices.Contains(t.Keys, ev.Text)
}

// MatchesCallback reports whether a callback token equals the event's callback.
func (t Trigger) MatchesCallback(ev *Event) bool {
	return ev.Callback != "" && slices.Contains(t.Callbacks, ev.Callback)
}

// MatchesCommand reports whether the trigger lists the event's command.
func (t Trigger) MatchesCommand(ev *Event) bool {
	return ev.Command != "" && slices.Contains(t.Commands, ev.Command)
}

// MatchesLiteral reports whether any non-predicate condition holds.
func (t Trigger) MatchesLiteral(ev *Event) bool {
	return t.MatchesCallback(ev) || t.MatchesCommand(ev) || t.MatchesKey(ev)
}

// Matches checks the single category c (predicates excluded).
func (t Trigger) Matches(c Scope, ev *Event) bool {
	switch c {
	case ScopeCallbacks:
		return t.MatchesCallback(ev)
	case ScopeCommands:
		return t.MatchesCommand(ev)
	case ScopeKeys:
		return t.MatchesKey(ev)
	}
	return false
}
