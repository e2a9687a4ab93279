package domain

import "fmt"

// TransitionKind defines how control leaves a tree.
type TransitionKind int

const (
	// TransitionBack pops the stack down to the element named Target.
	TransitionBack TransitionKind = iota + 1
	// TransitionJump resets the session to Root and opens the tree named Target.
	TransitionJump
	// TransitionCaller returns to the tree that transitioned into the current one.
	TransitionCaller
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionBack:
		return "back"
	case TransitionJump:
		return "jump"
	case TransitionCaller:
		return "caller"
	}
	return fmt.Sprintf("transition(%d)", int(k))
}

// ParseTransitionKind maps "back", "jump" and "caller" to their kinds.
func ParseTransitionKind(s string) (TransitionKind, error) {
	switch s {
	case "back":
		return TransitionBack, nil
	case "jump":
		return TransitionJump, nil
	case "caller":
		return TransitionCaller, nil
	}
	return 0, fmt.Errorf("unknown transition kind %q", s)
}

// ExecMode controls what happens to the destination element of a transition.
type ExecMode int

const (
	// ExecActions runs the destination's actions (the default).
	ExecActions ExecMode = iota
	// ExecEdit only edits the message previously sent by EditAction.
	ExecEdit
	// ExecSilent changes the stack without running anything.
	ExecSilent
)

// ExecOptions are the execution options carried by a transition.
type ExecOptions struct {
	Mode        ExecMode
	EditAction  string
	IgnoreError bool
}

// Transition is declared on a terminal Branch.
type Transition struct {
	Kind   TransitionKind
	Target string

	// Next is a chained transition evaluated after a JUMP completes.
	Next *Transition

	Options ExecOptions
}

// Back builds a BACK transition.
func Back(target string) *Transition {
	return &Transition{Kind: TransitionBack, Target: target}
}

// Jump builds a JUMP transition.
func Jump(target string) *Transition {
	return &Transition{Kind: TransitionJump, Target: target}
}

// Caller builds a CALLER transition.
func Caller() *Transition {
	return &Transition{Kind: TransitionCaller}
}

// Then chains next after t and returns t.
func (t *Transition) Then(next *Transition) *Transition {
	t.Next = next
	return t
}

// Edit switches t to edit mode for the named action.
func (t *Transition) Edit(action string, ignoreError bool) *Transition {
	t.Options = ExecOptions{Mode: ExecEdit, EditAction: action, IgnoreError: ignoreError}
	return t
}

// Silent switches t to silent mode.
func (t *Transition) Silent() *Transition {
	t.Options.Mode = ExecSilent
	return t
}

func (t *Transition) String() string {
	if t == nil {
		return "<none>"
	}
	s := t.Kind.String()
	if t.Target != "" {
		s += "(" + t.Target + ")"
	}
	if t.Next != nil {
		s += " -> " + t.Next.String()
	}
	return s
}
