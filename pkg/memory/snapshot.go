package memory

import (
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

// Snapshot is the serializable form of a Memory.
//
// Elements are referenced by path so a snapshot can be restored against any
// hierarchy that still declares them. Components, the cache table and tree
// executors are not captured: components are process-local, cache entries
// carry Go predicates, and executors are rebuilt from the stack on load.
type Snapshot struct {
	Identity domain.Identity `json:"identity"`
	Vars     map[string]any  `json:"vars,omitempty"`

	// Stack lists the open element paths, Root excluded, outermost first.
	Stack []string `json:"stack,omitempty"`
	// Waiting lists the paths of trees whose executor was waiting.
	Waiting []string `json:"waiting,omitempty"`

	Registries     map[string][]domain.MessageRef `json:"registries,omitempty"`
	ActionMessages map[string]domain.MessageRef   `json:"action_messages,omitempty"`
	LastSent       *domain.MessageRef             `json:"last_sent,omitempty"`

	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`

	Keyboards  []KeyboardSnapshot `json:"keyboards,omitempty"`
	Callers    map[string]string  `json:"callers,omitempty"`
	LastClosed string             `json:"last_closed,omitempty"`
	EventSeq   uint64             `json:"event_seq"`

	SavedAt time.Time `json:"saved_at"`
}

// KeyboardSnapshot is one keyboard table entry.
type KeyboardSnapshot struct {
	Tree  string `json:"tree"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	State any    `json:"state,omitempty"`
}

// Snapshot captures the serializable part of m.
func (m *Memory) Snapshot() *Snapshot {
	snap := &Snapshot{
		Identity:       m.id,
		Vars:           maps.Clone(m.vars),
		Registries:     make(map[string][]domain.MessageRef, len(m.registries)),
		ActionMessages: maps.Clone(m.actionMessages),
		Role:           m.role,
		Language:       m.language,
		Callers:        maps.Clone(m.callers),
		EventSeq:       m.eventSeq,
		SavedAt:        time.Now(),
	}
	for _, e := range m.stack[1:] {
		snap.Stack = append(snap.Stack, e.Path())
	}
	for _, f := range m.frames {
		if f.Waiting {
			snap.Waiting = append(snap.Waiting, f.Tree.Path())
		}
	}
	for name, refs := range m.registries {
		snap.Registries[name] = append([]domain.MessageRef(nil), refs...)
	}
	if m.lastSent != nil {
		ref := *m.lastSent
		snap.LastSent = &ref
	}
	for k, ks := range m.keyboards {
		owner := ""
		if ks.Owner != nil {
			owner = ks.Owner.Path()
		}
		snap.Keyboards = append(snap.Keyboards, KeyboardSnapshot{Tree: k.Tree, Name: k.Name, Owner: owner, State: ks.State})
	}
	if m.lastClosed != nil {
		snap.LastClosed = m.lastClosed.Path()
	}
	return snap
}

// Restore rebuilds a Memory from snap against root. Every path in the
// snapshot must resolve; tree executors are left for the caller to rebuild
// from the restored stack (see PendingFrames).
func Restore(root *domain.Element, snap *Snapshot) (*Memory, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore: nil snapshot")
	}
	m := New(snap.Identity, root)
	if snap.Vars != nil {
		m.vars = maps.Clone(snap.Vars)
	}
	m.role = snap.Role
	m.language = snap.Language
	m.eventSeq = snap.EventSeq
	if snap.Callers != nil {
		m.callers = maps.Clone(snap.Callers)
	}
	if snap.ActionMessages != nil {
		m.actionMessages = maps.Clone(snap.ActionMessages)
	}
	for name, refs := range snap.Registries {
		m.registries[name] = append([]domain.MessageRef(nil), refs...)
	}
	if snap.LastSent != nil {
		ref := *snap.LastSent
		m.lastSent = &ref
	}

	for _, p := range snap.Stack {
		e, err := root.Lookup(p)
		if err != nil {
			return nil, fmt.Errorf("restore stack: %w", err)
		}
		if parent := e.Parent(); parent != m.Top() {
			return nil, fmt.Errorf("restore stack: %q is not nested in %q", p, m.Top().Path())
		}
		m.Push(e)
	}
	m.pendingWaiting = snap.Waiting

	for _, ks := range snap.Keyboards {
		var owner *domain.Element
		if ks.Owner != "" {
			e, err := root.Lookup(ks.Owner)
			if err != nil {
				return nil, fmt.Errorf("restore keyboard %s/%s: %w", ks.Tree, ks.Name, err)
			}
			owner = e
		}
		m.SetKeyboard(ks.Tree, ks.Name, owner, ks.State)
	}
	if snap.LastClosed != "" {
		if e, err := root.Lookup(snap.LastClosed); err == nil {
			m.lastClosed = e
		}
	}
	return m, nil
}

// PendingFrames describes the tree executors implied by the stack of a
// restored memory, outermost first, each with its open branch and waiting
// flag. It returns nil once frames have been pushed.
func (m *Memory) PendingFrames() []Frame {
	if len(m.frames) > 0 {
		return nil
	}
	var out []Frame
	for _, e := range m.stack[1:] {
		if e.IsTree() {
			out = append(out, Frame{Tree: e})
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].Current = e
		}
	}
	for i := range out {
		for _, p := range m.pendingWaiting {
			if out[i].Tree.Path() == p {
				out[i].Waiting = true
			}
		}
	}
	return out
}
