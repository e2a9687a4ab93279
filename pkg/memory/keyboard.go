package memory

import "github.com/aretw0/canopy/pkg/domain"

// KeyboardKey names a keyboard inside a tree.
type KeyboardKey struct {
	Tree string
	Name string
}

// KeyboardState is the state blob of a keyboard together with the element
// that owns it. Ownership drives scope pruning.
type KeyboardState struct {
	Owner *domain.Element
	State any
}

// SetKeyboard stores state for tree/name, owned by owner.
func (m *Memory) SetKeyboard(tree, name string, owner *domain.Element, state any) {
	m.keyboards[KeyboardKey{Tree: tree, Name: name}] = &KeyboardState{Owner: owner, State: state}
}

// Keyboard returns the state stored for tree/name.
func (m *Memory) Keyboard(tree, name string) (*KeyboardState, bool) {
	ks, ok := m.keyboards[KeyboardKey{Tree: tree, Name: name}]
	return ks, ok
}

// SwitchKeyboard replaces the state of an existing keyboard, keeping its owner.
func (m *Memory) SwitchKeyboard(tree, name string, state any) error {
	ks, ok := m.keyboards[KeyboardKey{Tree: tree, Name: name}]
	if !ok {
		return domain.ErrKeyboardNotFound
	}
	ks.State = state
	return nil
}

// Keyboards returns a copy of the keyboard table.
func (m *Memory) Keyboards() map[KeyboardKey]KeyboardState {
	out := make(map[KeyboardKey]KeyboardState, len(m.keyboards))
	for k, v := range m.keyboards {
		out[k] = *v
	}
	return out
}

// PruneKeyboards drops the keyboards owned by elements deeper than active
// that are not among its ancestors, and returns how many were removed.
func (m *Memory) PruneKeyboards(active *domain.Element) int {
	n := 0
	for k, ks := range m.keyboards {
		if ks.Owner == nil {
			continue
		}
		if ks.Owner.Level > active.Level && !ks.Owner.IsAncestorOf(active) {
			delete(m.keyboards, k)
			n++
		}
	}
	return n
}
