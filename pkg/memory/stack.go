package memory

import (
	"slices"

	"github.com/aretw0/canopy/pkg/domain"
)

// Frame is an open tree executor: a tree, its controller instance and the
// branch currently open under it.
type Frame struct {
	Tree       *domain.Element
	Controller any
	InstanceID string

	// Current is the innermost branch open under Tree, nil when none is.
	Current *domain.Element

	// Waiting is set when the last event was not recognized by an open
	// sub-branch; the frame keeps its state and retries on the next event.
	Waiting bool
}

// Active returns the element the frame is positioned on.
func (f *Frame) Active() *domain.Element {
	if f.Current != nil {
		return f.Current
	}
	return f.Tree
}

// Stack returns a copy of the branching-element stack, Root first.
func (m *Memory) Stack() []*domain.Element {
	return slices.Clone(m.stack)
}

// StackPaths returns the path of every element on the stack, Root included as "".
func (m *Memory) StackPaths() []string {
	paths := make([]string, len(m.stack))
	for i, e := range m.stack {
		paths[i] = e.Path()
	}
	return paths
}

func (m *Memory) Depth() int {
	return len(m.stack)
}

// Top returns the innermost open element.
func (m *Memory) Top() *domain.Element {
	return m.stack[len(m.stack)-1]
}

// AtRoot reports whether no tree is open.
func (m *Memory) AtRoot() bool {
	return len(m.frames) == 0
}

// Push opens e on top of the stack.
func (m *Memory) Push(e *domain.Element) {
	m.stack = append(m.stack, e)
}

// Pop removes the top element and returns it. Root is never popped;
// Pop returns nil when only Root is left.
func (m *Memory) Pop() *domain.Element {
	if len(m.stack) <= 1 {
		return nil
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.lastClosed = top
	return top
}

// ForgetLastClosed clears the record kept by Pop.
func (m *Memory) ForgetLastClosed() {
	m.lastClosed = nil
}

// OnStack reports whether e is currently open.
func (m *Memory) OnStack(e *domain.Element) bool {
	return slices.Contains(m.stack, e)
}

// IndexOf returns the stack position of the topmost element named name, or -1.
func (m *Memory) IndexOf(name string) int {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i].Name == name {
			return i
		}
	}
	return -1
}

// Frames returns a copy of the tree-executor stack, outermost first.
func (m *Memory) Frames() []*Frame {
	return slices.Clone(m.frames)
}

// TopFrame returns the innermost open tree executor, or nil at Root.
func (m *Memory) TopFrame() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// PushFrame records a tree executor. The frame's tree must be the
// last tree pushed onto the stack.
func (m *Memory) PushFrame(f *Frame) {
	m.frames = append(m.frames, f)
}

// PopFrame removes and returns the innermost tree executor.
// Callers are responsible for closing its controller.
func (m *Memory) PopFrame() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	top := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	return top
}

// FrameOf returns the open frame whose tree is tree.
func (m *Memory) FrameOf(tree *domain.Element) *Frame {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if m.frames[i].Tree == tree {
			return m.frames[i]
		}
	}
	return nil
}

// HasInstance reports whether a frame with the given instance id is open.
func (m *Memory) HasInstance(id string) bool {
	for _, f := range m.frames {
		if f.InstanceID == id {
			return true
		}
	}
	return false
}
