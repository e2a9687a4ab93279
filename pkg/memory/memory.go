package memory

import (
	"maps"
	"reflect"

	"github.com/aretw0/canopy/pkg/domain"
)

// Memory is the state of one session.
//
// A Memory is owned by the worker currently draining its session and is
// never accessed concurrently; it carries no locks. Destruction callbacks
// receive it after the session worker has stopped.
type Memory struct {
	id   domain.Identity
	root *domain.Element

	vars       map[string]any
	components map[reflect.Type]any

	stack  []*domain.Element
	frames []*Frame

	cache     map[CacheKey]*CacheEntry
	keyboards map[KeyboardKey]*KeyboardState

	registries     map[string][]domain.MessageRef
	actionMessages map[string]domain.MessageRef
	lastSent       *domain.MessageRef

	role     string
	language string

	lastClosed *domain.Element
	callers    map[string]string
	eventSeq   uint64

	pendingWaiting []string
}

// New creates an empty memory for id, with only root on the stack.
func New(id domain.Identity, root *domain.Element) *Memory {
	return &Memory{
		id:             id,
		root:           root,
		vars:           make(map[string]any),
		components:     make(map[reflect.Type]any),
		stack:          []*domain.Element{root},
		cache:          make(map[CacheKey]*CacheEntry),
		keyboards:      make(map[KeyboardKey]*KeyboardState),
		registries:     make(map[string][]domain.MessageRef),
		actionMessages: make(map[string]domain.MessageRef),
		callers:        make(map[string]string),
	}
}

func (m *Memory) Identity() domain.Identity { return m.id }
func (m *Memory) Root() *domain.Element     { return m.root }

// Get returns the value stored under key.
func (m *Memory) Get(key string) (any, bool) {
	v, ok := m.vars[key]
	return v, ok
}

func (m *Memory) Set(key string, value any) {
	m.vars[key] = value
}

func (m *Memory) Delete(key string) {
	delete(m.vars, key)
}

// Vars returns a copy of the key/value store.
func (m *Memory) Vars() map[string]any {
	return maps.Clone(m.vars)
}

// SetComponent stores v as the singleton component of type T.
func SetComponent[T any](m *Memory, v T) {
	m.components[reflect.TypeFor[T]()] = v
}

// Component returns the singleton component of type T.
func Component[T any](m *Memory) (T, bool) {
	v, ok := m.components[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// DeleteComponent removes the component of type T.
func DeleteComponent[T any](m *Memory) {
	delete(m.components, reflect.TypeFor[T]())
}

func (m *Memory) Role() string         { return m.role }
func (m *Memory) SetRole(role string)  { m.role = role }
func (m *Memory) Language() string     { return m.language }
func (m *Memory) SetLanguage(l string) { m.language = l }

// AppendRegistry records a delivered message in the named registry.
func (m *Memory) AppendRegistry(name string, ref domain.MessageRef) {
	m.registries[name] = append(m.registries[name], ref)
}

// Registry returns the messages recorded under name, oldest first.
func (m *Memory) Registry(name string) []domain.MessageRef {
	return append([]domain.MessageRef(nil), m.registries[name]...)
}

// ClearRegistry drops the named registry and returns its content.
func (m *Memory) ClearRegistry(name string) []domain.MessageRef {
	refs := m.registries[name]
	delete(m.registries, name)
	return refs
}

// RecordActionMessage remembers the message last sent by an action,
// keyed by "<element path>#<action name>". It also becomes the last sent message.
func (m *Memory) RecordActionMessage(key string, ref domain.MessageRef) {
	if key != "" {
		m.actionMessages[key] = ref
	}
	m.lastSent = &ref
}

// ActionMessage returns the message last sent by the action key.
func (m *Memory) ActionMessage(key string) (domain.MessageRef, bool) {
	ref, ok := m.actionMessages[key]
	return ref, ok
}

// LastSent returns the last message delivered for this session.
func (m *Memory) LastSent() (domain.MessageRef, bool) {
	if m.lastSent == nil {
		return domain.MessageRef{}, false
	}
	return *m.lastSent, true
}

// LastClosed is the element most recently removed from the stack.
func (m *Memory) LastClosed() *domain.Element {
	return m.lastClosed
}

// SetCaller records that tree was entered by a transition issued from caller.
func (m *Memory) SetCaller(tree, caller string) {
	m.callers[tree] = caller
}

// Caller returns the recorded call-site of tree.
func (m *Memory) Caller(tree string) (string, bool) {
	c, ok := m.callers[tree]
	return c, ok
}

// EventSeq is the number of events fully processed by the session.
func (m *Memory) EventSeq() uint64 {
	return m.eventSeq
}

// AdvanceEvent marks the end of an event and returns the new sequence number.
func (m *Memory) AdvanceEvent() uint64 {
	m.eventSeq++
	return m.eventSeq
}
