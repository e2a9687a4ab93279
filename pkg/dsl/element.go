package dsl

import (
	"context"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

// ElementBuilder provides a fluent API for configuring a tree or a branch.
type ElementBuilder struct {
	el       domain.Element
	children []*ElementBuilder
}

// Tree starts a tree element. Trees open their own executor.
func Tree(name string) *ElementBuilder {
	return &ElementBuilder{el: domain.Element{Kind: domain.KindTree, Name: name}}
}

// Branch starts a branch element.
func Branch(name string) *ElementBuilder {
	return &ElementBuilder{el: domain.Element{Kind: domain.KindBranch, Name: name}}
}

// Keys adds literal plain-text triggers.
func (b *ElementBuilder) Keys(keys ...string) *ElementBuilder {
	b.el.Trigger.Keys = append(b.el.Trigger.Keys, keys...)
	return b
}

// Callbacks adds callback-token triggers.
func (b *ElementBuilder) Callbacks(tokens ...string) *ElementBuilder {
	b.el.Trigger.Callbacks = append(b.el.Trigger.Callbacks, tokens...)
	return b
}

// Commands adds command triggers ("/start").
func (b *ElementBuilder) Commands(commands ...string) *ElementBuilder {
	b.el.Trigger.Commands = append(b.el.Trigger.Commands, commands...)
	return b
}

// When sets the trigger predicate.
func (b *ElementBuilder) When(p *domain.Value) *ElementBuilder {
	b.el.Trigger.Predicate = p
	return b
}

// WhenFunc sets a Go predicate.
func (b *ElementBuilder) WhenFunc(fn func(env domain.Env) bool) *ElementBuilder {
	return b.When(domain.Predicate(fn))
}

// Invoke sets the value resolved before the element's actions.
func (b *ElementBuilder) Invoke(v *domain.Value) *ElementBuilder {
	b.el.Invoke = v
	return b
}

// Do appends actions.
func (b *ElementBuilder) Do(actions ...domain.Action) *ElementBuilder {
	b.el.Actions = append(b.el.Actions, actions...)
	return b
}

// Send appends a send_message call named name.
func (b *ElementBuilder) Send(name string, payload *domain.Value) *ElementBuilder {
	return b.Do(Send(name, payload))
}

// Set appends a memory write.
func (b *ElementBuilder) Set(key string, v *domain.Value) *ElementBuilder {
	return b.Do(Set(key, v))
}

// Branches appends nested branches and trees.
func (b *ElementBuilder) Branches(children ...*ElementBuilder) *ElementBuilder {
	b.children = append(b.children, children...)
	return b
}

// Default sets the default branch.
func (b *ElementBuilder) Default(guard *domain.Value, actions ...domain.Action) *ElementBuilder {
	b.el.Default = &domain.DefaultBranch{Guard: guard, Actions: actions}
	return b
}

// Interruption overrides the interruption scope while the element is open.
func (b *ElementBuilder) Interruption(s domain.Scope) *ElementBuilder {
	b.el.Interruption = domain.ScopeOf(s)
	return b
}

// Scope declares a tree's interruption scope.
func (b *ElementBuilder) Scope(s domain.Scope) *ElementBuilder {
	b.el.Scope = s
	return b
}

// Controller names the tree's controller in the controller registry.
func (b *ElementBuilder) Controller(name string) *ElementBuilder {
	b.el.Controller = name
	return b
}

// Transition declares how control leaves the tree after this branch.
func (b *ElementBuilder) Transition(t *domain.Transition) *ElementBuilder {
	b.el.Transition = t
	return b
}

// Back is shorthand for Transition(domain.Back(target)).
func (b *ElementBuilder) Back(target string) *ElementBuilder {
	return b.Transition(domain.Back(target))
}

// Jump is shorthand for Transition(domain.Jump(target)).
func (b *ElementBuilder) Jump(target string) *ElementBuilder {
	return b.Transition(domain.Jump(target))
}

// Caller is shorthand for Transition(domain.Caller()).
func (b *ElementBuilder) Caller() *ElementBuilder {
	return b.Transition(domain.Caller())
}

// Build returns a fresh copy of the element and its children, unlinked.
// It is primarily used by RootBuilder, but exposed for advanced usage.
func (b *ElementBuilder) Build() *domain.Element {
	el := b.el
	el.Branches = make([]*domain.Element, 0, len(b.children))
	for _, c := range b.children {
		el.Branches = append(el.Branches, c.Build())
	}
	return &el
}

// Send builds a send_message action.
func Send(name string, payload *domain.Value) domain.Action {
	return domain.Action{Name: name, Kind: domain.ActionCall, Method: domain.MethodSend, Value: payload}
}

// Call builds an outbound call with an arbitrary method.
func Call(name, method string, payload *domain.Value) domain.Action {
	return domain.Action{Name: name, Kind: domain.ActionCall, Method: method, Value: payload}
}

// Set builds a memory write.
func Set(key string, v *domain.Value) domain.Action {
	return domain.Action{Kind: domain.ActionSet, Key: key, Value: v}
}

// Invoke builds an action resolving v for its side effects.
func Invoke(v *domain.Value) domain.Action {
	return domain.Action{Kind: domain.ActionInvoke, Value: v}
}

// Run adapts a Go function into an invoke action.
func Run(fn func(ctx context.Context, env domain.Env) error) domain.Action {
	return Invoke(domain.Func(func(ctx context.Context, env domain.Env) (any, error) {
		return nil, fn(ctx, env)
	}))
}

// Pause builds a wait action.
func Pause(d time.Duration, listener domain.Listener, onInterrupt ...domain.Action) domain.Action {
	return domain.Action{Kind: domain.ActionWait, Wait: &domain.Wait{
		Duration:    d,
		Listener:    listener,
		OnInterrupt: onInterrupt,
	}}
}

// ClearCache builds an action dropping the memoized owner.member.
func ClearCache(owner, member string) domain.Action {
	return domain.Action{Kind: domain.ActionClearCache, Cache: &domain.CacheRef{Owner: owner, Member: member}}
}

// Keyboard builds an action storing keyboard state owned by the active element.
func Keyboard(name string, state *domain.Value) domain.Action {
	return domain.Action{Kind: domain.ActionKeyboard, Key: name, Value: state}
}

// SwitchKeyboard builds an action replacing existing keyboard state.
func SwitchKeyboard(name string, state *domain.Value) domain.Action {
	return domain.Action{Kind: domain.ActionSwitchKeyboard, Key: name, Value: state}
}
