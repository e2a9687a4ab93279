package domain

import (
	"context"
	"fmt"
)

// Env is the view of the current session and event given to values,
// predicates and consumers. Writes go straight to the session memory.
type Env interface {
	Identity() Identity
	Event() *Event

	// Element is the element currently being activated or matched.
	Element() *Element

	// Controller is the controller instance of the innermost open tree, or nil.
	Controller() any

	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)

	Role() string
	Language() string
	SetLanguage(lang string)

	// Keyboard returns the state stored for the named keyboard of the open tree.
	Keyboard(name string) (any, bool)

	// ClearCache drops the memoized value of owner.member and returns it.
	ClearCache(owner, member string) (any, bool)
}

// ValueFunc produces a value from the current environment.
type ValueFunc func(ctx context.Context, env Env) (any, error)

// CacheStrategy decides how long a memoized value stays applicable.
type CacheStrategy string

const (
	// CacheSession keeps the value until it is cleared explicitly.
	CacheSession CacheStrategy = "session"
	// CacheTree keeps the value while the tree open at creation stays open.
	CacheTree CacheStrategy = "tree"
	// CacheElement keeps the value while the element active at creation stays on the stack.
	CacheElement CacheStrategy = "element"
	// CacheEvent keeps the value for the event that produced it only.
	CacheEvent CacheStrategy = "event"
)

// ParseCacheStrategy validates a strategy name. Empty means CacheSession.
func ParseCacheStrategy(s string) (CacheStrategy, error) {
	switch CacheStrategy(s) {
	case "":
		return CacheSession, nil
	case CacheSession, CacheTree, CacheElement, CacheEvent:
		return CacheStrategy(s), nil
	}
	return "", fmt.Errorf("unknown cache strategy %q", s)
}

// CachePolicy marks a Value as memoized under (Owner, Member, instance).
type CachePolicy struct {
	Owner    string        `json:"owner" yaml:"owner" mapstructure:"owner"`
	Member   string        `json:"member" yaml:"member" mapstructure:"member"`
	Strategy CacheStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty" mapstructure:"strategy"`
}

// Value is an opaque typed producer bound to the current event.
// Exactly one of Expr and Func is expected; Expr is handed to the
// configured evaluator, Func is called directly.
type Value struct {
	Expr  string
	Func  ValueFunc
	Const any

	Cache *CachePolicy
}

// Expr builds a Value evaluated by the expression evaluator.
func Expr(expr string) *Value {
	return &Value{Expr: expr}
}

// Func builds a Value backed by a Go function.
func Func(fn ValueFunc) *Value {
	return &Value{Func: fn}
}

// Const builds a Value that always yields v.
func Const(v any) *Value {
	return &Value{Const: v}
}

// Predicate adapts a boolean Go function into a Value.
func Predicate(fn func(env Env) bool) *Value {
	return &Value{Func: func(_ context.Context, env Env) (any, error) {
		return fn(env), nil
	}}
}

// Cached returns a copy of v memoized under owner.member with the given strategy.
func (v *Value) Cached(owner, member string, strategy CacheStrategy) *Value {
	c := *v
	c.Cache = &CachePolicy{Owner: owner, Member: member, Strategy: strategy}
	return &c
}

func (v *Value) String() string {
	switch {
	case v == nil:
		return "<nil>"
	case v.Expr != "":
		return v.Expr
	case v.Func != nil:
		return "<func>"
	}
	return fmt.Sprintf("%v", v.Const)
}
