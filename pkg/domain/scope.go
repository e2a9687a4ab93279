package domain

import (
	"fmt"
	"strings"
)

// Scope is the set of trigger categories allowed to interrupt an open tree.
type Scope uint8

const (
	ScopeCallbacks Scope = 1 << iota
	ScopeKeys
	ScopeCommands
	ScopePredicates

	// ScopeNone disables interruption entirely.
	ScopeNone Scope = 0
	// ScopeAll enables every category.
	ScopeAll = ScopeCallbacks | ScopeKeys | ScopeCommands | ScopePredicates
)

// scopeOrder is the order in which interruption candidates are resolved.
var scopeOrder = []Scope{ScopeCallbacks, ScopeCommands, ScopeKeys, ScopePredicates}

var scopeNames = map[string]Scope{
	"callbacks":  ScopeCallbacks,
	"keys":       ScopeKeys,
	"commands":   ScopeCommands,
	"predicates": ScopePredicates,
	"all":        ScopeAll,
	"none":       ScopeNone,
}

// Has reports whether every category of c is enabled in s.
func (s Scope) Has(c Scope) bool {
	return c != ScopeNone && s&c == c
}

// Categories returns the enabled categories in resolution order:
// callbacks, commands, keys, predicates.
func (s Scope) Categories() []Scope {
	out := make([]Scope, 0, len(scopeOrder))
	for _, c := range scopeOrder {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeAll:
		return "all"
	}
	var parts []string
	for _, c := range scopeOrder {
		if s.Has(c) {
			for name, v := range scopeNames {
				if v == c {
					parts = append(parts, name)
				}
			}
		}
	}
	return strings.Join(parts, ",")
}

// ParseScope combines scope names ("callbacks", "keys", "commands",
// "predicates", "all", "none") into a Scope.
func ParseScope(names ...string) (Scope, error) {
	var s Scope
	for _, n := range names {
		v, ok := scopeNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return ScopeNone, fmt.Errorf("unknown interruption scope %q", n)
		}
		if v == ScopeNone {
			return ScopeNone, nil
		}
		s |= v
	}
	return s, nil
}

// ScopeOf returns a pointer to s, for use as an element override.
func ScopeOf(s Scope) *Scope {
	return &s
}
