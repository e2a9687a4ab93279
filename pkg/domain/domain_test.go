package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_AssignsLevels(t *testing.T) {
	leaf := &Element{Kind: KindBranch, Name: "leaf"}
	nested := &Element{Kind: KindTree, Name: "nested", Branches: []*Element{leaf}}
	branch := &Element{Kind: KindBranch, Name: "b", Branches: []*Element{nested}}
	tree := &Element{Kind: KindTree, Name: "t", Branches: []*Element{branch}}

	root, err := NewRoot(tree)
	require.NoError(t, err)

	assert.Equal(t, 0, root.Level)
	assert.Equal(t, 1, tree.Level)
	assert.Equal(t, 2, branch.Level)
	assert.Equal(t, 3, nested.Level)
	assert.Equal(t, 4, leaf.Level)

	assert.Equal(t, nested, leaf.Tree())
	assert.Equal(t, root, leaf.Root())
	assert.True(t, tree.IsAncestorOf(leaf))
	assert.False(t, leaf.IsAncestorOf(tree))
	assert.Equal(t, "t/b/nested/leaf", leaf.Path())

	got, err := root.Lookup("t/b/nested/leaf")
	require.NoError(t, err)
	assert.Same(t, leaf, got)

	_, err = root.Lookup("t/missing")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestLink_Errors(t *testing.T) {
	tests := []struct {
		name string
		root *Element
	}{
		{"not a root", &Element{Kind: KindTree, Name: "t"}},
		{"nameless child", &Element{Kind: KindRoot, Branches: []*Element{{Kind: KindTree}}}},
		{"nested root", &Element{Kind: KindRoot, Branches: []*Element{{Kind: KindTree, Name: "t", Branches: []*Element{{Kind: KindRoot, Name: "r"}}}}}},
		{"edit without action", &Element{Kind: KindRoot, Branches: []*Element{
			{Kind: KindTree, Name: "t", Branches: []*Element{
				{Kind: KindBranch, Name: "b", Transition: &Transition{Kind: TransitionBack, Target: "t", Options: ExecOptions{Mode: ExecEdit}}},
			}},
		}}},
		{"back chains", &Element{Kind: KindRoot, Branches: []*Element{
			{Kind: KindTree, Name: "t", Branches: []*Element{
				{Kind: KindBranch, Name: "b", Transition: Back("t").Then(Jump("t"))},
			}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Link(tt.root)
			var cerr *ConfigError
			assert.True(t, errors.As(err, &cerr), "expected ConfigError, got %v", err)
		})
	}
}

func TestLink_JumpChain(t *testing.T) {
	a := &Element{Kind: KindTree, Name: "a", Branches: []*Element{
		{Kind: KindBranch, Name: "go", Transition: Jump("b").Then(Jump("c"))},
	}}
	_, err := NewRoot(a, &Element{Kind: KindTree, Name: "b"}, &Element{Kind: KindTree, Name: "c"})
	assert.NoError(t, err)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args []string
	}{
		{"/start", "/start", nil},
		{"/start@canopy_bot ref42", "/start", []string{"ref42"}},
		{"  /help me now ", "/help", []string{"me", "now"}},
		{"hello", "", nil},
		{"/", "", nil},
		{"/@canopy_bot", "", nil},
		{"/@canopy_bot ref42", "", nil},
		{"", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args := ParseCommand(tt.text)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestTrigger_Matches(t *testing.T) {
	tr := Trigger{Keys: []string{"yes"}, Callbacks: []string{"cb:yes"}, Commands: []string{"/yes"}}

	ev := NewTextEvent(NewIdentity(1, 1), "yes")
	assert.True(t, tr.MatchesLiteral(&ev))
	assert.True(t, tr.Matches(ScopeKeys, &ev))
	assert.False(t, tr.Matches(ScopeCommands, &ev))

	ev.HasMedia = true
	assert.False(t, tr.MatchesKey(&ev), "keys never match events with media")

	cb := NewCallbackEvent(NewIdentity(1, 1), "cb:yes")
	assert.True(t, tr.Matches(ScopeCallbacks, &cb))

	cmd := NewTextEvent(NewIdentity(1, 1), "/yes please")
	assert.True(t, tr.Matches(ScopeCommands, &cmd))
	assert.False(t, tr.MatchesKey(&cmd))
}

func TestScope(t *testing.T) {
	s, err := ParseScope("keys", "Callbacks")
	require.NoError(t, err)
	assert.Equal(t, []Scope{ScopeCallbacks, ScopeKeys}, s.Categories())

	all, err := ParseScope("all")
	require.NoError(t, err)
	assert.Equal(t, []Scope{ScopeCallbacks, ScopeCommands, ScopeKeys, ScopePredicates}, all.Categories())

	none, err := ParseScope("keys", "none")
	require.NoError(t, err)
	assert.Equal(t, ScopeNone, none)
	assert.Empty(t, none.Categories())

	_, err = ParseScope("everything")
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	id := NewIdentity(42, -100)
	assert.Equal(t, "42:-100", id.String())

	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	private, err := ParseIdentity("7")
	require.NoError(t, err)
	assert.Equal(t, NewIdentity(7, 7), private)

	_, err = ParseIdentity("x:1")
	assert.Error(t, err)

	m := map[Identity]int{id: 1}
	assert.Equal(t, 1, m[NewIdentity(42, -100)])
}

func TestLifecycleHooks_Merge(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnTreeOpen: func(_ context.Context, _ *ElementHook) { calls = append(calls, "a") }}
	b := LifecycleHooks{OnTreeOpen: func(_ context.Context, _ *ElementHook) { calls = append(calls, "b") }}

	merged := a.Merge(b)
	merged.OnTreeOpen(context.Background(), &ElementHook{})
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Nil(t, merged.OnTreeClose)
}
