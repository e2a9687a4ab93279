package loader

import "time"

// Document is the YAML shape of a conversation hierarchy.
//
//	default:
//	  actions:
//	    - send: "Say /start to begin"
//	trees:
//	  - name: greet
//	    commands: [/start]
//	    scope: [commands]
//	    actions:
//	      - name: hello
//	        send: "Hi! Continue?"
//	    branches:
//	      - name: "yes"
//	        keys: ["yes"]
//	        actions: [{send: Great}]
type Document struct {
	Default *DefaultDoc  `mapstructure:"default"`
	Trees   []ElementDoc `mapstructure:"trees"`
}

// ElementDoc describes a tree or a branch. Entries of "trees" are trees;
// entries of "branches" are branches unless they set tree: true.
type ElementDoc struct {
	Name string `mapstructure:"name"`
	Tree bool   `mapstructure:"tree"`

	Keys      []string `mapstructure:"keys"`
	Callbacks []string `mapstructure:"callbacks"`
	Commands  []string `mapstructure:"commands"`
	When      string   `mapstructure:"when"`

	Invoke   string       `mapstructure:"invoke"`
	Actions  []ActionDoc  `mapstructure:"actions"`
	Branches []ElementDoc `mapstructure:"branches"`
	Default  *DefaultDoc  `mapstructure:"default"`

	Interruption []string `mapstructure:"interruption"`
	Scope        []string `mapstructure:"scope"`
	Controller   string   `mapstructure:"controller"`

	// Transition shorthands; at most one of them, or Transition, is set.
	Back       string         `mapstructure:"back"`
	Jump       string         `mapstructure:"jump"`
	Caller     bool           `mapstructure:"caller"`
	Transition *TransitionDoc `mapstructure:"transition"`
}

// TransitionDoc is the long form of a transition.
type TransitionDoc struct {
	Kind        string         `mapstructure:"kind"`
	Target      string         `mapstructure:"target"`
	Mode        string         `mapstructure:"mode"` // execute, edit or silent
	Edit        string         `mapstructure:"edit"`
	IgnoreError bool           `mapstructure:"ignore_error"`
	Then        *TransitionDoc `mapstructure:"then"`
}

// DefaultDoc is a default branch.
type DefaultDoc struct {
	When    string      `mapstructure:"when"`
	Actions []ActionDoc `mapstructure:"actions"`
}

// ActionDoc is one action. Exactly one of send, call, invoke, set, wait,
// clear_cache, keyboard and switch_keyboard selects its kind.
//
// Payloads, set values and keyboard states are constants unless written as
// {expr: "...", cache: {owner, member, strategy}}.
type ActionDoc struct {
	Name string `mapstructure:"name"`

	Send    any    `mapstructure:"send"`
	Call    string `mapstructure:"call"`
	Payload any    `mapstructure:"payload"`

	Invoke string `mapstructure:"invoke"`

	Set   string `mapstructure:"set"`
	Value any    `mapstructure:"value"`

	Wait        time.Duration `mapstructure:"wait"`
	InterruptOn []string      `mapstructure:"interrupt_on"`
	OnInterrupt []ActionDoc   `mapstructure:"on_interrupt"`

	ClearCache string `mapstructure:"clear_cache"`

	Keyboard       string `mapstructure:"keyboard"`
	SwitchKeyboard string `mapstructure:"switch_keyboard"`
	State          any    `mapstructure:"state"`

	Registry    string      `mapstructure:"registry"`
	SaveTo      string      `mapstructure:"save_to"`
	IgnoreError bool        `mapstructure:"ignore_error"`
	OnError     []ActionDoc `mapstructure:"on_error"`
}
