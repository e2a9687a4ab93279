// Package loader builds conversation hierarchies from YAML documents.
//
// Documents are parsed with yaml.v3 into generic maps and decoded into
// Document with mapstructure, so unknown keys are reported instead of
// silently ignored. Expressions ("when", "invoke", {expr: ...}) are kept as
// domain.Expr values for the configured evaluator; a Compiler option checks
// them at load time.
package loader

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Compiler checks an expression without running it.
type Compiler interface {
	Check(expr string) error
}

// CompilerFunc adapts a function into a Compiler.
type CompilerFunc func(expr string) error

func (f CompilerFunc) Check(expr string) error { return f(expr) }

// Loader turns documents into linked hierarchies.
type Loader struct {
	compiler    Compiler
	controllers *controller.Registry
}

type Option func(*Loader)

// WithCompiler validates every expression of the document.
func WithCompiler(c Compiler) Option {
	return func(l *Loader) {
		l.compiler = c
	}
}

// WithControllers rejects trees naming controllers missing from reg.
func WithControllers(reg *controller.Registry) Option {
	return func(l *Loader) {
		l.controllers = reg
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile reads and parses the document at path.
func (l *Loader) LoadFile(path string) (*domain.Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree document: %w", err)
	}
	root, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// Parse decodes a YAML document and returns its linked Root.
func (l *Loader) Parse(data []byte) (*domain.Element, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	var doc Document
	if err := Decode(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return l.Build(&doc)
}

// Decode decodes a generic map into out, converting duration strings and
// rejecting unknown keys.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Build converts doc into a linked Root.
func (l *Loader) Build(doc *Document) (*domain.Element, error) {
	root := &domain.Element{Kind: domain.KindRoot, Name: domain.RootName}
	for i := range doc.Trees {
		tree, err := l.element(&doc.Trees[i], domain.KindTree, doc.Trees[i].Name)
		if err != nil {
			return nil, err
		}
		root.Branches = append(root.Branches, tree)
	}
	if doc.Default != nil {
		def, err := l.defaultBranch(doc.Default, domain.RootName)
		if err != nil {
			return nil, err
		}
		root.Default = def
	}

	if err := domain.Link(root); err != nil {
		return nil, err
	}
	if l.controllers != nil {
		if err := l.controllers.Validate(root); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (l *Loader) element(d *ElementDoc, kind domain.Kind, path string) (*domain.Element, error) {
	if d.Tree {
		kind = domain.KindTree
	}
	el := &domain.Element{
		Kind: kind,
		Name: d.Name,
		Trigger: domain.Trigger{
			Keys:      d.Keys,
			Callbacks: d.Callbacks,
			Commands:  d.Commands,
		},
		Controller: d.Controller,
	}

	var err error
	if el.Trigger.Predicate, err = l.expr(d.When, path); err != nil {
		return nil, err
	}
	if el.Invoke, err = l.expr(d.Invoke, path); err != nil {
		return nil, err
	}
	if el.Actions, err = l.actions(d.Actions, path); err != nil {
		return nil, err
	}
	if d.Default != nil {
		if el.Default, err = l.defaultBranch(d.Default, path); err != nil {
			return nil, err
		}
	}

	if len(d.Scope) > 0 {
		if el.Scope, err = domain.ParseScope(d.Scope...); err != nil {
			return nil, configError(path, err)
		}
	}
	if len(d.Interruption) > 0 {
		s, err := domain.ParseScope(d.Interruption...)
		if err != nil {
			return nil, configError(path, err)
		}
		el.Interruption = &s
	}
	if el.Transition, err = transition(d, path); err != nil {
		return nil, err
	}

	for i := range d.Branches {
		child := &d.Branches[i]
		c, err := l.element(child, domain.KindBranch, path+"/"+child.Name)
		if err != nil {
			return nil, err
		}
		el.Branches = append(el.Branches, c)
	}
	return el, nil
}

func (l *Loader) defaultBranch(d *DefaultDoc, path string) (*domain.DefaultBranch, error) {
	guard, err := l.expr(d.When, path)
	if err != nil {
		return nil, err
	}
	actions, err := l.actions(d.Actions, path+"/default")
	if err != nil {
		return nil, err
	}
	return &domain.DefaultBranch{Guard: guard, Actions: actions}, nil
}

func (l *Loader) actions(docs []ActionDoc, path string) ([]domain.Action, error) {
	var out []domain.Action
	for i := range docs {
		a, err := l.action(&docs[i], i, path)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *Loader) action(d *ActionDoc, index int, path string) (domain.Action, error) {
	a := domain.Action{
		Name:        d.Name,
		Registry:    d.Registry,
		SaveTo:      d.SaveTo,
		IgnoreError: d.IgnoreError,
	}

	var kinds []string
	var err error
	if d.Send != nil {
		kinds = append(kinds, "send")
		a.Kind, a.Method = domain.ActionCall, domain.MethodSend
		a.Value, err = l.value(d.Send, path)
	}
	if d.Call != "" {
		kinds = append(kinds, "call")
		a.Kind, a.Method = domain.ActionCall, d.Call
		a.Value, err = l.value(d.Payload, path)
	}
	if d.Invoke != "" {
		kinds = append(kinds, "invoke")
		a.Kind = domain.ActionInvoke
		a.Value, err = l.expr(d.Invoke, path)
	}
	if d.Set != "" {
		kinds = append(kinds, "set")
		a.Kind, a.Key = domain.ActionSet, d.Set
		a.Value, err = l.value(d.Value, path)
	}
	if d.Wait > 0 {
		kinds = append(kinds, "wait")
		a.Kind = domain.ActionWait
		a.Wait = &domain.Wait{Duration: d.Wait, Listener: interruptOn(d.InterruptOn)}
		a.Wait.OnInterrupt, err = l.actions(d.OnInterrupt, path)
	}
	if d.ClearCache != "" {
		kinds = append(kinds, "clear_cache")
		owner, member, ok := strings.Cut(d.ClearCache, ".")
		if !ok || owner == "" || member == "" {
			return a, configError(path, fmt.Errorf("clear_cache %q must be <owner>.<member>", d.ClearCache))
		}
		a.Kind = domain.ActionClearCache
		a.Cache = &domain.CacheRef{Owner: owner, Member: member}
	}
	if d.Keyboard != "" {
		kinds = append(kinds, "keyboard")
		a.Kind, a.Key = domain.ActionKeyboard, d.Keyboard
		a.Value, err = l.value(d.State, path)
	}
	if d.SwitchKeyboard != "" {
		kinds = append(kinds, "switch_keyboard")
		a.Kind, a.Key = domain.ActionSwitchKeyboard, d.SwitchKeyboard
		a.Value, err = l.value(d.State, path)
	}
	if err != nil {
		return a, err
	}

	switch len(kinds) {
	case 0:
		return a, configError(path, fmt.Errorf("action %d has no kind", index))
	case 1:
	default:
		return a, configError(path, fmt.Errorf("action %d mixes %s", index, strings.Join(kinds, ", ")))
	}

	if a.Name == "" {
		a.Name = kinds[0] + strconv.Itoa(index)
	}
	if a.OnError, err = l.actions(d.OnError, path); err != nil {
		return a, err
	}
	return a, nil
}

// value converts a scalar or an {expr, cache} map.
func (l *Loader) value(raw any, path string) (*domain.Value, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Const(raw), nil
	}
	expr, ok := m["expr"].(string)
	if !ok {
		return domain.Const(raw), nil
	}

	v, err := l.expr(expr, path)
	if err != nil {
		return nil, err
	}
	if c, ok := m["cache"]; ok {
		var policy domain.CachePolicy
		if err := Decode(c, &policy); err != nil {
			return nil, configError(path, fmt.Errorf("cache: %w", err))
		}
		if policy.Strategy, err = domain.ParseCacheStrategy(string(policy.Strategy)); err != nil {
			return nil, configError(path, err)
		}
		if policy.Owner == "" || policy.Member == "" {
			return nil, configError(path, fmt.Errorf("cache needs owner and member"))
		}
		v.Cache = &policy
	}
	return v, nil
}

func (l *Loader) expr(expr, path string) (*domain.Value, error) {
	if expr == "" {
		return nil, nil
	}
	if l.compiler != nil {
		if err := l.compiler.Check(expr); err != nil {
			return nil, configError(path, err)
		}
	}
	return domain.Expr(expr), nil
}

func transition(d *ElementDoc, path string) (*domain.Transition, error) {
	var set []*domain.Transition
	if d.Back != "" {
		set = append(set, domain.Back(d.Back))
	}
	if d.Jump != "" {
		set = append(set, domain.Jump(d.Jump))
	}
	if d.Caller {
		set = append(set, domain.Caller())
	}
	if d.Transition != nil {
		t, err := longTransition(d.Transition, path)
		if err != nil {
			return nil, err
		}
		set = append(set, t)
	}
	switch len(set) {
	case 0:
		return nil, nil
	case 1:
		return set[0], nil
	}
	return nil, configError(path, fmt.Errorf("an element declares at most one transition"))
}

func longTransition(d *TransitionDoc, path string) (*domain.Transition, error) {
	kind, err := domain.ParseTransitionKind(d.Kind)
	if err != nil {
		return nil, configError(path, err)
	}
	t := &domain.Transition{Kind: kind, Target: d.Target}
	switch d.Mode {
	case "", "execute":
		t.Options.IgnoreError = d.IgnoreError
	case "edit":
		t.Edit(d.Edit, d.IgnoreError)
	case "silent":
		t.Silent()
	default:
		return nil, configError(path, fmt.Errorf("unknown transition mode %q", d.Mode))
	}
	if d.Then != nil {
		if t.Next, err = longTransition(d.Then, path); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// interruptOn builds a wait listener accepting the given texts or commands.
func interruptOn(words []string) domain.Listener {
	if len(words) == 0 {
		return nil
	}
	return func(_ context.Context, ev domain.Event) bool {
		return slices.Contains(words, ev.Text) || (ev.Command != "" && slices.Contains(words, ev.Command))
	}
}

func configError(path string, err error) error {
	return &domain.ConfigError{Path: path, Reason: err.Error()}
}
