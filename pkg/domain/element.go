package domain

import (
	"fmt"
	"strings"
)

// Kind tags the variant of an Element.
type Kind int

const (
	KindRoot Kind = iota
	KindTree
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindTree:
		return "tree"
	case KindBranch:
		return "branch"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// RootName is the name given to a Root without one.
const RootName = "root"

// DefaultBranch runs when no sibling branch matched and its guard holds.
// It never changes the stack depth.
type DefaultBranch struct {
	// Guard is optional; a nil guard always holds.
	Guard   *Value
	Actions []Action
}

// Element is a node of the conversation hierarchy: Root, Tree or Branch.
//
// Elements are built once, linked with Link and then shared read-only by
// every session. Fields must not be mutated after Link.
type Element struct {
	Kind Kind
	Name string

	// Level is the BFS depth from Root, assigned by Link.
	Level int

	Trigger Trigger

	// Invoke is resolved for its side effects before Actions run.
	Invoke  *Value
	Actions []Action

	// Branches are the nested elements. Root holds Trees; Trees and
	// Branches hold Branches and nested Trees.
	Branches []*Element
	Default  *DefaultBranch

	// Interruption overrides the interruption scope while this element is open.
	Interruption *Scope

	// Tree payload.
	Controller string
	// Scope is the tree's declared interruption scope.
	Scope Scope

	// Branch payload.
	Transition *Transition

	parent *Element
}

// NewRoot builds and links a Root holding the given trees.
func NewRoot(trees ...*Element) (*Element, error) {
	root := &Element{Kind: KindRoot, Name: RootName, Branches: trees}
	if err := Link(root); err != nil {
		return nil, err
	}
	return root, nil
}

// Parent returns the enclosing element, or nil for Root.
func (e *Element) Parent() *Element {
	return e.parent
}

// IsTree reports whether e opens a tree executor.
func (e *Element) IsTree() bool {
	return e.Kind == KindTree
}

// Child returns the direct child named name.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Branches {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Tree returns e if it is a tree, else the innermost enclosing tree.
func (e *Element) Tree() *Element {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.Kind == KindTree {
			return cur
		}
	}
	return nil
}

// Root walks up to the Root element.
func (e *Element) Root() *Element {
	cur := e
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// IsAncestorOf reports whether e strictly encloses o.
func (e *Element) IsAncestorOf(o *Element) bool {
	if o == nil {
		return false
	}
	for cur := o.parent; cur != nil; cur = cur.parent {
		if cur == e {
			return true
		}
	}
	return false
}

// Path is the slash-separated list of names from Root (excluded) to e.
// Root's path is the empty string.
func (e *Element) Path() string {
	var names []string
	for cur := e; cur != nil && cur.Kind != KindRoot; cur = cur.parent {
		names = append(names, cur.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// Lookup resolves a path produced by Path, starting at e.
func (e *Element) Lookup(path string) (*Element, error) {
	if path == "" {
		return e, nil
	}
	cur := e
	for _, name := range strings.Split(path, "/") {
		next := cur.Child(name)
		if next == nil {
			return nil, fmt.Errorf("%w: %q under %q", ErrElementNotFound, name, cur.Path())
		}
		cur = next
	}
	return cur, nil
}

func (e *Element) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.Kind.String() + ":" + e.Name
}

// Link assigns parents and BFS levels below root and validates the
// hierarchy. It is called once at load time; configuration errors are
// reported here whenever they can be detected statically.
func Link(root *Element) error {
	if root == nil || root.Kind != KindRoot {
		return &ConfigError{Path: "", Reason: "hierarchy must start at a root element"}
	}
	if root.Name == "" {
		root.Name = RootName
	}
	root.parent = nil
	root.Level = 0

	queue := []*Element{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		seen := make(map[string]bool, len(cur.Branches))
		for _, child := range cur.Branches {
			if child == nil {
				return &ConfigError{Path: cur.Path(), Reason: "nil child element"}
			}
			if child.Name == "" {
				return &ConfigError{Path: cur.Path(), Reason: "child element without a name"}
			}
			if seen[child.Name] {
				return &ConfigError{Path: cur.Path(), Reason: fmt.Sprintf("duplicate element name %q", child.Name)}
			}
			seen[child.Name] = true

			switch {
			case child.Kind == KindRoot:
				return &ConfigError{Path: cur.Path(), Reason: "root cannot be nested"}
			case cur.Kind == KindRoot && child.Kind != KindTree:
				return &ConfigError{Path: cur.Path(), Reason: fmt.Sprintf("root child %q must be a tree", child.Name)}
			}

			child.parent = cur
			child.Level = cur.Level + 1
			queue = append(queue, child)
		}
	}

	return validate(root, root)
}

func validate(root, e *Element) error {
	if e.Controller != "" && e.Kind != KindTree {
		return &ConfigError{Path: e.Path(), Reason: "only trees may declare a controller"}
	}
	if e.Transition != nil {
		if e.Kind != KindBranch {
			return &ConfigError{Path: e.Path(), Reason: "only branches may declare a transition"}
		}
		if err := validateTransition(root, e, e.Transition); err != nil {
			return err
		}
	}
	for _, c := range e.Branches {
		if err := validate(root, c); err != nil {
			return err
		}
	}
	return nil
}

func validateTransition(root, e *Element, t *Transition) error {
	switch t.Kind {
	case TransitionBack:
		if t.Target == "" {
			return &ConfigError{Path: e.Path(), Reason: "back transition without target"}
		}
		found := false
		for cur := e.parent; cur != nil; cur = cur.parent {
			if cur.Name == t.Target {
				found = true
				break
			}
		}
		if !found {
			return &ConfigError{Path: e.Path(), Reason: fmt.Sprintf("back target %q is not an enclosing element", t.Target)}
		}
	case TransitionJump:
		if t.Target == "" {
			return &ConfigError{Path: e.Path(), Reason: "jump transition without target"}
		}
		if tree := root.Child(t.Target); tree == nil {
			return &ConfigError{Path: e.Path(), Reason: fmt.Sprintf("jump target %q is not a root tree", t.Target)}
		}
	case TransitionCaller:
	default:
		return &ConfigError{Path: e.Path(), Reason: "unknown transition kind"}
	}
	if t.Options.Mode == ExecEdit && t.Options.EditAction == "" {
		return &ConfigError{Path: e.Path(), Reason: "edit transition without action name"}
	}
	if t.Next != nil {
		if t.Kind != TransitionJump || t.Next.Kind != TransitionJump {
			return &ConfigError{Path: e.Path(), Reason: "only a jump may chain to another jump"}
		}
		return validateTransition(root, e, t.Next)
	}
	return nil
}
