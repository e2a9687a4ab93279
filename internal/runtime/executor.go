package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

type resultKind int

const (
	resultMatched resultKind = iota
	resultDefault
	resultIgnored
	// resultNaturalClose: the executor closed and the new top of stack
	// has already been reactivated.
	resultNaturalClose
	resultTransition
	resultUnrecognized
)

// updateResult is what the tree executor reports for one event.
type updateResult struct {
	kind   resultKind
	branch *domain.Element
}

// update resolves the next branch of frame f for the current event.
//
// Candidates are the children of the open branch, else the tree's
// top-level branches; the first match in declaration order wins.
func (t *turn) update(ctx context.Context, f *memory.Frame) (updateResult, error) {
	scope := f.Active()

	for _, b := range scope.Branches {
		ok, err := t.matches(ctx, b)
		if err != nil {
			return updateResult{}, err
		}
		if !ok {
			continue
		}
		return t.enter(ctx, f, b)
	}

	// No match: default branch of the open branch, else of the tree.
	owner, def := f.Tree, f.Tree.Default
	if f.Current != nil && f.Current.Default != nil {
		owner, def = f.Current, f.Current.Default
	}
	if def != nil {
		ran, err := t.runDefault(ctx, owner, def)
		if err != nil {
			return updateResult{}, err
		}
		if ran {
			return updateResult{kind: resultDefault, branch: owner}, nil
		}
	}

	if f.Current == nil {
		return updateResult{kind: resultIgnored}, nil
	}
	return updateResult{kind: resultUnrecognized, branch: f.Current}, nil
}

// matches reports whether any trigger condition of el holds for the event.
func (t *turn) matches(ctx context.Context, el *domain.Element) (bool, error) {
	if el.Trigger.MatchesLiteral(t.ev) {
		return true, nil
	}
	if el.Trigger.Predicate == nil {
		return false, nil
	}
	return t.predicate(ctx, el, el.Trigger.Predicate)
}

// enter opens b under frame f and runs it.
func (t *turn) enter(ctx context.Context, f *memory.Frame, b *domain.Element) (updateResult, error) {
	if b.IsTree() {
		closed, err := t.openTree(ctx, b, domain.ExecOptions{})
		if err != nil {
			return updateResult{}, err
		}
		if closed {
			return updateResult{kind: resultNaturalClose, branch: b}, nil
		}
		return updateResult{kind: resultMatched, branch: b}, nil
	}

	t.mem.Push(b)
	f.Current = b
	f.Waiting = false
	t.emitElement(ctx, domain.HookBranchEnter, b)
	t.logger.Debug("branch entered", "tree", f.Tree.Name, "branch", b.Path())

	if err := t.activate(ctx, b, domain.ExecOptions{}); err != nil {
		return updateResult{}, err
	}

	switch {
	case b.Transition != nil:
		return updateResult{kind: resultTransition, branch: b}, nil
	case terminal(b):
		return updateResult{kind: resultNaturalClose, branch: b}, t.closeNatural(ctx)
	}
	return updateResult{kind: resultMatched, branch: b}, nil
}

// terminal reports whether el offers no continuation.
func terminal(el *domain.Element) bool {
	return len(el.Branches) == 0 && el.Default == nil
}

// runDefault runs def when its guard holds.
func (t *turn) runDefault(ctx context.Context, owner *domain.Element, def *domain.DefaultBranch) (bool, error) {
	if def.Guard != nil {
		ok, err := t.predicate(ctx, owner, def.Guard)
		if err != nil || !ok {
			return false, err
		}
	}
	err := t.with(owner, func() error {
		return t.runActions(ctx, owner, def.Actions)
	})
	return true, err
}

// openTree pushes tree and a fresh executor for it, then runs the tree
// with opts. A tree without continuation closes naturally right away; the
// returned flag reports it.
func (t *turn) openTree(ctx context.Context, tree *domain.Element, opts domain.ExecOptions) (bool, error) {
	f := &memory.Frame{Tree: tree}
	t.mem.Push(tree)
	t.mem.ForgetLastClosed()
	if err := t.attachController(ctx, f); err != nil {
		// attachController leaves no frame behind on failure.
		t.mem.Pop()
		return false, err
	}
	t.emitElement(ctx, domain.HookTreeOpen, tree)
	t.logger.Debug("tree opened", "tree", tree.Name)

	if err := t.activate(ctx, tree, opts); err != nil {
		return false, err
	}
	if terminal(tree) {
		return true, t.closeNatural(ctx)
	}
	return false, nil
}

// attachController builds the controller of f.Tree, records f on the
// tree-executor stack and runs OnCreate. A failing OnCreate drops the frame
// again.
func (t *turn) attachController(ctx context.Context, f *memory.Frame) error {
	f.InstanceID = t.e.newID()
	if f.Tree.Controller != "" {
		inst, err := t.e.controllers.New(f.Tree.Controller)
		if err != nil {
			return err
		}
		f.Controller = inst
	}
	t.mem.PushFrame(f)

	creator, ok := f.Controller.(controller.Creator)
	if !ok {
		return nil
	}
	return t.with(f.Tree, func() error {
		if err := creator.OnCreate(ctx, t); err != nil {
			t.mem.PopFrame()
			return fmt.Errorf("controller %s create: %w", f.Tree.Controller, err)
		}
		return nil
	})
}

// closeFrame pops every element down to and including f.Tree, then removes
// f. The controller's OnClose runs exactly once per removal, whatever
// happens in between.
func (t *turn) closeFrame(ctx context.Context, f *memory.Frame) (err error) {
	defer func() {
		closer, ok := f.Controller.(controller.Closer)
		if !ok {
			return
		}
		cerr := t.with(f.Tree, func() error { return closer.OnClose(ctx, t) })
		if cerr != nil {
			t.logger.Warn("controller close failed", "tree", f.Tree.Name, "err", cerr)
			if err == nil {
				err = fmt.Errorf("controller %s close: %w", f.Tree.Controller, cerr)
			}
		}
	}()

	for t.mem.Depth() > 1 && t.mem.Top() != f.Tree {
		t.mem.Pop()
	}
	t.mem.Pop()
	t.mem.PopFrame()
	t.emitElement(ctx, domain.HookTreeClose, f.Tree)
	t.logger.Debug("tree closed", "tree", f.Tree.Name)
	return nil
}

// syncFrame points the innermost frame at the new top of stack.
func (t *turn) syncFrame() {
	f := t.mem.TopFrame()
	if f == nil {
		return
	}
	if top := t.mem.Top(); top != f.Tree {
		f.Current = top
	} else {
		f.Current = nil
	}
}

// closeNatural closes the innermost executor and reactivates the element
// that becomes the top of the stack.
func (t *turn) closeNatural(ctx context.Context) error {
	f := t.mem.TopFrame()
	if f == nil {
		return nil
	}
	if err := t.closeFrame(ctx, f); err != nil {
		return err
	}
	t.syncFrame()
	return t.activate(ctx, t.mem.Top(), domain.ExecOptions{})
}

// reset closes every executor, innermost first, leaving only Root.
func (t *turn) reset(ctx context.Context) error {
	var first error
	for f := t.mem.TopFrame(); f != nil; f = t.mem.TopFrame() {
		if err := t.closeFrame(ctx, f); err != nil && first == nil {
			first = err
		}
	}
	for t.mem.Pop() != nil {
	}
	return first
}

// activate runs el according to opts: its invoke value and actions, an
// edit of a previously sent message, or nothing.
func (t *turn) activate(ctx context.Context, el *domain.Element, opts domain.ExecOptions) error {
	err := t.with(el, func() error {
		switch opts.Mode {
		case domain.ExecSilent:
			return nil
		case domain.ExecEdit:
			return t.edit(ctx, el, opts.EditAction)
		}
		if el.Invoke != nil {
			if _, err := t.resolve(ctx, el.Invoke); err != nil {
				return &domain.ActionError{Element: el.Path(), Action: "invoke", Err: err}
			}
		}
		return t.runActions(ctx, el, el.Actions)
	})
	if err != nil && opts.IgnoreError {
		t.logger.Warn("activation error ignored", "element", el.Path(), "err", err)
		return nil
	}
	return err
}
