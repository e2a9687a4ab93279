package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// transition applies tr, declared by from, to the session stacks.
func (t *turn) transition(ctx context.Context, from *domain.Element, tr *domain.Transition) error {
	var err error
	switch tr.Kind {
	case domain.TransitionBack:
		err = t.back(ctx, from, tr.Target, tr.Options)
	case domain.TransitionJump:
		err = t.jump(ctx, from, tr)
	case domain.TransitionCaller:
		err = t.caller(ctx, from, tr.Options)
	default:
		err = fmt.Errorf("unknown transition kind %d", tr.Kind)
	}
	if err != nil {
		return &domain.TransitionError{Transition: tr, Err: err}
	}
	return nil
}

// back pops the stack until the element named target is on top, closing
// every tree executor it removes, then reactivates target with opts.
// The stack is left untouched when target is not open.
func (t *turn) back(ctx context.Context, from *domain.Element, target string, opts domain.ExecOptions) error {
	idx := t.mem.IndexOf(target)
	if idx < 0 {
		return fmt.Errorf("%w: %q is not open", domain.ErrTargetNotFound, target)
	}
	t.emitTransition(ctx, domain.HookTransition, domain.TransitionBack.String(), from, target)
	t.logger.Debug("back", "from", from.Path(), "target", target)

	for t.mem.Depth()-1 > idx {
		if top := t.mem.Top(); top.IsTree() {
			if err := t.closeFrame(ctx, t.mem.TopFrame()); err != nil {
				return err
			}
			continue
		}
		t.mem.Pop()
	}
	t.syncFrame()
	return t.activate(ctx, t.mem.Top(), opts)
}

// jump resets the session to Root, opens the root tree named tr.Target
// fresh, records the call-site and then applies the chained transition.
func (t *turn) jump(ctx context.Context, from *domain.Element, tr *domain.Transition) error {
	tree := t.mem.Root().Child(tr.Target)
	if tree == nil || !tree.IsTree() {
		return fmt.Errorf("%w: %q is not a root tree", domain.ErrTargetNotFound, tr.Target)
	}
	caller := ""
	if frames := t.mem.Frames(); len(frames) > 0 {
		caller = frames[0].Tree.Name
	}
	t.emitTransition(ctx, domain.HookTransition, domain.TransitionJump.String(), from, tree.Name)
	t.logger.Debug("jump", "from", from.Path(), "target", tree.Name)

	if err := t.reset(ctx); err != nil {
		return err
	}
	if caller != "" && caller != tree.Name {
		t.mem.SetCaller(tree.Name, caller)
	}
	if _, err := t.openTree(ctx, tree, tr.Options); err != nil {
		return err
	}
	if tr.Next != nil {
		return t.jump(ctx, tree, tr.Next)
	}
	return nil
}

// caller returns to the tree that jumped into the current one: BACK when
// it is still open, JUMP otherwise.
func (t *turn) caller(ctx context.Context, from *domain.Element, opts domain.ExecOptions) error {
	frames := t.mem.Frames()
	if len(frames) == 0 {
		return domain.ErrNoCaller
	}
	current := frames[0].Tree.Name
	target, ok := t.mem.Caller(current)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoCaller, current)
	}
	if t.mem.IndexOf(target) >= 0 {
		return t.back(ctx, from, target, opts)
	}
	return t.jump(ctx, from, &domain.Transition{Kind: domain.TransitionJump, Target: target, Options: opts})
}
