package runtime

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// handle is the session control loop for one event.
func (t *turn) handle(ctx context.Context) (Outcome, error) {
	f := t.mem.TopFrame()
	if f == nil {
		return t.atRoot(ctx)
	}

	// 1. Interruption takes precedence over the open tree.
	cand, err := t.interruption(ctx)
	if err != nil {
		return OutcomeError, err
	}
	if cand != nil {
		return OutcomeInterrupted, t.interrupt(ctx, cand)
	}

	// 2. Regular update of the innermost executor.
	res, err := t.update(ctx, f)
	if err != nil {
		return OutcomeError, err
	}

	switch res.kind {
	case resultMatched:
		return OutcomeMatched, nil
	case resultDefault:
		return OutcomeDefault, nil
	case resultNaturalClose:
		return OutcomeClosed, nil
	case resultTransition:
		return OutcomeTransition, t.transition(ctx, res.branch, res.branch.Transition)
	case resultUnrecognized:
		// 3. Unrecognized by the open sub-branch: another tree may claim the
		// event through its predicate, else the executor waits.
		cand, err := t.candidate(ctx, domain.ScopePredicates)
		if err != nil {
			return OutcomeError, err
		}
		if cand != nil {
			return OutcomeInterrupted, t.interrupt(ctx, cand)
		}
		f.Waiting = true
		t.logger.Debug("executor waiting", "tree", f.Tree.Name, "branch", res.branch.Path())
		return OutcomeWaiting, t.unresolved(ctx)
	}
	return OutcomeIgnored, t.unresolved(ctx)
}

// atRoot opens the first root tree whose literal trigger matches, then the
// first whose predicate holds, then falls back to Root's default branch.
func (t *turn) atRoot(ctx context.Context) (Outcome, error) {
	root := t.mem.Root()

	for _, tree := range root.Branches {
		if tree.Trigger.MatchesLiteral(t.ev) {
			_, err := t.openTree(ctx, tree, domain.ExecOptions{})
			return OutcomeOpened, err
		}
	}
	for _, tree := range root.Branches {
		if tree.Trigger.Predicate == nil {
			continue
		}
		ok, err := t.predicate(ctx, tree, tree.Trigger.Predicate)
		if err != nil {
			return OutcomeError, err
		}
		if ok {
			_, err := t.openTree(ctx, tree, domain.ExecOptions{})
			return OutcomeOpened, err
		}
	}

	if root.Default != nil {
		ran, err := t.runDefault(ctx, root, root.Default)
		if err != nil {
			return OutcomeError, err
		}
		if ran {
			return OutcomeDefault, nil
		}
	}
	return OutcomeIgnored, t.unresolved(ctx)
}

// effectiveScope resolves the interruption scope of the open path: the
// innermost override above the innermost tree, then the tree's own
// override, then the override of the last element closed inside that tree,
// then the tree's declared scope.
func (t *turn) effectiveScope() domain.Scope {
	f := t.mem.TopFrame()
	stack := t.mem.Stack()
	for i := len(stack) - 1; i >= 0 && stack[i] != f.Tree; i-- {
		if s := stack[i].Interruption; s != nil {
			return *s
		}
	}
	if s := f.Tree.Interruption; s != nil {
		return *s
	}
	if lc := t.mem.LastClosed(); lc != nil && lc.Interruption != nil && f.Tree.IsAncestorOf(lc) {
		return *lc.Interruption
	}
	return f.Tree.Scope
}

// interruption returns the root tree allowed to take over the session for
// the current event, or nil.
func (t *turn) interruption(ctx context.Context) (*domain.Element, error) {
	scope := t.effectiveScope()
	if scope == domain.ScopeNone {
		return nil, nil
	}
	return t.candidate(ctx, scope)
}

// candidate scans the root trees that are not open, category by category
// (callbacks, commands, keys, predicates); the first category yielding a
// match wins, ties broken by declaration order.
func (t *turn) candidate(ctx context.Context, scope domain.Scope) (*domain.Element, error) {
	root := t.mem.Root()
	for _, c := range scope.Categories() {
		for _, tree := range root.Branches {
			if t.mem.OnStack(tree) {
				continue
			}
			if c != domain.ScopePredicates {
				if tree.Trigger.Matches(c, t.ev) {
					return tree, nil
				}
				continue
			}
			if tree.Trigger.Predicate == nil {
				continue
			}
			ok, err := t.predicate(ctx, tree, tree.Trigger.Predicate)
			if err != nil {
				return nil, err
			}
			if ok {
				return tree, nil
			}
		}
	}
	return nil, nil
}

// interrupt fully resets the session and opens tree fresh.
func (t *turn) interrupt(ctx context.Context, tree *domain.Element) error {
	from := t.mem.Top()
	t.emitTransition(ctx, domain.HookInterrupt, "interrupt", from, tree.Name)
	t.logger.Debug("interrupted", "from", from.Path(), "tree", tree.Name)
	if err := t.reset(ctx); err != nil {
		return err
	}
	_, err := t.openTree(ctx, tree, domain.ExecOptions{})
	return err
}

// unresolved hands the event to the fallback handler.
func (t *turn) unresolved(ctx context.Context) error {
	if t.e.fallback == nil {
		return nil
	}
	return t.with(t.mem.Top(), func() error {
		return t.e.fallback.HandleUnresolved(ctx, t)
	})
}
