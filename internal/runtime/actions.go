package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// runActions executes actions of el in order. A failing action aborts the
// sequence unless it declares IgnoreError or OnError handlers. A kill always
// aborts.
func (t *turn) runActions(ctx context.Context, el *domain.Element, actions []domain.Action) error {
	for i := range actions {
		a := &actions[i]
		err := t.runAction(ctx, el, a)
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, domain.ErrSessionKilled):
			return err
		case a.IgnoreError:
			t.logger.Warn("action error ignored", "element", el.Path(), "action", a.Name, "err", err)
		case len(a.OnError) > 0:
			t.logger.Debug("action error handled", "element", el.Path(), "action", a.Name, "err", err)
			if herr := t.runActions(ctx, el, a.OnError); herr != nil {
				return herr
			}
		default:
			var aerr *domain.ActionError
			if errors.As(err, &aerr) {
				return err
			}
			return &domain.ActionError{Element: el.Path(), Action: a.Name, Err: err}
		}
	}
	return nil
}

func (t *turn) runAction(ctx context.Context, el *domain.Element, a *domain.Action) error {
	switch a.Kind {
	case domain.ActionCall, "":
		return t.call(ctx, el, a)

	case domain.ActionInvoke:
		_, err := t.resolve(ctx, a.Value)
		return err

	case domain.ActionSet:
		v, err := t.resolve(ctx, a.Value)
		if err != nil {
			return err
		}
		t.mem.Set(a.Key, v)
		return nil

	case domain.ActionWait:
		return t.wait(ctx, el, a)

	case domain.ActionClearCache:
		if a.Cache == nil {
			return fmt.Errorf("clear_cache without cache reference")
		}
		prev, _ := t.ClearCache(a.Cache.Owner, a.Cache.Member)
		if a.SaveTo != "" {
			t.mem.Set(a.SaveTo, prev)
		}
		return nil

	case domain.ActionKeyboard:
		v, err := t.resolve(ctx, a.Value)
		if err != nil {
			return err
		}
		t.mem.SetKeyboard(t.treeName(), a.Key, el, v)
		return nil

	case domain.ActionSwitchKeyboard:
		v, err := t.resolve(ctx, a.Value)
		if err != nil {
			return err
		}
		if err := t.mem.SwitchKeyboard(t.treeName(), a.Key, v); err != nil {
			return fmt.Errorf("%w: %s/%s", err, t.treeName(), a.Key)
		}
		return nil
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

// actionKey identifies the message sent by action name of el.
func actionKey(el *domain.Element, name string) string {
	if name == "" {
		return ""
	}
	return el.Path() + "#" + name
}

// call performs an outbound call for a and records its result.
func (t *turn) call(ctx context.Context, el *domain.Element, a *domain.Action) error {
	payload, err := t.resolve(ctx, a.Value)
	if err != nil {
		return err
	}
	method := a.Method
	if method == "" {
		method = domain.MethodSend
	}
	return t.perform(ctx, a, domain.Call{
		Identity: t.mem.Identity(),
		Method:   method,
		Payload:  payload,
		Action:   actionKey(el, a.Name),
	})
}

// edit replaces the message previously sent by the action named name of el.
func (t *turn) edit(ctx context.Context, el *domain.Element, name string) error {
	key := actionKey(el, name)
	ref, ok := t.mem.ActionMessage(key)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, key)
	}
	var a *domain.Action
	for i := range el.Actions {
		if el.Actions[i].Name == name {
			a = &el.Actions[i]
			break
		}
	}
	if a == nil {
		return fmt.Errorf("%w: no action %q in %s", domain.ErrElementNotFound, name, el.Path())
	}
	payload, err := t.resolve(ctx, a.Value)
	if err != nil {
		return err
	}
	return t.perform(ctx, a, domain.Call{
		Identity: t.mem.Identity(),
		Method:   domain.MethodEdit,
		Payload:  payload,
		Action:   key,
		Target:   &ref,
	})
}

func (t *turn) perform(ctx context.Context, a *domain.Action, call domain.Call) error {
	if t.e.performer == nil {
		return errNoPerformer
	}
	res, err := t.e.performer.Perform(ctx, call)
	if err != nil {
		return err
	}

	if ref, ok := messageRef(res); ok {
		t.mem.RecordActionMessage(call.Action, ref)
		if a.Registry != "" {
			t.mem.AppendRegistry(a.Registry, ref)
		}
	}
	if a.SaveTo != "" {
		t.mem.Set(a.SaveTo, res)
	}
	if a.Consumer != nil {
		return a.Consumer(ctx, t, res)
	}
	return nil
}

func messageRef(v any) (domain.MessageRef, bool) {
	switch r := v.(type) {
	case domain.MessageRef:
		return r, true
	case *domain.MessageRef:
		if r != nil {
			return *r, true
		}
	}
	return domain.MessageRef{}, false
}
