// Package goja implements ports.Evaluator with Goja, a Go implementation of
// ECMAScript 5.1+.
//
// An expression is a script whose completion value is the result:
//
//	text == "yes" && role == "admin"
//	set("count", (get("count") || 0) + 1)
//
// The following globals are bound for every evaluation:
//
//	text, command, args, callback, hasMedia, event   the current event
//	participant, conversation                      the session identity
//	role, lang                                     memory role and language
//	element                                        name of the active element
//	controller                                     controller of the open tree
//	get(k), set(k, v), del(k)                      memory variables
//	setLang(l)                                     change the session language
//	keyboard(name)                                 keyboard state of the open tree
//
// Programs are compiled once and shared; every evaluation runs on a fresh
// runtime, so the Evaluator is safe for concurrent use.
package goja

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/dop251/goja"
)

// ErrInterrupted is returned when an evaluation outlives its context or timeout.
var ErrInterrupted = errors.New("script interrupted")

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = time.Second

// Evaluator evaluates JavaScript expressions against a domain.Env.
type Evaluator struct {
	timeout time.Duration
	globals map[string]any
	logger  *slog.Logger

	mu       sync.RWMutex
	programs map[string]*goja.Program
}

type Option func(*Evaluator)

// WithTimeout bounds each evaluation. Zero disables the bound; the
// context still interrupts the script.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithGlobal exposes v to every script under name.
func WithGlobal(name string, v any) Option {
	return func(e *Evaluator) {
		e.globals[name] = v
	}
}

// WithLogger sets the logger backing the script log() helper.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		timeout:  DefaultTimeout,
		globals:  make(map[string]any),
		logger:   logging.NewNop(),
		programs: make(map[string]*goja.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile compiles expr, or returns the program compiled earlier.
// Loaders call it to reject malformed expressions up front.
func (e *Evaluator) Compile(expr string) (*goja.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := goja.Compile("", expr, true)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	e.mu.Lock()
	e.programs[expr] = p
	e.mu.Unlock()
	return p, nil
}

// Check reports whether expr compiles. It satisfies loader.Compiler.
func (e *Evaluator) Check(expr string) error {
	_, err := e.Compile(expr)
	return err
}

// Evaluate runs expr and exports its completion value. undefined and null
// become nil.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, env domain.Env) (any, error) {
	p, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := e.bind(vm, env); err != nil {
		return nil, fmt.Errorf("bind %q: %w", expr, err)
	}

	ictx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		ictx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()
	stop := context.AfterFunc(ictx, func() {
		vm.Interrupt(ErrInterrupted)
	})
	defer stop()

	v, err := vm.RunProgram(p)
	if err != nil {
		var ierr *goja.InterruptedError
		if errors.As(err, &ierr) {
			return nil, fmt.Errorf("evaluate %q: %w", expr, ErrInterrupted)
		}
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

func (e *Evaluator) bind(vm *goja.Runtime, env domain.Env) error {
	id := env.Identity()
	vars := map[string]any{
		"participant":  id.ParticipantID,
		"conversation": id.ConversationID,
		"role":         env.Role(),
		"lang":         env.Language(),
		"controller":   env.Controller(),
		"text":         "",
		"command":      "",
		"args":         []string{},
		"callback":     "",
		"hasMedia":     false,
		"event":        nil,
		"element":      "",

		"get": func(key string) any {
			v, _ := env.Get(key)
			return v
		},
		"set": func(key string, v goja.Value) any {
			x := export(v)
			env.Set(key, x)
			return x
		},
		"del": func(key string) {
			env.Delete(key)
		},
		"setLang": func(lang string) {
			env.SetLanguage(lang)
		},
		"keyboard": func(name string) any {
			v, _ := env.Keyboard(name)
			return v
		},
		"log": func(msg string, args ...any) {
			e.logger.Info(msg, args...)
		},
	}
	if ev := env.Event(); ev != nil {
		vars["text"] = ev.Text
		vars["command"] = ev.Command
		if ev.Args != nil {
			vars["args"] = ev.Args
		}
		vars["callback"] = ev.Callback
		vars["hasMedia"] = ev.HasMedia
		vars["event"] = ev
	}
	if el := env.Element(); el != nil {
		vars["element"] = el.Name
	}
	for k, v := range e.globals {
		vars[k] = v
	}

	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
