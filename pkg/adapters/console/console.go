// Package console runs a session over a terminal: stdin lines become events
// and outbound calls are printed, rendered as markdown when the output is a
// terminal.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"golang.org/x/term"
)

// CallbackPrefix marks an input line as a button press: "!cb <token>".
const CallbackPrefix = "!cb "

// QuitCommand ends Run.
const QuitCommand = "!quit"

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// Console is a Performer writing to out and an event source reading from in.
type Console struct {
	in       io.Reader
	out      io.Writer
	identity domain.Identity
	render   Renderer
	prompt   string
	logger   *slog.Logger

	mu  sync.Mutex
	seq int64
}

// Option configures a Console.
type Option func(*Console)

// WithIdentity sets the identity of the events read from the input.
func WithIdentity(id domain.Identity) Option {
	return func(c *Console) {
		c.identity = id
	}
}

// WithRenderer renders text payloads before printing them.
func WithRenderer(r Renderer) Option {
	return func(c *Console) {
		c.render = r
	}
}

// WithPrompt sets the prompt printed before reading a line.
func WithPrompt(p string) Option {
	return func(c *Console) {
		c.prompt = p
	}
}

// WithLogger configures the console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// New creates a console over in and out. Nil streams default to stdin and stdout.
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	c := &Console{
		in:       in,
		out:      out,
		identity: domain.NewIdentity(1, 1),
		prompt:   "> ",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Identity returns the identity of the events read from the input.
func (c *Console) Identity() domain.Identity {
	return c.identity
}

// Perform prints call. Text payloads are rendered, anything else is printed
// as JSON next to its method.
func (c *Console) Perform(_ context.Context, call domain.Call) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body string
	switch p := call.Payload.(type) {
	case string:
		body = p
		if c.render != nil {
			out, err := c.render(p)
			if err != nil {
				return nil, fmt.Errorf("render payload: %w", err)
			}
			body = strings.TrimRight(out, "\n")
		}
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}

	switch call.Method {
	case domain.MethodSend, "":
	case domain.MethodEdit:
		body = "(edited) " + body
	default:
		body = "[" + call.Method + "] " + body
	}
	if _, err := fmt.Fprintln(c.out, body); err != nil {
		return nil, err
	}

	ref := domain.MessageRef{ConversationID: call.Identity.ConversationID, SentAt: time.Now()}
	if call.Method == domain.MethodEdit && call.Target != nil {
		ref.MessageID = call.Target.MessageID
		return ref, nil
	}
	c.seq++
	ref.MessageID = c.seq
	return ref, nil
}

// Run reads lines until EOF, QuitCommand or the end of ctx and hands each
// one to sink as an event. Blank lines are skipped.
func (c *Console) Run(ctx context.Context, sink func(domain.Event) error) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	c.printPrompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == QuitCommand {
				return nil
			}
			if line != "" {
				ev := c.event(line)
				if err := ev.Sanitize(); err != nil {
					c.logger.Warn("input rejected", "err", err)
				} else if err := sink(ev); err != nil {
					return err
				}
			}
			c.printPrompt()
		}
	}
}

func (c *Console) event(line string) domain.Event {
	if token, ok := strings.CutPrefix(line, CallbackPrefix); ok {
		return domain.NewCallbackEvent(c.identity, strings.TrimSpace(token))
	}
	return domain.NewTextEvent(c.identity, line)
}

func (c *Console) printPrompt() {
	if c.prompt == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.prompt)
}
