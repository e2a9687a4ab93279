package console_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/console"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Run(t *testing.T) {
	in := strings.NewReader("/start ref\n\n!cb pick:1\nbad\x00char\n!quit\nnever\n")
	var out bytes.Buffer
	c := console.New(in, &out, console.WithIdentity(domain.NewIdentity(5, 6)), console.WithPrompt(""))

	var events []domain.Event
	err := c.Run(context.Background(), func(ev domain.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "/start", events[0].Command)
	assert.Equal(t, []string{"ref"}, events[0].Args)
	assert.Equal(t, domain.NewIdentity(5, 6), events[0].Identity)
	assert.Equal(t, "pick:1", events[1].Callback)
	assert.Empty(t, events[1].Text)
	assert.Equal(t, "badchar", events[2].Text)
}

func TestConsole_RunStopsAtEOF(t *testing.T) {
	c := console.New(strings.NewReader("hello"), &bytes.Buffer{})
	n := 0
	require.NoError(t, c.Run(context.Background(), func(domain.Event) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestConsole_RunHonorsContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := console.New(pr, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Run(ctx, func(domain.Event) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsole_Perform(t *testing.T) {
	var out bytes.Buffer
	c := console.New(strings.NewReader(""), &out, console.WithRenderer(func(md string) (string, error) {
		return strings.ToUpper(md) + "\n\n", nil
	}))
	id := domain.NewIdentity(1, 9)

	res, err := c.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodSend, Payload: "hello"})
	require.NoError(t, err)
	ref := res.(domain.MessageRef)
	assert.Equal(t, int64(9), ref.ConversationID)
	assert.Equal(t, int64(1), ref.MessageID)

	res, err = c.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodEdit, Payload: "again", Target: &ref})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.(domain.MessageRef).MessageID)

	_, err = c.Perform(context.Background(), domain.Call{Identity: id, Method: "answer_callback", Payload: map[string]any{"ok": true}})
	require.NoError(t, err)

	assert.Equal(t, "HELLO\n(edited) AGAIN\n[answer_callback] {\"ok\":true}\n", out.String())
}

func TestConsole_IsTerminal(t *testing.T) {
	assert.False(t, console.IsTerminal(&bytes.Buffer{}))
}

func TestPrintBanner(t *testing.T) {
	var out bytes.Buffer
	console.PrintBanner(&out)
	assert.Contains(t, out.String(), "|___/")
}

func TestNewMarkdownRenderer(t *testing.T) {
	render, err := console.NewMarkdownRenderer(40)
	require.NoError(t, err)
	out, err := render("**bold**")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
}
