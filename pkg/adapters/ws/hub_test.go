package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/ws"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PerformWithoutSubscribers(t *testing.T) {
	hub := ws.NewHub()
	id := domain.NewIdentity(1, 1)

	res, err := hub.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodSend, Payload: "hi"})
	require.NoError(t, err)
	ref, ok := res.(domain.MessageRef)
	require.True(t, ok)
	assert.Equal(t, int64(1), ref.ConversationID)
	assert.Equal(t, int64(1), ref.MessageID)

	target := ref
	res, err = hub.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodEdit, Target: &target})
	require.NoError(t, err)
	assert.Equal(t, ref.MessageID, res.(domain.MessageRef).MessageID, "edits keep the message id")
}

func TestHub_SubscribeIsPerIdentity(t *testing.T) {
	hub := ws.NewHub()
	a, b := domain.NewIdentity(1, 1), domain.NewIdentity(2, 2)

	chA, cancelA := hub.Subscribe(a)
	chB, cancelB := hub.Subscribe(b)
	defer cancelB()

	_, err := hub.Perform(context.Background(), domain.Call{Identity: a, Method: domain.MethodSend, Payload: "for a"})
	require.NoError(t, err)

	select {
	case data := <-chA:
		assert.Contains(t, string(data), `"payload":"for a"`)
	case <-time.After(time.Second):
		t.Fatal("subscriber of a got nothing")
	}
	assert.Empty(t, chB)

	cancelA()
	cancelA()
	assert.Zero(t, hub.Subscribers(a))
}

func TestHub_Serve(t *testing.T) {
	events := make(chan domain.Event, 1)
	hub := ws.NewHub(ws.WithSink(func(ev domain.Event) error {
		events <- ev
		return nil
	}))
	id := domain.NewIdentity(7, 7)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, id)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(id) == 1 }, time.Second, 10*time.Millisecond)

	// Inbound: client text becomes an event.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"/start ref"}`)))
	select {
	case ev := <-events:
		assert.Equal(t, id, ev.Identity)
		assert.Equal(t, "/start", ev.Command)
		assert.Equal(t, []string{"ref"}, ev.Args)
	case <-time.After(time.Second):
		t.Fatal("event never reached the sink")
	}

	// Outbound: performed calls reach the client.
	_, err = hub.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodSend, Payload: "hello"})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var call domain.Call
	require.NoError(t, json.Unmarshal(data, &call))
	assert.Equal(t, domain.MethodSend, call.Method)
	assert.Equal(t, "hello", call.Payload)
}
