package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	paho.Token
	err  error
	hang bool
}

func (t *fakeToken) Wait() bool                     { return !t.hang }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

// fakeClient stands in for a broker connection. Methods the bridge never
// calls are left to the embedded nil interface.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	connected    bool
	connectErr   error
	hangPublish  bool
	handlers     map[string]paho.MessageHandler
	published    []published
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hangPublish {
		return &fakeToken{hang: true}
	}
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	return &fakeToken{}
}

// deliver plays a broker message through the handler subscribed to pattern.
func (c *fakeClient) deliver(pattern, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[pattern]
	c.mu.Unlock()
	h(c, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func TestBridge_Perform(t *testing.T) {
	client := newFakeClient()
	b := New(client, WithPrefix("bots/"))
	require.NoError(t, b.Start(context.Background()))
	assert.Empty(t, client.handlers, "no sink, no subscription")

	id := domain.NewIdentity(5, -5)
	res, err := b.Perform(context.Background(), domain.Call{Identity: id, Method: domain.MethodSend, Payload: "hi"})
	require.NoError(t, err)
	ref := res.(domain.MessageRef)
	assert.EqualValues(t, 1, ref.MessageID)
	assert.EqualValues(t, -5, ref.ConversationID)

	require.Len(t, client.published, 1)
	assert.Equal(t, "bots/out/5:-5", client.published[0].topic)
	var call domain.Call
	require.NoError(t, json.Unmarshal(client.published[0].payload, &call))
	assert.Equal(t, "hi", call.Payload)

	res, err = b.Perform(context.Background(), domain.Call{
		Identity: id,
		Method:   domain.MethodEdit,
		Target:   &domain.MessageRef{MessageID: 1},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.(domain.MessageRef).MessageID, "edits keep the target id")

	b.Stop()
	assert.True(t, client.disconnected)
}

func TestBridge_PerformTimeout(t *testing.T) {
	client := newFakeClient()
	client.hangPublish = true
	b := New(client)

	_, err := b.Perform(context.Background(), domain.Call{Identity: domain.NewIdentity(1, 1)})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBridge_StartConnectError(t *testing.T) {
	client := newFakeClient()
	client.connectErr = errors.New("refused")
	b := New(client)

	err := b.Start(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestBridge_Inbound(t *testing.T) {
	client := newFakeClient()
	var got []domain.Event
	b := New(client, WithSink(func(ev domain.Event) error {
		got = append(got, ev)
		return nil
	}))
	require.NoError(t, b.Start(context.Background()))
	require.Contains(t, client.handlers, "canopy/in/+")

	client.deliver("canopy/in/+", "canopy/in/7:8", []byte(`{"text":"/start now","language":"pt"}`))
	client.deliver("canopy/in/+", "canopy/in/7", []byte(`{"callback":"yes"}`))
	client.deliver("canopy/in/+", "canopy/in/7:8", []byte("plain text"))
	client.deliver("canopy/in/+", "canopy/in/nobody", []byte("dropped"))

	require.Len(t, got, 3)
	assert.Equal(t, domain.NewIdentity(7, 8), got[0].Identity)
	assert.Equal(t, "/start", got[0].Command)
	assert.Equal(t, []string{"now"}, got[0].Args)
	assert.Equal(t, "pt", got[0].Language)

	assert.Equal(t, domain.NewIdentity(7, 7), got[1].Identity)
	assert.Equal(t, "yes", got[1].Callback)

	assert.Equal(t, "plain text", got[2].Text)

	b.Stop()
	assert.NotContains(t, client.handlers, "canopy/in/+")
}
