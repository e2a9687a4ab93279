// Package mqtt bridges sessions to an MQTT broker.
//
// Outbound calls are published as JSON to "<prefix>/out/<identity>". Events
// are read from "<prefix>/in/<identity>", where the payload is either a JSON
// object ({"text": ..., "callback": ..., "language": ...}) or plain text.
// Identities use the "participant:conversation" form.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultPrefix  = "canopy"
	defaultTimeout = 5 * time.Second
	quiesce        = 250 // milliseconds
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: broker did not answer in time")

// Sink receives events published by clients.
type Sink func(ev domain.Event) error

// Bridge is a ports.Performer publishing to a broker, and an event source
// subscribed to it.
type Bridge struct {
	client  paho.Client
	prefix  string
	qos     byte
	timeout time.Duration
	sink    Sink
	logger  *slog.Logger
	seq     atomic.Int64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPrefix sets the topic prefix.
func WithPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithQoS sets the quality of service of publications and the subscription.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		b.qos = qos
	}
}

// WithTimeout bounds the wait for broker acknowledgements.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithSink delivers inbound events to fn.
func WithSink(fn Sink) Option {
	return func(b *Bridge) {
		b.sink = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// NewClient creates a reconnecting paho client for broker, e.g. "tcp://localhost:1883".
func NewClient(broker, clientID string) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	return paho.NewClient(opts)
}

// New creates a bridge over client. The client is connected by Start.
func New(client paho.Client, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: defaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InTopic is the topic events of id are read from.
func (b *Bridge) InTopic(id domain.Identity) string {
	return b.prefix + "/in/" + id.String()
}

// OutTopic is the topic calls of id are published to.
func (b *Bridge) OutTopic(id domain.Identity) string {
	return b.prefix + "/out/" + id.String()
}

// Start connects to the broker and, when a sink is set, subscribes to the
// inbound topics of every session.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.client.IsConnected() {
		if err := b.wait(ctx, b.client.Connect()); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	}
	if b.sink == nil {
		return nil
	}
	topic := b.prefix + "/in/+"
	if err := b.wait(ctx, b.client.Subscribe(topic, b.qos, b.handle)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	b.logger.Info("mqtt bridge subscribed", "topic", topic)
	return nil
}

// Stop unsubscribes and disconnects.
func (b *Bridge) Stop() {
	if b.sink != nil {
		b.client.Unsubscribe(b.prefix + "/in/+").WaitTimeout(b.timeout)
	}
	b.client.Disconnect(quiesce)
}

// Perform publishes call and answers with a fresh message reference.
func (b *Bridge) Perform(ctx context.Context, call domain.Call) (any, error) {
	data, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}
	topic := b.OutTopic(call.Identity)
	if err := b.wait(ctx, b.client.Publish(topic, b.qos, false, data)); err != nil {
		return nil, fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	ref := domain.MessageRef{
		ConversationID: call.Identity.ConversationID,
		MessageID:      b.seq.Add(1),
		SentAt:         time.Now(),
	}
	if call.Method == domain.MethodEdit && call.Target != nil {
		ref.MessageID = call.Target.MessageID
	}
	return ref, nil
}

func (b *Bridge) wait(ctx context.Context, tok paho.Token) error {
	deadline := b.timeout
	if dl, ok := ctx.Deadline(); ok {
		deadline = min(deadline, time.Until(dl))
	}
	if !tok.WaitTimeout(deadline) {
		return ErrTimeout
	}
	return tok.Error()
}

// inbound is a structured client message.
type inbound struct {
	Text     string `json:"text"`
	Callback string `json:"callback"`
	Language string `json:"language"`
}

func (b *Bridge) handle(_ paho.Client, msg paho.Message) {
	ev, err := b.decode(msg.Topic(), msg.Payload())
	if err != nil {
		b.logger.Warn("mqtt message rejected", "topic", msg.Topic(), "err", err)
		return
	}
	if err := b.sink(ev); err != nil {
		b.logger.Error("mqtt event rejected", "topic", msg.Topic(), "err", err)
	}
}

func (b *Bridge) decode(topic string, payload []byte) (domain.Event, error) {
	raw, ok := strings.CutPrefix(topic, b.prefix+"/in/")
	if !ok {
		return domain.Event{}, errors.New("unexpected topic")
	}
	id, err := domain.ParseIdentity(raw)
	if err != nil {
		return domain.Event{}, err
	}

	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		// Anything that is not a JSON object is taken as text.
		in = inbound{Text: string(payload)}
	}
	ev := domain.NewTextEvent(id, in.Text)
	ev.Callback = in.Callback
	ev.Language = in.Language
	if err := ev.Sanitize(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}
