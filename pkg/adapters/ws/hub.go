// Package ws streams outbound calls to WebSocket clients.
//
// A Hub is a ports.Performer: every call is encoded as JSON and pushed to the
// clients subscribed to the call's identity. Clients may also write events
// back on the same connection; they are handed to the configured Sink.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	bufferSize = 32
)

// Sink receives events written by clients.
type Sink func(ev domain.Event) error

// Hub fans calls out to subscribed connections.
type Hub struct {
	upgrader websocket.Upgrader
	sink     Sink
	logger   *slog.Logger
	seq      atomic.Int64

	mu   sync.RWMutex
	subs map[domain.Identity]map[chan []byte]struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithSink delivers client events to fn.
func WithSink(fn Sink) Option {
	return func(h *Hub) {
		h.sink = fn
	}
}

// WithLogger configures the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		logger: logging.NewNop(),
		subs:   make(map[domain.Identity]map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Perform broadcasts call to the subscribers of its identity and answers
// with a fresh message reference. Calls with no subscriber are dropped.
func (h *Hub) Perform(_ context.Context, call domain.Call) (any, error) {
	data, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}
	h.broadcast(call.Identity, data)

	ref := domain.MessageRef{
		ConversationID: call.Identity.ConversationID,
		MessageID:      h.seq.Add(1),
		SentAt:         time.Now(),
	}
	if call.Method == domain.MethodEdit && call.Target != nil {
		ref.MessageID = call.Target.MessageID
	}
	return ref, nil
}

// Subscribe registers a buffered channel for id. The returned func removes
// and closes it.
func (h *Hub) Subscribe(id domain.Identity) (<-chan []byte, func()) {
	ch := make(chan []byte, bufferSize)

	h.mu.Lock()
	if _, ok := h.subs[id]; !ok {
		h.subs[id] = make(map[chan []byte]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[id]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subs, id)
				}
			}
			close(ch)
		})
	}
}

// Subscribers is the number of connections listening to id.
func (h *Hub) Subscribers(id domain.Identity) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

func (h *Hub) broadcast(id domain.Identity, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[id] {
		select {
		case ch <- data:
		default:
			h.logger.Warn("ws client buffer full, dropping call", "session", id.String())
		}
	}
}

// Serve upgrades the request and streams the calls of id until the client
// disconnects or ctx ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "session", id.String(), "err", err)
		return
	}
	defer conn.Close()

	calls, cancel := h.Subscribe(id)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.read(conn, id)
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case data, ok := <-calls:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("ws write failed", "session", id.String(), "err", err)
				return
			}
		}
	}
}

// inbound is what a client writes: a text or a callback token.
type inbound struct {
	Text     string `json:"text"`
	Callback string `json:"callback"`
	Language string `json:"language"`
}

func (h *Hub) read(conn *websocket.Conn, id domain.Identity) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if h.sink == nil {
			continue
		}
		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			h.logger.Warn("ws message is not an event", "session", id.String(), "err", err)
			continue
		}
		ev := domain.NewTextEvent(id, in.Text)
		ev.Callback = in.Callback
		ev.Language = in.Language
		if err := ev.Sanitize(); err != nil {
			h.logger.Warn("ws event rejected", "session", id.String(), "err", err)
			continue
		}
		if err := h.sink(ev); err != nil {
			h.logger.Error("ws event rejected", "session", id.String(), "err", err)
		}
	}
}
