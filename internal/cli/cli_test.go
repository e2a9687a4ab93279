package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Trees = "testdata/greet.yaml"
	return cfg
}

func TestOpenStorage_Drivers(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		driver string
		setup  func(cfg *config.Config)
		locker bool
	}{
		{driver: config.DriverMemory},
		{driver: config.DriverFile, setup: func(cfg *config.Config) { cfg.Store.Path = filepath.Join(dir, "files") }},
		{driver: config.DriverBolt, setup: func(cfg *config.Config) { cfg.Store.Path = filepath.Join(dir, "db", "canopy.db") }},
		{driver: config.DriverSQLite, setup: func(cfg *config.Config) { cfg.Store.Path = filepath.Join(dir, "db", "canopy.sqlite") }},
		{driver: config.DriverRedis, setup: func(cfg *config.Config) { cfg.Redis.Addr = mr.Addr() }, locker: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Store.Driver = tt.driver
			if tt.setup != nil {
				tt.setup(cfg)
			}
			storage, err := OpenStorage(cfg, logging.NewNop())
			require.NoError(t, err)
			defer storage.Close()
			assert.Equal(t, tt.locker, storage.Locker != nil)

			ctx := context.Background()
			id := domain.NewIdentity(3, 4)
			require.NoError(t, storage.Store.Save(ctx, id, &memory.Snapshot{Identity: id, Vars: map[string]any{"k": "v"}}))
			snap, err := storage.Store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "v", snap.Vars["k"])
		})
	}
}

func TestOpenStorage_Middleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.PIIPatterns = []string{`^card$`}
	cfg.Security.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))

	storage, err := OpenStorage(cfg, logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	id := domain.NewIdentity(1, 2)
	require.NoError(t, storage.Store.Save(ctx, id, &memory.Snapshot{Identity: id, Vars: map[string]any{"card": "1234-5678"}}))
	snap, err := storage.Store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "***", snap.Vars["card"])

	cfg.Security.PIIPatterns = []string{`(`}
	_, err = OpenStorage(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestSessionCommands(t *testing.T) {
	cfg := testConfig(t)
	storage, err := OpenStorage(cfg, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, ListSessions(ctx, storage.Store, &out))
	assert.Contains(t, out.String(), "No stored sessions")

	id := domain.NewIdentity(8, -1)
	require.NoError(t, storage.Store.Save(ctx, id, &memory.Snapshot{Identity: id, Stack: []string{"greet"}}))

	out.Reset()
	require.NoError(t, ListSessions(ctx, storage.Store, &out))
	assert.Contains(t, out.String(), "- 8:-1")

	out.Reset()
	require.NoError(t, InspectSession(ctx, storage.Store, id, &out))
	assert.Contains(t, out.String(), `"greet"`)

	ids, err := ParseIdentities([]string{"8:-1"})
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, RemoveSessions(ctx, storage.Store, ids, &out))
	assert.Contains(t, out.String(), "Removed session '8:-1'")

	assert.ErrorIs(t, InspectSession(ctx, storage.Store, id, io.Discard), domain.ErrSessionNotFound)
	_, err = ParseIdentities([]string{"x"})
	assert.Error(t, err)
}

func TestRunChat(t *testing.T) {
	cfg := testConfig(t)
	in := strings.NewReader("/start\nis this a test?\n!quit\n")
	var out bytes.Buffer

	err := RunChat(context.Background(), cfg, ChatOptions{Plain: true, In: in, Out: &out}, logging.NewNop())
	require.NoError(t, err)
	// Replies are asynchronous; the bot is drained on close before RunChat returns.
	assert.Contains(t, out.String(), "Hi! Continue?")
}

func TestLiveBot_ReloadKeepsSessions(t *testing.T) {
	dir := t.TempDir()
	trees := filepath.Join(dir, "bot.yaml")
	data, err := os.ReadFile("testdata/greet.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(trees, data, 0644))

	cfg := testConfig(t)
	cfg.Trees = trees
	storage, err := OpenStorage(cfg, logging.NewNop())
	require.NoError(t, err)

	out := &collector{}
	ctx := context.Background()
	first, err := NewBot(cfg, storage, out, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	live := &liveBot{bot: first}

	id := domain.NewIdentity(1, 1)
	require.NoError(t, live.current().OnEvent(domain.NewTextEvent(id, "/start")))
	require.Eventually(t, func() bool { return out.len() == 1 }, time.Second, 10*time.Millisecond)

	// A broken document keeps the running bot.
	require.NoError(t, os.WriteFile(trees, []byte("trees: [{name: greet, bogus: 1}]"), 0644))
	assert.Error(t, live.reload(ctx, func() (*canopy.Bot, error) { return NewBot(cfg, storage, out, logging.NewNop()) }))
	assert.Same(t, first, live.current())

	require.NoError(t, os.WriteFile(trees, []byte(strings.Replace(string(data), `"Great"`, `"Great, reloaded"`, 1)), 0644))
	require.NoError(t, live.reload(ctx, func() (*canopy.Bot, error) { return NewBot(cfg, storage, out, logging.NewNop()) }))
	defer live.current().Close(ctx)

	require.NoError(t, live.current().OnEvent(domain.NewTextEvent(id, "yes")))
	require.Eventually(t, func() bool { return out.len() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Great, reloaded", out.last(), "the session resumes inside greet with the new document")
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, testConfig(t), ln, logging.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/events", "application/json",
		strings.NewReader(`{"identity":{"participant_id":5,"conversation_id":5},"text":"/start"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `canopy_events_total{outcome="opened"} 1`) &&
			strings.Contains(string(body), "canopy_sessions 1")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type collector struct {
	mu   sync.Mutex
	sent []string
}

func (c *collector) Perform(_ context.Context, call domain.Call) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, fmt.Sprint(call.Payload))
	return nil, nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *collector) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}
