package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canopy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, domain.NewIdentity(1, 1), cfg.ConsoleIdentity())
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/canopy.yaml")
	require.NoError(t, err)

	assert.Equal(t, "examples/shop.yaml", cfg.Trees)
	assert.Equal(t, domain.NewIdentity(7, -100), cfg.ConsoleIdentity())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, PoolConfig{Core: 2, Max: 8, KeepAlive: 30 * time.Second}, cfg.Pool)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
	assert.Equal(t, 10*time.Second, cfg.Store.LockTTL, "unset keys keep their default")
	assert.Equal(t, 2, cfg.Redis.DB, "weakly typed strings are converted")
	assert.Equal(t, "canopy:", cfg.Redis.Prefix)
	assert.Equal(t, []string{"(?i)password", "^card"}, cfg.Security.PIIPatterns)
	assert.Equal(t, MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "canopy", Prefix: "bots", QoS: 1}, cfg.MQTT)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "stor: {driver: file}", "stor"},
		{"unknown driver", "store: {driver: etcd}", "unknown store driver"},
		{"missing path", "store: {driver: bolt, path: ''}", "store.path"},
		{"pool bounds", "pool: {core: 4, max: 2}", "pool.max"},
		{"bad identity", "identity: nope", "identity"},
		{"bad duration", "pool: {keep_alive: soon}", "keep_alive"},
		{"short key", "security: {encryption_key: " + base64.StdEncoding.EncodeToString([]byte("short")) + "}", "32 bytes"},
		{"sqlite without path", "store: {driver: sqlite, path: ''}", "store.path"},
		{"bad log format", "log: {format: xml}", "log format"},
		{"bad log level", "log: {level: loud}", "log level"},
		{"bad qos", "mqtt: {qos: 3}", "mqtt.qos"},
		{"orphan fallback", "security: {fallback_keys: [abc]}", "fallback_keys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EncryptionKeyFromEnv(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))
	old := []byte(strings.Repeat("o", 32))
	t.Setenv(EnvEncryptionKey, base64.StdEncoding.EncodeToString(key))

	cfg, err := Load(writeConfig(t, "security: {fallback_keys: ["+base64.StdEncoding.EncodeToString(old)+"]}"))
	require.NoError(t, err)

	active, fallback, err := cfg.Keys()
	require.NoError(t, err)
	assert.Equal(t, key, active)
	assert.Equal(t, [][]byte{old}, fallback)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}
