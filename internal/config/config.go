// Package config loads the canopy process configuration.
//
// A YAML file is read into a generic map and decoded onto Default() with
// mapstructure, so a file only needs the keys it changes. Secrets may come
// from the environment instead of the file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvEncryptionKey overrides security.encryption_key.
const EnvEncryptionKey = "CANOPY_ENCRYPTION_KEY"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the process configuration.
type Config struct {
	// Trees is the path of the YAML tree document.
	Trees string `mapstructure:"trees"`
	// Identity is the console session, as "participant:conversation".
	Identity string `mapstructure:"identity"`

	Log      LogConfig      `mapstructure:"log"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Security SecurityConfig `mapstructure:"security"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PoolConfig sizes the worker pool. Zero values keep the pool defaults.
type PoolConfig struct {
	Core      int           `mapstructure:"core"`
	Max       int           `mapstructure:"max"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// MQTTConfig enables the broker bridge of serve when Broker is set.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Prefix   string `mapstructure:"prefix"`
	QoS      int    `mapstructure:"qos"`
}

// SecurityConfig configures the store middleware. Keys are base64 encoded
// 32 byte AES keys.
type SecurityConfig struct {
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
	PIIPatterns   []string `mapstructure:"pii_patterns"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Trees:    "bot.yaml",
		Identity: "1:1",
		Log:      LogConfig{Level: "info", Format: logging.FormatText},
		Store: StoreConfig{
			Driver:  DriverMemory,
			Path:    ".canopy/sessions",
			LockTTL: 10 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "canopy:"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		MQTT:  MQTTConfig{ClientID: "canopy", Prefix: "canopy"},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults. Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Security.EncryptionKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Validate checks the values that cannot be fixed up later.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis, DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Store.Driver != DriverMemory && c.Store.Driver != DriverRedis && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required for the %s driver", ErrInvalid, c.Store.Driver)
	}
	if c.Pool.Core < 0 || c.Pool.Max < 0 {
		return fmt.Errorf("%w: pool sizes must not be negative", ErrInvalid)
	}
	if c.Pool.Max > 0 && c.Pool.Max < c.Pool.Core {
		return fmt.Errorf("%w: pool.max %d is below pool.core %d", ErrInvalid, c.Pool.Max, c.Pool.Core)
	}
	if _, err := logging.New(io.Discard, logging.Options{Level: c.Log.Level, Format: c.Log.Format}); err != nil {
		return fmt.Errorf("%w: log: %v", ErrInvalid, err)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}
	if _, err := domain.ParseIdentity(c.Identity); err != nil {
		return fmt.Errorf("%w: identity: %v", ErrInvalid, err)
	}
	if _, _, err := c.Keys(); err != nil {
		return err
	}
	return nil
}

// ConsoleIdentity is the parsed Identity.
func (c *Config) ConsoleIdentity() domain.Identity {
	id, _ := domain.ParseIdentity(c.Identity)
	return id
}

// Keys decodes the encryption keys. active is nil when encryption is off.
func (c *Config) Keys() (active []byte, fallback [][]byte, err error) {
	if c.Security.EncryptionKey == "" {
		if len(c.Security.FallbackKeys) > 0 {
			return nil, nil, fmt.Errorf("%w: fallback_keys without encryption_key", ErrInvalid)
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(c.Security.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for _, k := range c.Security.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not base64: %v", ErrInvalid, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: encryption key must decode to 32 bytes, got %d", ErrInvalid, len(key))
	}
	return key, nil
}
