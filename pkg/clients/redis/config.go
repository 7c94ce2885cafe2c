// Package redis provides the traced go-redis client behind the gateway's
// shared tenant tier, where several gateway replicas publish realm metadata
// to each other.
//
// # Configuration
//
//	cfg := redis.DefaultConfig()
//	cfg.URI = "redis://:password@cache:6379/0"
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For tests, [NewFromClient] accepts any [Cmdable], including a
// *redis.Client pointed at miniredis.
//
// # OpenTelemetry Tracing
//
// Every command creates a client span with db.system, db.redis.database_index
// and a db.statement truncated to 100 characters.
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementTruncateLen bounds db.statement span attributes.
const maxStatementTruncateLen = 100

const (
	// DefaultHost is the Redis host used when neither URI nor Host is set.
	DefaultHost = "localhost"

	// DefaultPort is the standard Redis port.
	DefaultPort = 6379

	// DefaultPoolSize is the maximum number of connections in the pool.
	DefaultPoolSize = 10

	// DefaultMinIdleConns is the minimum number of idle connections.
	DefaultMinIdleConns = 2

	// DefaultMaxRetries is the go-redis per-command retry count.
	DefaultMaxRetries = 3

	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 500 * time.Millisecond
	DefaultWriteTimeout = 500 * time.Millisecond

	// DefaultHealthTimeout bounds Health when the context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string whose String, GoString and MarshalText methods return
// a redacted placeholder. Use [Secret.Value] for the real value.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler with the redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the Redis connection configuration. When URI is set it takes
// precedence over Host, Port, DB and Password. The env tags are relative:
// the gateway nests Config under `env:"REDIS"`, giving GATEWAY_REDIS_URI.
type Config struct {
	// URI is a redis:// or rediss:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	Host string `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port int    `json:"port,omitempty" yaml:"port" env:"PORT"`
	DB   int    `json:"db" yaml:"db" env:"DB"`

	Password Secret `json:"-" yaml:"password" env:"PASSWORD"`

	PoolSize     int `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int `json:"min_idle_conns,omitempty" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// MaxRetries is the go-redis retry count. -1 disables retries.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries" env:"MAX_RETRIES"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DefaultConfig returns a Config with default pool and timeout values.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate applies defaults to zero-valued fields and checks the rest.
// With a URI set only the URI scheme is checked.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement truncates s to maxStatementTruncateLen runes, adding
// "..." when it cuts.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
