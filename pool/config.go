// Package pool implements the bounded writer/reader connection pool that
// multiplexes native database handles among callers.
package pool

import (
	"strings"
	"time"

	"github.com/selekt/selekt/conn"
)

// JournalMode selects the native engine's journal discipline, which in turn
// decides whether the Pool runs multiple concurrent readers (WAL) or funnels
// every operation through the single writer (everything else).
type JournalMode int

const (
	JournalDelete JournalMode = iota
	JournalTruncate
	JournalPersist
	JournalMemory
	JournalWAL
	JournalOff
)

func (m JournalMode) String() string {
	switch m {
	case JournalDelete:
		return "DELETE"
	case JournalTruncate:
		return "TRUNCATE"
	case JournalPersist:
		return "PERSIST"
	case JournalMemory:
		return "MEMORY"
	case JournalWAL:
		return "WAL"
	case JournalOff:
		return "OFF"
	default:
		return "DELETE"
	}
}

// ParseJournalMode parses a case-insensitive journal mode name.
func ParseJournalMode(s string) (JournalMode, bool) {
	switch strings.ToUpper(s) {
	case "DELETE":
		return JournalDelete, true
	case "TRUNCATE":
		return JournalTruncate, true
	case "PERSIST":
		return JournalPersist, true
	case "MEMORY":
		return JournalMemory, true
	case "WAL":
		return JournalWAL, true
	case "OFF":
		return JournalOff, true
	default:
		return JournalDelete, false
	}
}

// Config holds everything needed to create and discipline the connections
// in a Pool. It has sane defaults; callers typically build one via DSN
// parsing (see the root package's dsn.go) or via ConfigOption.
type Config struct {
	Path              string
	Key               []byte
	MaxConnections    int
	IdleTimeout       time.Duration
	BusyTimeoutMillis int64
	JournalMode       JournalMode
	ForeignKeys       bool
	StatementCacheCap int

	// ConnFactory overrides how the Pool opens connections. Nil means open
	// a real native database at Path. Harnesses exercising the pool's
	// lending discipline inject a factory returning detached connections
	// (conn.NewDetached) so no native library has to be loaded.
	ConnFactory func(role conn.Role) (*conn.Connection, error)
}

// DefaultConfig matches the connection-URL defaults in the root package's
// DSN parsing.
func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		MaxConnections:    10,
		IdleTimeout:       30 * time.Minute,
		BusyTimeoutMillis: 5000,
		JournalMode:       JournalWAL,
		ForeignKeys:       true,
		StatementCacheCap: 25,
	}
}

// ConfigOption mutates a Config.
type ConfigOption func(*Config)

func WithKey(key []byte) ConfigOption { return func(c *Config) { c.Key = key } }

func WithMaxConnections(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.MaxConnections = n
		}
	}
}

func WithIdleTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.IdleTimeout = d }
}

func WithBusyTimeoutMillis(ms int64) ConfigOption {
	return func(c *Config) {
		if ms >= 0 {
			c.BusyTimeoutMillis = ms
		}
	}
}

func WithJournalMode(m JournalMode) ConfigOption {
	return func(c *Config) { c.JournalMode = m }
}

func WithForeignKeys(on bool) ConfigOption {
	return func(c *Config) { c.ForeignKeys = on }
}

func WithStatementCacheCap(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.StatementCacheCap = n
		}
	}
}

func WithConnFactory(f func(role conn.Role) (*conn.Connection, error)) ConfigOption {
	return func(c *Config) { c.ConnFactory = f }
}

// NewConfig builds a Config for path with defaults, applying opts in order.
func NewConfig(path string, opts ...ConfigOption) Config {
	cfg := DefaultConfig(path)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
