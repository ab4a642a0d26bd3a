package pool

import (
	"testing"
	"time"
)

func TestParseJournalMode(t *testing.T) {
	cases := map[string]JournalMode{
		"wal":       JournalWAL,
		"WAL":       JournalWAL,
		"delete":    JournalDelete,
		"TRUNCATE":  JournalTruncate,
		"Persist":   JournalPersist,
		"memory":    JournalMemory,
		"off":       JournalOff,
	}
	for in, want := range cases {
		got, ok := ParseJournalMode(in)
		if !ok {
			t.Errorf("ParseJournalMode(%q) ok=false", in)
		}
		if got != want {
			t.Errorf("ParseJournalMode(%q) = %v, want %v", in, got, want)
		}
	}

	if _, ok := ParseJournalMode("bogus"); ok {
		t.Error("ParseJournalMode(bogus) ok=true, want false")
	}
}

func TestJournalMode_String_RoundTrip(t *testing.T) {
	modes := []JournalMode{JournalDelete, JournalTruncate, JournalPersist, JournalMemory, JournalWAL, JournalOff}
	for _, m := range modes {
		s := m.String()
		got, ok := ParseJournalMode(s)
		if !ok || got != m {
			t.Errorf("round-trip of %v via %q failed: got %v, ok=%v", m, s, got, ok)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/db.sqlite")
	if cfg.Path != "/tmp/db.sqlite" {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", cfg.MaxConnections)
	}
	if cfg.JournalMode != JournalWAL {
		t.Errorf("JournalMode = %v, want WAL", cfg.JournalMode)
	}
	if !cfg.ForeignKeys {
		t.Error("ForeignKeys = false, want true")
	}
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig("/tmp/db.sqlite",
		WithMaxConnections(4),
		WithIdleTimeout(5*time.Minute),
		WithBusyTimeoutMillis(1500),
		WithJournalMode(JournalDelete),
		WithForeignKeys(false),
		WithKey([]byte("secret")),
		WithStatementCacheCap(8),
	)
	if cfg.MaxConnections != 4 {
		t.Errorf("MaxConnections = %d, want 4", cfg.MaxConnections)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.BusyTimeoutMillis != 1500 {
		t.Errorf("BusyTimeoutMillis = %d", cfg.BusyTimeoutMillis)
	}
	if cfg.JournalMode != JournalDelete {
		t.Errorf("JournalMode = %v", cfg.JournalMode)
	}
	if cfg.ForeignKeys {
		t.Error("ForeignKeys = true, want false")
	}
	if string(cfg.Key) != "secret" {
		t.Errorf("Key = %q", cfg.Key)
	}
	if cfg.StatementCacheCap != 8 {
		t.Errorf("StatementCacheCap = %d", cfg.StatementCacheCap)
	}
}

func TestNewConfig_IgnoresInvalidOverrides(t *testing.T) {
	cfg := NewConfig("/tmp/db.sqlite", WithMaxConnections(0), WithBusyTimeoutMillis(-1), WithStatementCacheCap(-5))
	if cfg.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want default 10 preserved", cfg.MaxConnections)
	}
	if cfg.BusyTimeoutMillis != 5000 {
		t.Errorf("BusyTimeoutMillis = %d, want default 5000 preserved", cfg.BusyTimeoutMillis)
	}
	if cfg.StatementCacheCap != 25 {
		t.Errorf("StatementCacheCap = %d, want default 25 preserved", cfg.StatementCacheCap)
	}
}
