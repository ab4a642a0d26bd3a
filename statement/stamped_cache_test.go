package statement

import "testing"

func TestStampedCache_MissThenHit(t *testing.T) {
	var compiled []string
	c := NewStampedCache(2, nil)
	compile := func(sql string) (*Handle, error) {
		compiled = append(compiled, sql)
		return newTestHandle(sql), nil
	}

	h1 := mustGetStamped(t, c, "SELECT 1", compile)
	h2 := mustGetStamped(t, c, "SELECT 1", compile)

	if h1 != h2 {
		t.Errorf("expected the same handle on a cache hit")
	}
	if len(compiled) != 1 {
		t.Errorf("compile invoked %d times, want 1", len(compiled))
	}
}

func TestStampedCache_EvictsOldestStamp(t *testing.T) {
	var disposed []string
	c := NewStampedCache(2, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	mustGetStamped(t, c, "A", compile)
	mustGetStamped(t, c, "B", compile)
	mustGetStamped(t, c, "A", compile) // refresh A's stamp; B is now oldest
	mustGetStamped(t, c, "C", compile)

	if len(disposed) != 1 || disposed[0] != "B" {
		t.Fatalf("disposed = %v, want [B]", disposed)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestStampedCache_Evict(t *testing.T) {
	var disposed []string
	c := NewStampedCache(4, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	mustGetStamped(t, c, "A", compile)
	c.Evict("A")
	c.Evict("nope")

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	if len(disposed) != 1 || disposed[0] != "A" {
		t.Fatalf("disposed = %v, want [A]", disposed)
	}
}

func TestStampedCache_EvictAll(t *testing.T) {
	c := NewStampedCache(4, nil)
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }
	mustGetStamped(t, c, "A", compile)
	mustGetStamped(t, c, "B", compile)
	c.EvictAll()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestStampedCache_ReusesSlotsAfterEvict(t *testing.T) {
	var disposed []string
	c := NewStampedCache(1, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	// Evicting the only entry at capacity, then adding another, must reuse
	// the freed slot rather than trying to evict from an empty cache.
	mustGetStamped(t, c, "A", compile)
	c.Evict("A")
	mustGetStamped(t, c, "B", compile)

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if len(disposed) != 1 || disposed[0] != "A" {
		t.Fatalf("disposed = %v, want [A]", disposed)
	}
}

func mustGetStamped(t *testing.T, c *StampedCache, sql string, compile CompileFunc) *Handle {
	t.Helper()
	h, err := c.GetOrCompile(sql, compile)
	if err != nil {
		t.Fatalf("GetOrCompile(%q): %v", sql, err)
	}
	return h
}
