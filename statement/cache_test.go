package statement

import "testing"

// newTestHandle builds a Handle with no native resources attached, enough
// to exercise cache bookkeeping (identity, eviction order) without going
// through Prepare/Reset/Close, which require a loaded native library.
func newTestHandle(sql string) *Handle {
	return &Handle{sql: sql}
}

func TestCache_MissThenHit(t *testing.T) {
	var compiled []string
	c := NewCache(2, nil)

	h1, err := c.GetOrCompile("SELECT 1", func(sql string) (*Handle, error) {
		compiled = append(compiled, sql)
		return newTestHandle(sql), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	h2, err := c.GetOrCompile("SELECT 1", func(sql string) (*Handle, error) {
		compiled = append(compiled, sql)
		return newTestHandle(sql), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected the same handle on a cache hit")
	}
	if len(compiled) != 1 {
		t.Errorf("compile invoked %d times, want 1", len(compiled))
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var disposed []string
	c := NewCache(2, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	mustGet(t, c, "A", compile)
	mustGet(t, c, "B", compile)
	// touch A so B becomes the least-recently-used entry.
	mustGet(t, c, "A", compile)
	mustGet(t, c, "C", compile)

	if len(disposed) != 1 || disposed[0] != "B" {
		t.Fatalf("disposed = %v, want [B]", disposed)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_Evict(t *testing.T) {
	var disposed []string
	c := NewCache(4, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	mustGet(t, c, "A", compile)
	mustGet(t, c, "B", compile)
	c.Evict("A")

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if len(disposed) != 1 || disposed[0] != "A" {
		t.Fatalf("disposed = %v, want [A]", disposed)
	}

	// Evicting A again, or an unknown key, is a no-op.
	c.Evict("A")
	c.Evict("nope")
	if len(disposed) != 1 {
		t.Fatalf("disposed = %v, want unchanged", disposed)
	}
}

func TestCache_EvictAll(t *testing.T) {
	var disposed []string
	c := NewCache(4, func(sql string, h *Handle) { disposed = append(disposed, sql) })
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	mustGet(t, c, "A", compile)
	mustGet(t, c, "B", compile)
	mustGet(t, c, "C", compile)
	c.EvictAll()

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	if len(disposed) != 3 {
		t.Fatalf("disposed = %v, want 3 entries", disposed)
	}
}

func TestCache_ReusesSlotsAfterEvict(t *testing.T) {
	c := NewCache(2, nil)
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }

	// Repeated evict/add cycles must recycle arena slots, not grow the arena.
	for i := 0; i < 10; i++ {
		mustGet(t, c, "A", compile)
		mustGet(t, c, "B", compile)
		c.EvictAll()
	}
	if len(c.entries) > 2 {
		t.Fatalf("arena grew to %d slots, want at most 2", len(c.entries))
	}

	mustGet(t, c, "A", compile)
	c.Evict("A")
	h := mustGet(t, c, "B", compile)
	if h.SQL() != "B" {
		t.Fatalf("handle SQL = %q, want B", h.SQL())
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_ManyKeysForceRepeatedEviction(t *testing.T) {
	c := NewCache(3, nil)
	compile := func(sql string) (*Handle, error) { return newTestHandle(sql), nil }
	for i := 0; i < 100; i++ {
		sql := string(rune('A' + i%26))
		if _, err := c.GetOrCompile(sql, compile); err != nil {
			t.Fatalf("unexpected error at i=%d: %v", i, err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
}

func mustGet(t *testing.T, c *Cache, sql string, compile CompileFunc) *Handle {
	t.Helper()
	h, err := c.GetOrCompile(sql, compile)
	if err != nil {
		t.Fatalf("GetOrCompile(%q): %v", sql, err)
	}
	return h
}
