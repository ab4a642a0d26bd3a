package statement

// stampedEntry is one arena slot for StampedCache. There is no LRU linked
// list: recency is tracked with a monotonic stamp, and eviction scans for
// the minimum stamp among live entries. This trades an O(1) relink on every
// hit for an O(maxSize) scan on every miss, which pays off when hits vastly
// outnumber misses and the cache is small — the common case for a single
// connection's statement cache.
type stampedEntry struct {
	sql    string
	handle *Handle
	inUse  bool
	stamp  uint64
}

// StampedCache is a bounded map from SQL text to a compiled Handle that
// defers LRU bookkeeping to eviction time instead of maintaining a linked
// list on every access. See Cache for the index-linked LRU list variant.
type StampedCache struct {
	entries  []stampedEntry
	index    map[string]int
	maxSize  int
	clock    uint64
	disposal func(sql string, h *Handle)
}

// NewStampedCache builds a StampedCache holding at most maxSize compiled
// statements.
func NewStampedCache(maxSize int, disposal func(sql string, h *Handle)) *StampedCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &StampedCache{
		entries:  make([]stampedEntry, 0, maxSize),
		index:    make(map[string]int, maxSize),
		maxSize:  maxSize,
		disposal: disposal,
	}
}

// Len returns the current number of cached statements.
func (c *StampedCache) Len() int { return len(c.index) }

// GetOrCompile returns the cached Handle for sql, or compiles a fresh one
// via compile on a miss, evicting the entry with the oldest stamp first if
// the cache is already at capacity. See Cache.GetOrCompile for why reset
// happens at the call site rather than here.
func (c *StampedCache) GetOrCompile(sql string, compile CompileFunc) (*Handle, error) {
	c.clock++
	if idx, ok := c.index[sql]; ok {
		c.entries[idx].stamp = c.clock
		return c.entries[idx].handle, nil
	}

	h, err := compile(sql)
	if err != nil {
		return nil, err
	}

	idx := c.allocate()
	c.entries[idx] = stampedEntry{sql: sql, handle: h, inUse: true, stamp: c.clock}
	c.index[sql] = idx
	return h, nil
}

func (c *StampedCache) allocate() int {
	if len(c.entries) < c.maxSize {
		c.entries = append(c.entries, stampedEntry{})
		return len(c.entries) - 1
	}
	// The arena is full-size; reuse a slot freed by Evict/EvictAll before
	// paying for an eviction.
	for i := range c.entries {
		if !c.entries[i].inUse {
			return i
		}
	}
	return c.evictOldest()
}

func (c *StampedCache) evictOldest() int {
	oldest := -1
	var oldestStamp uint64
	for i := range c.entries {
		if !c.entries[i].inUse {
			continue
		}
		if oldest == -1 || c.entries[i].stamp < oldestStamp {
			oldest = i
			oldestStamp = c.entries[i].stamp
		}
	}
	e := &c.entries[oldest]
	delete(c.index, e.sql)
	if c.disposal != nil {
		c.disposal(e.sql, e.handle)
	}
	e.inUse = false
	return oldest
}

// Evict removes and disposes the entry for sql, if present.
func (c *StampedCache) Evict(sql string) {
	idx, ok := c.index[sql]
	if !ok {
		return
	}
	e := &c.entries[idx]
	delete(c.index, sql)
	if c.disposal != nil {
		c.disposal(e.sql, e.handle)
	}
	e.inUse = false
}

// EvictAll disposes every cached handle and empties the cache.
func (c *StampedCache) EvictAll() {
	for i := range c.entries {
		e := &c.entries[i]
		if !e.inUse {
			continue
		}
		if c.disposal != nil {
			c.disposal(e.sql, e.handle)
		}
		e.inUse = false
	}
	c.index = make(map[string]int, c.maxSize)
}
