package statement

// CompileFunc compiles sql into a fresh Handle on a cache miss.
type CompileFunc func(sql string) (*Handle, error)

// entry is one arena slot. LRU links (prev/next) and the hash-bucket chain
// link (bucketNext) are stored as indices into the arena, not pointers, so
// eviction never touches a cycle of live pointers.
type entry struct {
	sql        string
	handle     *Handle
	inUse      bool
	bucketNext int32
	prev, next int32
}

const nilIdx int32 = -1

// Cache is a bounded, access-ordered (LRU) map from SQL text to a compiled
// Handle. Bucket capacity is a power of two so the bucket index is a mask,
// not a modulo.
type Cache struct {
	entries  []entry
	buckets  []int32
	mask     uint32
	size     int
	maxSize  int
	head     int32
	tail     int32
	free     []int32
	disposal func(sql string, h *Handle)
}

// NewCache builds a Cache holding at most maxSize compiled statements.
// disposal is invoked exactly once per evicted handle, to finalize it.
func NewCache(maxSize int, disposal func(sql string, h *Handle)) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	bucketCount := nextPow2(maxSize * 2)
	buckets := make([]int32, bucketCount)
	for i := range buckets {
		buckets[i] = nilIdx
	}
	return &Cache{
		entries:  make([]entry, 0, maxSize),
		buckets:  buckets,
		mask:     uint32(bucketCount - 1),
		maxSize:  maxSize,
		head:     nilIdx,
		tail:     nilIdx,
		disposal: disposal,
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	if p < 1 {
		p = 1
	}
	return p
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

func (c *Cache) bucketFor(sql string) uint32 { return fnv32(sql) & c.mask }

// Len returns the current number of cached statements.
func (c *Cache) Len() int { return c.size }

// GetOrCompile returns the cached Handle for sql, or compiles a fresh one
// via compile on a miss, evicting the least-recently-used entry first if
// the cache is already at capacity. A cache hit's handle must be reset and
// have its bindings cleared before reuse; every call site in this module
// does so itself (conn.Connection resets a handle as soon as it is done
// stepping it, not just on the next hit) so the cache stays usable with
// fake, native-resource-free handles in tests.
func (c *Cache) GetOrCompile(sql string, compile CompileFunc) (*Handle, error) {
	bucket := c.bucketFor(sql)
	if idx := c.findInBucket(bucket, sql); idx != nilIdx {
		c.promote(idx)
		return c.entries[idx].handle, nil
	}

	h, err := compile(sql)
	if err != nil {
		return nil, err
	}

	idx := c.allocate()
	c.entries[idx] = entry{sql: sql, handle: h, inUse: true, bucketNext: c.buckets[bucket], prev: nilIdx, next: nilIdx}
	c.buckets[bucket] = idx
	c.linkHead(idx)
	c.size++
	return h, nil
}

// findInBucket walks the hash-bucket chain looking for sql.
func (c *Cache) findInBucket(bucket uint32, sql string) int32 {
	cur := c.buckets[bucket]
	for cur != nilIdx {
		if c.entries[cur].inUse && c.entries[cur].sql == sql {
			return cur
		}
		cur = c.entries[cur].bucketNext
	}
	return nilIdx
}

// allocate returns an arena index ready to receive a new entry: a slot
// freed by Evict/EvictAll if one exists, a fresh slot while the arena is
// still growing toward capacity, or the evicted LRU tail. The arena never
// holds more than maxSize slots.
func (c *Cache) allocate() int32 {
	if n := len(c.free); n > 0 {
		idx := c.free[n-1]
		c.free = c.free[:n-1]
		return idx
	}
	if len(c.entries) < c.maxSize {
		c.entries = append(c.entries, entry{})
		return int32(len(c.entries) - 1)
	}
	return c.evictTail()
}

func (c *Cache) evictTail() int32 {
	idx := c.tail
	e := &c.entries[idx]
	c.unlinkBucket(idx, e.sql)
	c.unlinkLRU(idx)
	if c.disposal != nil {
		c.disposal(e.sql, e.handle)
	}
	e.inUse = false
	c.size--
	return idx
}

func (c *Cache) unlinkBucket(idx int32, sql string) {
	bucket := c.bucketFor(sql)
	cur := c.buckets[bucket]
	if cur == idx {
		c.buckets[bucket] = c.entries[idx].bucketNext
		return
	}
	for cur != nilIdx {
		next := c.entries[cur].bucketNext
		if next == idx {
			c.entries[cur].bucketNext = c.entries[idx].bucketNext
			return
		}
		cur = next
	}
}

func (c *Cache) unlinkLRU(idx int32) {
	e := &c.entries[idx]
	if e.prev != nilIdx {
		c.entries[e.prev].next = e.next
	} else if c.head == idx {
		c.head = e.next
	}
	if e.next != nilIdx {
		c.entries[e.next].prev = e.prev
	} else if c.tail == idx {
		c.tail = e.prev
	}
	e.prev, e.next = nilIdx, nilIdx
}

func (c *Cache) linkHead(idx int32) {
	e := &c.entries[idx]
	e.prev = nilIdx
	e.next = c.head
	if c.head != nilIdx {
		c.entries[c.head].prev = idx
	}
	c.head = idx
	if c.tail == nilIdx {
		c.tail = idx
	}
}

// promote moves idx to the head of the LRU list on a cache hit.
func (c *Cache) promote(idx int32) {
	if c.head == idx {
		return
	}
	c.unlinkLRU(idx)
	c.linkHead(idx)
}

// Evict removes and disposes the entry for sql, if present.
func (c *Cache) Evict(sql string) {
	bucket := c.bucketFor(sql)
	idx := c.findInBucket(bucket, sql)
	if idx == nilIdx {
		return
	}
	e := &c.entries[idx]
	c.unlinkBucket(idx, e.sql)
	c.unlinkLRU(idx)
	if c.disposal != nil {
		c.disposal(e.sql, e.handle)
	}
	e.inUse = false
	c.free = append(c.free, idx)
	c.size--
}

// EvictAll disposes every cached handle and empties the cache.
func (c *Cache) EvictAll() {
	cur := c.head
	for cur != nilIdx {
		e := &c.entries[cur]
		next := e.next
		if c.disposal != nil {
			c.disposal(e.sql, e.handle)
		}
		e.inUse = false
		c.free = append(c.free, cur)
		cur = next
	}
	for i := range c.buckets {
		c.buckets[i] = nilIdx
	}
	c.head, c.tail = nilIdx, nilIdx
	c.size = 0
}
