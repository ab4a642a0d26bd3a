package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/selekt/selekt/backoff"
	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/statement"
)

// ErrorFunc maps a native (primary, extended) result-code pair to a typed
// error, supplied by the package assembling the Pool (the root package),
// so this package stays independent of the root error taxonomy.
type ErrorFunc = conn.ErrorFunc

// ConnStats is a point-in-time snapshot of pool occupancy; it feeds the
// Prometheus collector in the root package's metrics.go.
type ConnStats struct {
	Lent           int
	Idle           int
	WaitingReaders int
	WaitingWriters int
}

type readerSlot struct {
	c    *conn.Connection
	lent bool
}

// Pool is a bounded writer+readers connection pool: one mutex guarding
// its free sets, two condition variables for fair FIFO waiting, lazy
// connection creation, and an idle reaper. In WAL mode one write-capable
// connection coexists with up to maxConnections-1 read-only ones.
type Pool struct {
	mu           sync.Mutex
	readersCond  *sync.Cond
	writerCond   *sync.Cond
	cfg          Config
	mapErr       ErrorFunc
	bo           *backoff.Backoff
	now          func() int64
	writer       *conn.Connection
	writerLent   bool
	readers      []*readerSlot
	waitReaders  int
	waitWriters  int
	closed       bool
	stopReaperCh chan struct{}
}

// New builds a Pool from cfg. mapErr is the error constructor used for
// every connection the pool creates; now lets tests control wall-clock
// time (nil defaults to time.Now).
func New(cfg Config, mapErr ErrorFunc, now func() int64) *Pool {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	p := &Pool{
		cfg:    cfg,
		mapErr: mapErr,
		bo:     backoff.New(10, 2000),
		now:    now,
	}
	p.readersCond = sync.NewCond(&p.mu)
	p.writerCond = sync.NewCond(&p.mu)
	log.Info().Str("path", cfg.Path).Int("maxConnections", cfg.MaxConnections).
		Str("journalMode", cfg.JournalMode.String()).Msg("selekt: pool created")
	return p
}

var errPoolClosed = &poolClosedError{}

type poolClosedError struct{}

func (*poolClosedError) Error() string { return "selekt: pool is closed" }

func (p *Pool) newConnection(role conn.Role) (*conn.Connection, error) {
	if p.cfg.ConnFactory != nil {
		return p.cfg.ConnFactory(role)
	}
	journal := ""
	if role == conn.RolePrimary {
		journal = p.cfg.JournalMode.String()
	}
	disposal := func(sql string, h *statement.Handle) { h.Close() }
	// Readers run tight single-goroutine SELECT loops, the case the stamped
	// cache variant defers its LRU bookkeeping for; the writer keeps the
	// linked variant, whose relink-on-hit cost is noise next to write I/O.
	var cache conn.StatementCache
	if role == conn.RoleReadOnly {
		cache = statement.NewStampedCache(p.cfg.StatementCacheCap, disposal)
	} else {
		cache = statement.NewCache(p.cfg.StatementCacheCap, disposal)
	}
	return conn.Open(p.cfg.Path, p.cfg.Key, role, p.cfg.BusyTimeoutMillis, p.cfg.ForeignKeys, journal, cache, p.bo, p.mapErr, p.now)
}

// Acquire blocks until a permitted connection is available and returns it.
// In a non-WAL journal mode there is a single PRIMARY connection and every
// acquisition (read or write) is serialized on it.
func (p *Pool) Acquire(forWrite bool) (*conn.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.JournalMode != JournalWAL {
		forWrite = true
	}
	if forWrite {
		return p.acquireWriterLocked()
	}
	return p.acquireReaderLocked()
}

func (p *Pool) acquireWriterLocked() (*conn.Connection, error) {
	p.waitWriters++
	for p.writerLent && !p.closed {
		p.writerCond.Wait()
	}
	p.waitWriters--
	if p.closed {
		return nil, errPoolClosed
	}
	if p.writer == nil {
		c, err := p.newConnection(conn.RolePrimary)
		if err != nil {
			return nil, err
		}
		p.writer = c
	}
	p.writerLent = true
	return p.writer, nil
}

func (p *Pool) acquireReaderLocked() (*conn.Connection, error) {
	p.waitReaders++
	defer func() { p.waitReaders-- }()
	for {
		if p.closed {
			return nil, errPoolClosed
		}
		for _, r := range p.readers {
			if !r.lent {
				r.lent = true
				return r.c, nil
			}
		}
		if len(p.readers) < p.cfg.MaxConnections-1 {
			c, err := p.newConnection(conn.RoleReadOnly)
			if err != nil {
				return nil, err
			}
			p.readers = append(p.readers, &readerSlot{c: c, lent: true})
			return c, nil
		}
		p.readersCond.Wait()
	}
}

// Release returns c to its free set, or destroys it if poisoned (either by
// the caller's own detection or c.IsPoisoned()).
func (p *Pool) Release(c *conn.Connection, poisoned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	poisoned = poisoned || c.IsPoisoned()

	if c == p.writer {
		p.writerLent = false
		if poisoned {
			log.Warn().Str("path", p.cfg.Path).Msg("selekt: writer connection poisoned, discarding")
			c.Close()
			p.writer = nil
		} else {
			c.Touch()
		}
		p.writerCond.Signal()
		return
	}

	for i, r := range p.readers {
		if r.c != c {
			continue
		}
		if poisoned {
			log.Warn().Str("path", p.cfg.Path).Msg("selekt: reader connection poisoned, discarding")
			c.Close()
			p.readers = append(p.readers[:i], p.readers[i+1:]...)
		} else {
			c.Touch()
			r.lent = false
		}
		p.readersCond.Signal()
		return
	}
}

// CloseIdle reaps connections whose last-used timestamp exceeds the
// configured idle timeout.
func (p *Pool) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	cutoff := p.now() - p.cfg.IdleTimeout.Milliseconds()

	if p.writer != nil && !p.writerLent && p.writer.LastUsedMillis() < cutoff {
		log.Debug().Str("path", p.cfg.Path).Msg("selekt: idle reaper evicting writer")
		p.writer.Close()
		p.writer = nil
	}

	kept := p.readers[:0]
	for _, r := range p.readers {
		if !r.lent && r.c.LastUsedMillis() < cutoff {
			log.Debug().Str("path", p.cfg.Path).Msg("selekt: idle reaper evicting reader")
			r.c.Close()
			continue
		}
		kept = append(kept, r)
	}
	p.readers = kept
}

// StartIdleReaper runs CloseIdle on interval until the returned stop func
// is called or the Pool is closed.
func (p *Pool) StartIdleReaper(interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.CloseIdle()
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

// Stats returns a point-in-time occupancy snapshot.
func (p *Pool) Stats() ConnStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	lent, idle := 0, 0
	if p.writer != nil {
		if p.writerLent {
			lent++
		} else {
			idle++
		}
	}
	for _, r := range p.readers {
		if r.lent {
			lent++
		} else {
			idle++
		}
	}
	return ConnStats{Lent: lent, Idle: idle, WaitingReaders: p.waitReaders, WaitingWriters: p.waitWriters}
}

// Close closes every connection the pool holds and wakes all waiters with
// errPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if p.writer != nil {
		if err := p.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.writer = nil
	}
	for _, r := range p.readers {
		if err := r.c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.readers = nil

	p.writerCond.Broadcast()
	p.readersCond.Broadcast()
	log.Info().Str("path", p.cfg.Path).Msg("selekt: pool closed")
	return firstErr
}
