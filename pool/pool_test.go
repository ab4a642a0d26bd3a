package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/native"
)

func testMapErr(message string, primary, extended native.Result) error {
	return fmt.Errorf("%s (%d)", message, int32(primary))
}

// newTestPool builds a Pool over detached connections (no native library)
// and reports how many the factory created.
func newTestPool(t *testing.T, opts ...ConfigOption) (*Pool, *int32) {
	t.Helper()
	var created int32
	base := []ConfigOption{
		WithMaxConnections(3),
		WithConnFactory(func(role conn.Role) (*conn.Connection, error) {
			atomic.AddInt32(&created, 1)
			return conn.NewDetached(role, testMapErr, nil), nil
		}),
	}
	p := New(NewConfig("test.db", append(base, opts...)...), testMapErr, nil)
	t.Cleanup(func() { p.Close() })
	return p, &created
}

func TestPool_WriterHandedOverAfterRelease(t *testing.T) {
	p, _ := newTestPool(t)

	w1, err := p.Acquire(true)
	require.NoError(t, err)
	require.Equal(t, conn.RolePrimary, w1.Role())

	acquired := make(chan *conn.Connection, 1)
	go func() {
		w2, err := p.Acquire(true)
		if err == nil {
			acquired <- w2
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second writer lent while the first was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(w1, false)

	select {
	case w2 := <-acquired:
		assert.Same(t, w1, w2, "writer slot should be reused, not recreated")
	case <-time.After(time.Second):
		t.Fatal("writer never handed over after release")
	}
}

func TestPool_AtMostOneWriterLent(t *testing.T) {
	p, created := newTestPool(t)

	var inUse, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c, err := p.Acquire(true)
				if err != nil {
					return
				}
				n := atomic.AddInt32(&inUse, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				atomic.AddInt32(&inUse, -1)
				p.Release(c, false)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(1), "more than one writer lent concurrently")
	assert.Equal(t, int32(1), atomic.LoadInt32(created), "writer should be created once and reused")
}

func TestPool_ReaderCapacityBlocksThenReuses(t *testing.T) {
	p, created := newTestPool(t) // max 3: one writer slot + two readers

	r1, err := p.Acquire(false)
	require.NoError(t, err)
	require.Equal(t, conn.RoleReadOnly, r1.Role())
	r2, err := p.Acquire(false)
	require.NoError(t, err)

	acquired := make(chan *conn.Connection, 1)
	go func() {
		r3, err := p.Acquire(false)
		if err == nil {
			acquired <- r3
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third reader lent beyond capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(r2, false)

	select {
	case r3 := <-acquired:
		assert.Same(t, r2, r3, "released reader should be reused")
	case <-time.After(time.Second):
		t.Fatal("blocked reader never woken after release")
	}

	p.Release(r1, false)
	assert.Equal(t, int32(2), atomic.LoadInt32(created))
}

func TestPool_NonWALFunnelsReadsThroughWriter(t *testing.T) {
	p, _ := newTestPool(t, WithJournalMode(JournalDelete))

	c, err := p.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, conn.RolePrimary, c.Role(), "non-WAL reads must serialize on the single PRIMARY connection")
	p.Release(c, false)
}

func TestPool_PoisonedConnectionDiscardedOnRelease(t *testing.T) {
	p, created := newTestPool(t)

	w1, err := p.Acquire(true)
	require.NoError(t, err)
	p.Release(w1, true)

	w2, err := p.Acquire(true)
	require.NoError(t, err)
	assert.NotSame(t, w1, w2, "poisoned writer must not be lent again")
	assert.Equal(t, int32(2), atomic.LoadInt32(created))
	p.Release(w2, false)
}

func TestPool_PoisonedReaderDiscardedOnRelease(t *testing.T) {
	p, created := newTestPool(t)

	r1, err := p.Acquire(false)
	require.NoError(t, err)
	p.Release(r1, true)

	r2, err := p.Acquire(false)
	require.NoError(t, err)
	assert.NotSame(t, r1, r2)
	assert.Equal(t, int32(2), atomic.LoadInt32(created))
	p.Release(r2, false)
}

func TestPool_Stats(t *testing.T) {
	p, _ := newTestPool(t)

	w, err := p.Acquire(true)
	require.NoError(t, err)
	r, err := p.Acquire(false)
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, 2, s.Lent)
	assert.Equal(t, 0, s.Idle)

	p.Release(w, false)
	p.Release(r, false)

	s = p.Stats()
	assert.Equal(t, 0, s.Lent)
	assert.Equal(t, 2, s.Idle)
}

func TestPool_CloseIdleReapsStaleConnections(t *testing.T) {
	var created int32
	var now atomic.Int64
	clock := func() int64 { return now.Load() }

	cfg := NewConfig("test.db",
		WithMaxConnections(3),
		WithIdleTimeout(time.Minute),
		WithConnFactory(func(role conn.Role) (*conn.Connection, error) {
			atomic.AddInt32(&created, 1)
			return conn.NewDetached(role, testMapErr, clock), nil
		}),
	)
	p := New(cfg, testMapErr, clock)
	defer p.Close()

	w, err := p.Acquire(true)
	require.NoError(t, err)
	p.Release(w, false)
	require.Equal(t, 1, p.Stats().Idle)

	now.Store(time.Minute.Milliseconds() + 1)
	p.CloseIdle()
	assert.Equal(t, 0, p.Stats().Idle, "stale writer should be reaped")

	_, err = p.Acquire(true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&created), "next acquire should open a fresh connection")
}

func TestPool_CloseIdleKeepsFreshConnections(t *testing.T) {
	var now atomic.Int64
	clock := func() int64 { return now.Load() }

	cfg := NewConfig("test.db",
		WithMaxConnections(3),
		WithIdleTimeout(time.Minute),
		WithConnFactory(func(role conn.Role) (*conn.Connection, error) {
			return conn.NewDetached(role, testMapErr, clock), nil
		}),
	)
	p := New(cfg, testMapErr, clock)
	defer p.Close()

	w, err := p.Acquire(true)
	require.NoError(t, err)
	p.Release(w, false)

	now.Store(time.Minute.Milliseconds() - 1)
	p.CloseIdle()
	assert.Equal(t, 1, p.Stats().Idle, "connection within the idle timeout must survive")
}

func TestPool_CloseWakesBlockedWaiters(t *testing.T) {
	p, _ := newTestPool(t)

	w, err := p.Acquire(true)
	require.NoError(t, err)
	_ = w

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(true)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err, "waiter must observe the pool closing, not hang")
	case <-time.After(time.Second):
		t.Fatal("blocked waiter never woken by Close")
	}
}
