package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/native"
	"github.com/selekt/selekt/pool"
)

func testMapErr(message string, primary, extended native.Result) error {
	return fmt.Errorf("%s (%d)", message, int32(primary))
}

// newTestSession binds a Session to a pool of detached connections so pin
// and routing behavior can be exercised without a native library. The fn
// closures below never send SQL to the connection; Execute's own
// classification and pin bookkeeping are what is under test.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := pool.NewConfig("test.db",
		pool.WithMaxConnections(3),
		pool.WithConnFactory(func(role conn.Role) (*conn.Connection, error) {
			return conn.NewDetached(role, testMapErr, nil), nil
		}),
	)
	p := pool.New(cfg, testMapErr, nil)
	t.Cleanup(func() { p.Close() })
	return New(p, testMapErr)
}

func noop(*conn.Connection) (any, error) { return nil, nil }

func TestSession_OneShotReleasesImmediately(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(false, "SELECT 1", noop)
	require.NoError(t, err)
	assert.False(t, s.Pinned(), "one-shot statement must not leave a pin behind")
}

func TestSession_PinHeldUntilDepthReachesZero(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(true, "BEGIN IMMEDIATE", noop)
	require.NoError(t, err)
	require.True(t, s.Pinned(), "BEGIN must pin the connection")

	var first, second *conn.Connection
	_, err = s.Execute(true, "INSERT INTO t VALUES (1)", func(c *conn.Connection) (any, error) {
		first = c
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, s.Pinned())

	_, err = s.Execute(false, "SELECT 1", func(c *conn.Connection) (any, error) {
		second = c
		return nil, nil
	})
	require.NoError(t, err)
	assert.Same(t, first, second, "statements inside the transaction must reuse the pinned connection")
	require.True(t, s.Pinned())

	_, err = s.Execute(true, "COMMIT", noop)
	require.NoError(t, err)
	assert.False(t, s.Pinned(), "pin must be released exactly when depth returns to 0")
}

func TestSession_RollbackReleasesPin(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(true, "BEGIN", noop)
	require.NoError(t, err)
	require.True(t, s.Pinned())

	_, err = s.Execute(true, "ROLLBACK", noop)
	require.NoError(t, err)
	assert.False(t, s.Pinned())
}

func TestSession_FailedBeginDoesNotLeakPin(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(true, "BEGIN", func(*conn.Connection) (any, error) {
		return nil, fmt.Errorf("begin failed downstream")
	})
	require.Error(t, err)
	assert.False(t, s.Pinned(), "a failed BEGIN must not leave the session pinned")
}

func TestSession_ClassificationRoutesWritesToWriter(t *testing.T) {
	s := newTestSession(t)

	// writeHint false, but INSERT classifies as a predicted write.
	_, err := s.Execute(false, "INSERT INTO t VALUES (1)", func(c *conn.Connection) (any, error) {
		assert.Equal(t, conn.RolePrimary, c.Role())
		return nil, nil
	})
	require.NoError(t, err)

	_, err = s.Execute(false, "SELECT 1", func(c *conn.Connection) (any, error) {
		assert.Equal(t, conn.RoleReadOnly, c.Role())
		return nil, nil
	})
	require.NoError(t, err)
}

func TestSession_ReadToWriteUpgradeForbidden(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(false, "SELECT 1", func(c *conn.Connection) (any, error) {
		require.Equal(t, conn.RoleReadOnly, c.Role())
		_, nested := s.Execute(true, "INSERT INTO t VALUES (1)", noop)
		assert.Error(t, nested, "a write on a read-only binding must fail, not swap connections")
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, s.Pinned())
}

func TestSession_CloseDiscardsPin(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Execute(true, "BEGIN", noop)
	require.NoError(t, err)
	require.True(t, s.Pinned())

	s.Close()
	assert.False(t, s.Pinned())
}
