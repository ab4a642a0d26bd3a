// Package session implements the per-caller binding of "the connection
// I'm using now".
//
// Go has no reliable thread-local storage, so the JDBC-style thread-bound
// session becomes an explicit handle: callers hold a *Session (one per
// goroutine of database work) instead of the runtime resolving "the
// current session" implicitly.
package session

import (
	"github.com/selekt/selekt/classifier"
	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/native"
	"github.com/selekt/selekt/pool"
)

// ErrorFunc maps a native (primary, extended) result-code pair to a typed
// error, supplied by whoever assembles the Session (the root package).
type ErrorFunc = conn.ErrorFunc

// Session pins a Connection to a caller for the duration of a transaction
// or compiled-statement reuse.
type Session struct {
	pool     *pool.Pool
	mapErr   ErrorFunc
	conn     *conn.Connection
	pinDepth int
}

// New returns a Session bound to p. Sessions are not safe for concurrent
// use by more than one goroutine at a time: treat one Session like one
// thread-bound caller.
func New(p *pool.Pool, mapErr ErrorFunc) *Session {
	return &Session{pool: p, mapErr: mapErr}
}

// Pinned reports whether this session currently holds a connection.
func (s *Session) Pinned() bool { return s.conn != nil }

// acquire pins a connection for asWrite if the session isn't already
// pinned, else reuses the pinned connection; upgrading a read-only pin to
// a write is forbidden.
func (s *Session) acquire(asWrite bool) (*conn.Connection, error) {
	if s.conn != nil {
		if asWrite && s.conn.Role() != conn.RolePrimary {
			return nil, s.mapErr("cannot upgrade a read-only session to a write", native.ResultMisuse, -1)
		}
		return s.conn, nil
	}
	c, err := s.pool.Acquire(asWrite)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return c, nil
}

// releaseIfUnpinned returns the connection to the pool once the pin depth
// reaches zero.
func (s *Session) releaseIfUnpinned() {
	if s.pinDepth > 0 || s.conn == nil {
		return
	}
	poisoned := s.conn.IsPoisoned()
	s.pool.Release(s.conn, poisoned)
	s.conn = nil
}

// Execute classifies sql via the Classifier (C1), refines writeHint with
// its predicted-write flag, acquires (or reuses the pinned) connection,
// and runs fn against it. One-shot statements (outside an explicit
// transaction) release the connection immediately after fn returns;
// statements within a pinned transaction do not.
//
// fn is what actually sends sql to the Connection (via Query/ExecuteSQL/…),
// so a caller-supplied BEGIN/COMMIT/ROLLBACK statement is issued to the
// engine exactly once, by fn; Execute only adjusts the session's pin depth
// around it rather than separately invoking Connection's Begin*/End (which
// issue their own BEGIN/COMMIT/ROLLBACK text and would double-issue here).
func (s *Session) Execute(writeHint bool, sql string, fn func(*conn.Connection) (any, error)) (any, error) {
	flags := classifier.Classify(sql)
	asWrite := writeHint || flags.IsPredictedWrite

	c, err := s.acquire(asWrite)
	if err != nil {
		return nil, err
	}

	if flags.Begins {
		s.pinDepth++
	}

	var result any
	err = c.Execute(asWrite, func() error {
		var ferr error
		result, ferr = fn(c)
		return ferr
	})

	if flags.Begins && err != nil {
		s.pinDepth--
	}

	if flags.Commits || flags.Aborts {
		if s.pinDepth > 0 {
			s.pinDepth--
		}
	}

	if s.pinDepth == 0 {
		s.releaseIfUnpinned()
	}

	return result, err
}

// BeginImmediate pins (or reuses the pin on) a writer connection and
// issues BEGIN IMMEDIATE, incrementing the session's transaction depth.
func (s *Session) BeginImmediate() error { return s.begin((*conn.Connection).BeginImmediate, true) }

// BeginExclusive pins a writer connection and issues BEGIN EXCLUSIVE.
func (s *Session) BeginExclusive() error { return s.begin((*conn.Connection).BeginExclusive, true) }

// BeginDeferred pins a connection (reader-eligible) and issues BEGIN
// DEFERRED; a later write within the same transaction still requires a
// writer connection and fails per the upgrade-forbidden rule if this one
// is read-only.
func (s *Session) BeginDeferred() error { return s.begin((*conn.Connection).BeginDeferred, false) }

func (s *Session) begin(do func(*conn.Connection) error, asWrite bool) error {
	c, err := s.acquire(asWrite)
	if err != nil {
		return err
	}
	if err := do(c); err != nil {
		return err
	}
	s.pinDepth++
	return nil
}

// SetSuccessful marks the current transaction level successful.
func (s *Session) SetSuccessful() error {
	if s.conn == nil {
		return s.mapErr("setSuccessful called with no transaction open", native.ResultMisuse, -1)
	}
	return s.conn.SetSuccessful()
}

// End decrements the transaction depth, committing or rolling back at the
// 1->0 transition, and releases the pin once depth reaches zero.
func (s *Session) End() error {
	if s.conn == nil {
		return s.mapErr("end called with no transaction open", native.ResultMisuse, -1)
	}
	err := s.conn.End()
	if s.pinDepth > 0 {
		s.pinDepth--
	}
	s.releaseIfUnpinned()
	return err
}

// Close releases the session's pin, if any, discarding the pinned
// connection back to the pool without running any transaction-end logic.
// Intended for abrupt shutdown paths, not normal transaction completion.
func (s *Session) Close() {
	s.pinDepth = 0
	s.releaseIfUnpinned()
}
