package selekt

import (
	"context"
	"database/sql/driver"

	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/session"
)

// Conn implements driver.Conn over a Session: one Session per dialed
// database/sql connection, transparently pinning and releasing Pool
// connections as statements execute.
type Conn struct {
	session *session.Session
	closed  bool
}

// Prepare returns a Stmt bound to query; no native compilation happens
// until the statement is actually executed, since compilation requires a
// connection the Session has not necessarily acquired yet.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext is identical to Prepare; context cancellation is not
// threaded into the synchronous core.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query}, nil
}

// Close releases the Session's pinned connection, if any, back to the Pool.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.session.Close()
	return nil
}

// Begin starts a deferred transaction (deprecated path, use BeginTx).
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts a transaction. opts.ReadOnly selects BeginDeferred (a
// reader-eligible connection); otherwise BeginImmediate pins a writer
// up front, avoiding the classic SQLite "begin deferred then upgrade on
// first write" deadlock window.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	var err error
	if opts.ReadOnly {
		err = c.session.BeginDeferred()
	} else {
		err = c.session.BeginImmediate()
	}
	if err != nil {
		return nil, err
	}
	return &Tx{conn: c}, nil
}

// withConnection runs fn against the Session's currently pinned (or
// newly acquired) Connection, classifying query to decide read vs. write.
func (c *Conn) withConnection(query string, fn func(*conn.Connection) (any, error)) (any, error) {
	return c.session.Execute(false, query, fn)
}

var (
	_ driver.Conn               = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
)
