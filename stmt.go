package selekt

import (
	"context"
	"database/sql/driver"

	"github.com/selekt/selekt/conn"
)

// Stmt implements driver.Stmt. It carries no native resources of its own;
// compilation happens lazily, each time it executes, through whichever
// Connection the owning Conn's Session currently has pinned (or acquires).
// This keeps a prepared database/sql statement safe to reuse across
// Session pin/release cycles without finalizing and recompiling by hand.
type Stmt struct {
	conn  *Conn
	query string
}

// Close is a no-op: Stmt holds no native handle to release. The underlying
// compiled statement, if still cached, is finalized by its owning
// Connection's StatementCache.
func (s *Stmt) Close() error { return nil }

// NumInput reports -1 (unknown), deferring parameter-count validation to
// the native prepare step, mirroring drivers whose backend doesn't expose
// the count up front.
func (s *Stmt) NumInput() int { return -1 }

// Exec runs the statement and returns its Result (deprecated path, use
// ExecContext).
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.execWith(convertArgs(args))
}

// ExecContext runs the statement and returns its Result.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.execWith(convertNamedArgs(args))
}

func (s *Stmt) execWith(args []conn.Arg) (driver.Result, error) {
	out, err := s.conn.withConnection(s.query, func(c *conn.Connection) (any, error) {
		lastInsertID, changes, err := c.ExecuteForResult(s.query, args)
		if err != nil {
			return nil, err
		}
		return &Result{lastInsertID: lastInsertID, rowsAffected: int64(changes)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

// Query runs the statement and returns its Rows (deprecated path, use
// QueryContext).
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.queryWith(convertArgs(args))
}

// QueryContext runs the statement and returns its Rows.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.queryWith(convertNamedArgs(args))
}

func (s *Stmt) queryWith(args []conn.Arg) (driver.Rows, error) {
	out, err := s.conn.withConnection(s.query, func(c *conn.Connection) (any, error) {
		return materializeRows(c, s.query, args)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Rows), nil
}

var (
	_ driver.Stmt             = (*Stmt)(nil)
	_ driver.StmtExecContext  = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
)
