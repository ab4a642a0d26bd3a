// Package conn implements Connection: one native database handle, its
// statement cache, and the per-connection transaction state machine.
package conn

import (
	"time"

	"github.com/selekt/selekt/backoff"
	"github.com/selekt/selekt/native"
	"github.com/selekt/selekt/statement"
)

// Role is the connection's lending role within the Pool.
type Role int

const (
	RolePrimary Role = iota
	RoleReadOnly
)

func (r Role) String() string {
	if r == RolePrimary {
		return "PRIMARY"
	}
	return "READ_ONLY"
}

// ErrorFunc maps a native (primary, extended) result-code pair to a typed
// error; supplied by the caller assembling the pool, so this package stays
// independent of the root error taxonomy (same pattern as statement.ErrorFunc).
type ErrorFunc = statement.ErrorFunc

// StatementCache is the subset of statement.Cache / statement.StampedCache
// a Connection needs.
type StatementCache interface {
	GetOrCompile(sql string, compile statement.CompileFunc) (*statement.Handle, error)
	EvictAll()
	Len() int
}

// Connection owns one native DB handle plus a statement cache, a role, a
// busy-timeout, and the transaction depth/successful-flag machine.
type Connection struct {
	db       native.DB
	path     string
	cache    StatementCache
	role     Role
	busyMs   int64
	bo       *backoff.Backoff
	mapErr   ErrorFunc
	now      func() int64
	tx       txState
	poisoned bool
	closed   bool
	lastUsed int64
}

// Open opens a native database at path and configures it per role.
// foreignKeys and journalPragma ("WAL", "DELETE", ...) are applied via
// PRAGMA immediately after open.
func Open(path string, key []byte, role Role, busyTimeoutMillis int64, foreignKeys bool, journalPragma string, cache StatementCache, bo *backoff.Backoff, mapErr ErrorFunc, now func() int64) (*Connection, error) {
	if err := native.Init(); err != nil {
		return nil, mapErr(err.Error(), native.ResultCantOpen, -1)
	}

	var flags int32 = native.OpenNoMutex
	if role == RolePrimary {
		flags |= native.OpenReadWrite | native.OpenCreate
	} else {
		flags |= native.OpenReadOnly
	}

	db, ret := native.Open(path, flags)
	if !ret.OK() {
		return nil, mapErr("failed to open database "+path, ret, -1)
	}

	if len(key) > 0 {
		if ret := native.Key(db, key); !ret.OK() {
			native.Close(db)
			return nil, mapErr("failed to key database "+path, ret, native.ExtendedErrCode(db))
		}
	}

	if ret := native.BusyTimeout(db, int(busyTimeoutMillis)); !ret.OK() {
		native.Close(db)
		return nil, mapErr("failed to set busy timeout", ret, -1)
	}

	fk := "OFF"
	if foreignKeys {
		fk = "ON"
	}
	if ret := native.Exec(db, "PRAGMA foreign_keys = "+fk); !ret.OK() {
		native.Close(db)
		return nil, mapErr("failed to set foreign_keys pragma", ret, native.ExtendedErrCode(db))
	}
	if role == RolePrimary && journalPragma != "" {
		if ret := native.Exec(db, "PRAGMA journal_mode = "+journalPragma); !ret.OK() {
			native.Close(db)
			return nil, mapErr("failed to set journal_mode pragma", ret, native.ExtendedErrCode(db))
		}
	}

	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	c := &Connection{
		db:       db,
		path:     path,
		cache:    cache,
		role:     role,
		busyMs:   busyTimeoutMillis,
		bo:       bo,
		now:      now,
		lastUsed: now(),
	}
	// Wrap the caller's error mapper so every failure observed anywhere in
	// this connection's lifetime (prepare, step, pragma) is also checked
	// against the poisoning rule, without this package needing to inspect
	// the concrete error type the wrapped mapErr builds.
	c.mapErr = func(message string, primary, extended native.Result) error {
		if isFatal(primary, extended) {
			c.poisoned = true
		}
		return mapErr(message, primary, extended)
	}
	return c, nil
}

// NewDetached returns a Connection with no native database behind it: the
// role, lending lifecycle (Touch/LastUsedMillis/Close), and poisoning
// behave normally, while statement execution fails with a mapped error.
// Pool and Session harnesses use it to exercise lending discipline
// without loading a native library.
func NewDetached(role Role, mapErr ErrorFunc, now func() int64) *Connection {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	c := &Connection{role: role, now: now, lastUsed: now()}
	c.mapErr = func(message string, primary, extended native.Result) error {
		if isFatal(primary, extended) {
			c.poisoned = true
		}
		return mapErr(message, primary, extended)
	}
	return c
}

// Role reports the connection's lending role.
func (c *Connection) Role() Role { return c.role }

// IsPoisoned reports whether a fatal error was observed; the Pool discards
// poisoned connections on release.
func (c *Connection) IsPoisoned() bool { return c.poisoned }

// LastUsedMillis returns the wall-clock time of the connection's last
// completed operation, used by the Pool's idle reaper.
func (c *Connection) LastUsedMillis() int64 { return c.lastUsed }

// Touch refreshes the last-used timestamp; called by the Pool on release.
func (c *Connection) Touch() { c.lastUsed = c.now() }

// InTransaction reports whether the transaction depth is greater than zero.
func (c *Connection) InTransaction() bool { return c.tx.depth > 0 }

func (c *Connection) deadline() int64 { return c.now() + c.busyMs }

func (c *Connection) compile(sql string) (*statement.Handle, error) {
	return statement.Prepare(c.db, sql, c.bo, c.mapErr)
}

func (c *Connection) prepare(sql string) (*statement.Handle, error) {
	if c.cache == nil {
		return nil, c.mapErr("connection has no statement cache", native.ResultMisuse, -1)
	}
	return c.cache.GetOrCompile(sql, c.compile)
}

// isFatal reports the CORRUPT/NOT_A_DATABASE/unrecoverable-IO conditions
// that poison a connection.
func isFatal(primary, extended native.Result) bool {
	switch primary.Primary() {
	case native.ResultCorrupt, native.ResultNotADB:
		return true
	case native.ResultIOErr:
		switch extended {
		case native.ResultIOErrAccess, native.ResultIOErrLock, native.ResultIOErrUnlock, native.ResultIOErrNoMem:
			return false
		default:
			return true
		}
	default:
		return false
	}
}

// Execute ensures predictedWrite callers only run on the writer role, then
// runs work. The Pool only ever lends a writer-role Connection for
// write-intended acquisitions, so this is a second check behind it.
func (c *Connection) Execute(predictedWrite bool, work func() error) error {
	if predictedWrite && c.role != RolePrimary {
		return c.mapErr("write attempted on a read-only connection", native.ResultMisuse, -1)
	}
	return work()
}

// Arg is one bind argument: a plain positional value, or a named value
// (":name", "@name", "$name", sigil included) resolved against the
// statement's parsed named-parameter map.
type Arg struct {
	Name  string
	Value any
}

// Positional wraps plain values as positional Args, for callers that have
// no named parameters to bind.
func Positional(values ...any) []Arg {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = Arg{Value: v}
	}
	return args
}

func bindArgs(h *statement.Handle, args []Arg) error {
	for i, a := range args {
		if a.Name != "" {
			if err := h.BindNamed(a.Name, a.Value); err != nil {
				return err
			}
			continue
		}
		if err := h.Bind(i+1, a.Value); err != nil {
			return err
		}
	}
	return nil
}

// Cursor is a forward-only, lazily-stepped result set over a cached
// statement, returned by Query.
type Cursor struct {
	h       *statement.Handle
	conn    *Connection
	done    bool
	closed  bool
	lastErr error
}

// Next advances the cursor one row. It returns false at end-of-results or
// on error (check Err() to distinguish the two).
func (cur *Cursor) Next() bool {
	if cur.done || cur.closed {
		return false
	}
	result, err := cur.h.Step(cur.conn.deadline(), cur.conn.now)
	if err != nil {
		cur.done = true
		cur.lastErr = err
		return false
	}
	if result == statement.StepDone {
		cur.done = true
		return false
	}
	return true
}

// Err returns the error that ended iteration, if any.
func (cur *Cursor) Err() error { return cur.lastErr }

// ColumnCount, ColumnName and the Column* accessors expose the current row.
func (cur *Cursor) ColumnCount() int                   { return cur.h.ColumnCount() }
func (cur *Cursor) ColumnName(i int) string            { return cur.h.ColumnName(i) }
func (cur *Cursor) ColumnType(i int) native.ColType     { return cur.h.ColumnType(i) }
func (cur *Cursor) ColumnInt64(i int) int64             { return cur.h.ColumnInt64(i) }
func (cur *Cursor) ColumnDouble(i int) float64          { return cur.h.ColumnDouble(i) }
func (cur *Cursor) ColumnText(i int) string             { return cur.h.ColumnText(i) }
func (cur *Cursor) ColumnBlob(i int) []byte             { return cur.h.ColumnBlob(i) }

// Close returns the underlying statement handle to its reset state so the
// cache can hand it out again; it does not finalize the handle.
func (cur *Cursor) Close() error {
	if cur.closed {
		return nil
	}
	cur.closed = true
	return cur.h.Reset()
}

// Query compiles sql (via the cache), binds args, and returns a Cursor.
func (c *Connection) Query(sql string, args []Arg) (*Cursor, error) {
	h, err := c.prepare(sql)
	if err != nil {
		return nil, err
	}
	if err := bindArgs(h, args); err != nil {
		return nil, err
	}
	return &Cursor{h: h, conn: c}, nil
}

func (c *Connection) stepToCompletion(h *statement.Handle) error {
	for {
		result, err := h.Step(c.deadline(), c.now)
		if err != nil {
			return err
		}
		if result == statement.StepDone {
			return nil
		}
	}
}

// ExecuteSQL compiles, binds, and fully steps sql, discarding any rows.
func (c *Connection) ExecuteSQL(sql string, args []Arg) error {
	h, err := c.prepare(sql)
	if err != nil {
		return err
	}
	defer h.Reset()
	if err := bindArgs(h, args); err != nil {
		return err
	}
	return c.stepToCompletion(h)
}

// ExecuteForChangedRowCount runs sql and returns native.Changes afterward.
func (c *Connection) ExecuteForChangedRowCount(sql string, args []Arg) (int, error) {
	if err := c.ExecuteSQL(sql, args); err != nil {
		return 0, err
	}
	return native.Changes(c.db), nil
}

// ExecuteForLastInsertedRowID runs sql and returns native.LastInsertRowID.
func (c *Connection) ExecuteForLastInsertedRowID(sql string, args []Arg) (int64, error) {
	if err := c.ExecuteSQL(sql, args); err != nil {
		return 0, err
	}
	return native.LastInsertRowID(c.db), nil
}

// ExecuteForResult runs sql once and returns both native.Changes and
// native.LastInsertRowID from that single execution, for callers (such as
// the database/sql driver.Result adapter) that need both without running
// the statement twice.
func (c *Connection) ExecuteForResult(sql string, args []Arg) (lastInsertID int64, changes int, err error) {
	if err := c.ExecuteSQL(sql, args); err != nil {
		return 0, 0, err
	}
	return native.LastInsertRowID(c.db), native.Changes(c.db), nil
}

// ExecuteForLong runs sql and returns column 0 of the first row as int64.
func (c *Connection) ExecuteForLong(sql string, args []Arg) (int64, error) {
	cur, err := c.Query(sql, args)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	if !cur.Next() {
		if cur.Err() != nil {
			return 0, cur.Err()
		}
		return 0, c.mapErr("query returned no rows", native.ResultNotFound, -1)
	}
	return cur.ColumnInt64(0), nil
}

// ExecuteForString runs sql and returns column 0 of the first row as text.
func (c *Connection) ExecuteForString(sql string, args []Arg) (string, error) {
	cur, err := c.Query(sql, args)
	if err != nil {
		return "", err
	}
	defer cur.Close()
	if !cur.Next() {
		if cur.Err() != nil {
			return "", cur.Err()
		}
		return "", c.mapErr("query returned no rows", native.ResultNotFound, -1)
	}
	return cur.ColumnText(0), nil
}

// ExecuteBatchForChangedRowCount runs sql once per row in argsList against a
// single compiled statement, resetting between rows, and returns the total
// number of rows changed across the batch.
func (c *Connection) ExecuteBatchForChangedRowCount(sql string, argsList [][]Arg) (int, error) {
	h, err := c.prepare(sql)
	if err != nil {
		return 0, err
	}
	defer h.Reset()

	total := 0
	for _, args := range argsList {
		if err := bindArgs(h, args); err != nil {
			return total, err
		}
		if err := c.stepToCompletion(h); err != nil {
			return total, err
		}
		total += native.Changes(c.db)
		if err := h.Reset(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close finalizes every cached statement and closes the native handle.
// Idempotent.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cache != nil {
		c.cache.EvictAll()
	}
	if c.db == 0 {
		return nil
	}
	if ret := native.Close(c.db); !ret.OK() {
		return c.mapErr("failed to close database "+c.path, ret, -1)
	}
	return nil
}
