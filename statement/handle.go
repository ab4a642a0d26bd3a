// Package statement implements the owning wrapper around a native prepared
// statement and the bounded LRU caches that hold them per connection.
package statement

import (
	"time"

	"github.com/selekt/selekt/backoff"
	"github.com/selekt/selekt/classifier"
	"github.com/selekt/selekt/native"
)

// StepResult is the outcome of driving a statement one step.
type StepResult int

const (
	StepRow StepResult = iota
	StepDone
)

// ErrorFunc maps a native (primary, extended) result code pair to a typed
// error, deferring to the caller so this package stays independent of the
// root error taxonomy (avoids an import cycle with the root package).
type ErrorFunc func(message string, primary, extended native.Result) error

// Handle is a thin owning wrapper around one native prepared-statement
// pointer. It binds, steps, and finalizes.
type Handle struct {
	db      native.DB
	stmt    native.Stmt
	sql     string
	params  classifier.NamedParams
	backoff *backoff.Backoff
	mapErr  ErrorFunc

	paramCount int
	readOnly   bool
	closed     bool
	busy       bool
}

// Prepare compiles sql against db and returns an owning Handle.
func Prepare(db native.DB, sql string, bo *backoff.Backoff, mapErr ErrorFunc) (*Handle, error) {
	stmt, ret := native.Prepare(db, sql)
	if !ret.OK() {
		return nil, mapErr("failed to prepare statement", native.ErrCode(db), native.ExtendedErrCode(db))
	}
	return &Handle{
		db:         db,
		stmt:       stmt,
		sql:        sql,
		params:     classifier.ParseNamedParameters(sql),
		backoff:    bo,
		mapErr:     mapErr,
		paramCount: native.BindParameterCount(stmt),
		readOnly:   native.StmtReadonly(stmt),
	}, nil
}

// SQL returns the statement's source text, the cache key.
func (h *Handle) SQL() string { return h.sql }

// IsReadOnly reports whether the statement makes no direct database changes.
func (h *Handle) IsReadOnly() bool { return h.readOnly }

// ParameterCount returns the number of bindable parameters.
func (h *Handle) ParameterCount() int { return h.paramCount }

// ColumnCount returns the number of result columns (0 for non-SELECT).
func (h *Handle) ColumnCount() int { return native.ColumnCount(h.stmt) }

// ColumnName returns the name of column i (0-based).
func (h *Handle) ColumnName(i int) string { return native.ColumnName(h.stmt, i) }

// ColumnType returns the native type tag of column i for the current row.
func (h *Handle) ColumnType(i int) native.ColType { return native.ColumnType(h.stmt, i) }

func (h *Handle) ColumnInt64(i int) int64    { return native.ColumnInt64(h.stmt, i) }
func (h *Handle) ColumnDouble(i int) float64 { return native.ColumnDouble(h.stmt, i) }
func (h *Handle) ColumnText(i int) string    { return native.ColumnText(h.stmt, i) }
func (h *Handle) ColumnBlob(i int) []byte    { return native.ColumnBlob(h.stmt, i) }

// IsBusy reports whether the last Step call is still mid-retry (always
// false once Step has returned, since the retry loop is synchronous).
func (h *Handle) IsBusy() bool { return h.busy }

// Bind binds value at a 1-based index. Accepted values are nil (NULL),
// int64 and int (INTEGER), bool (INTEGER 1 or 0), float64 (REAL), string
// (TEXT) and []byte (BLOB); any other type is a Misuse-mapped error.
func (h *Handle) Bind(index int, value any) error {
	if index <= 0 {
		return h.mapErr("bind index must be >= 1", native.ResultMisuse, -1)
	}
	var ret native.Result
	switch v := value.(type) {
	case nil:
		ret = native.BindNull(h.stmt, index)
	case int64:
		ret = native.BindInt64(h.stmt, index, v)
	case int:
		ret = native.BindInt64(h.stmt, index, int64(v))
	case float64:
		ret = native.BindDouble(h.stmt, index, v)
	case string:
		ret = native.BindText(h.stmt, index, v)
	case []byte:
		ret = native.BindBlob(h.stmt, index, v)
	case bool:
		if v {
			ret = native.BindInt64(h.stmt, index, 1)
		} else {
			ret = native.BindInt64(h.stmt, index, 0)
		}
	default:
		return h.mapErr("unsupported bind value type", native.ResultMisuse, -1)
	}
	if !ret.OK() {
		return h.mapErr("failed to bind parameter", ret, -1)
	}
	return nil
}

// BindNamed binds value to the named parameter, resolving its position via
// the statement's parsed named-parameter map. name may carry its sigil
// (":id", "@id", "$id") or be bare ("id", the form database/sql's
// sql.Named supplies); a bare name matches whichever sigil the statement
// text used. Fails with a Misuse-mapped error if the name was never seen
// during parsing.
func (h *Handle) BindNamed(name string, value any) error {
	if index, ok := h.params[name]; ok {
		return h.Bind(index, value)
	}
	if name != "" && name[0] != ':' && name[0] != '@' && name[0] != '$' {
		for _, sigil := range [...]string{":", "@", "$"} {
			if index, ok := h.params[sigil+name]; ok {
				return h.Bind(index, value)
			}
		}
	}
	return h.mapErr("unknown named parameter "+name, native.ResultMisuse, -1)
}

// Step drives the statement one row/done, retrying on BUSY via the backoff
// generator until deadlineMillis. now is injected so tests can control time.
func (h *Handle) Step(deadlineMillis int64, now func() int64) (StepResult, error) {
	attempt := 0
	for {
		ret := native.Step(h.stmt)
		switch {
		case ret.Primary() == native.ResultRow:
			h.busy = false
			return StepRow, nil
		case ret.Primary() == native.ResultDone:
			h.busy = false
			return StepDone, nil
		case ret.Busy():
			h.busy = true
			delay := h.backoff.NextDelayMillis(attempt, deadlineMillis, now())
			if delay == backoff.Failed {
				h.busy = false
				return StepDone, h.mapErr("busy retry deadline exceeded", ret, native.ExtendedErrCode(h.db))
			}
			time.Sleep(time.Duration(delay) * time.Millisecond)
			attempt++
			continue
		default:
			h.busy = false
			return StepDone, h.mapErr("failed to step statement", ret, native.ExtendedErrCode(h.db))
		}
	}
}

// Reset returns the statement to its pre-step state and clears bindings, as
// required before reuse.
func (h *Handle) Reset() error {
	if ret := native.Reset(h.stmt); !ret.OK() {
		return h.mapErr("failed to reset statement", ret, -1)
	}
	if ret := native.ClearBindings(h.stmt); !ret.OK() {
		return h.mapErr("failed to clear bindings", ret, -1)
	}
	return nil
}

// Close finalizes the native statement. Idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if ret := native.Finalize(h.stmt); !ret.OK() {
		return h.mapErr("failed to finalize statement", ret, -1)
	}
	return nil
}
