package selekt

import (
	"database/sql/driver"
	"time"

	"github.com/selekt/selekt/conn"
)

// convertArg maps a database/sql driver.Value to the bind value kinds
// Handle.Bind accepts (nil, int64, float64, string, []byte, bool),
// matching the engine's NULL/INTEGER/REAL/TEXT/BLOB cells. driver.Value is
// already restricted to int64, float64, bool, []byte, string, time.Time, or
// nil, so only time.Time needs translating; it is stored as RFC3339Nano
// text, matching SQLite's lack of a native timestamp type.
func convertArg(v driver.Value) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func convertArgs(values []driver.Value) []conn.Arg {
	return conn.Positional(convertAnyArgs(values)...)
}

func convertAnyArgs(values []driver.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = convertArg(v)
	}
	return out
}

// convertNamedArgs preserves each driver.NamedValue's Name (sql.Named's
// bind name, sigil-free) so named parameters reach statement.Handle.BindNamed
// instead of being silently flattened to positional binds. The name is
// passed bare; BindNamed matches it against whichever sigil (":", "@",
// "$") the statement text actually used.
func convertNamedArgs(values []driver.NamedValue) []conn.Arg {
	out := make([]conn.Arg, len(values))
	for i, v := range values {
		out[i] = conn.Arg{Name: v.Name, Value: convertArg(v.Value)}
	}
	return out
}
