// Package native binds the subset of the SQLite/SQLCipher C function table
// that the core needs, using purego so the module stays cgo-free:
// open/close, prepare, bind_*, step, reset, clear_bindings, column_*,
// finalize, last_insert_rowid, changes, busy_timeout, key, exec, and
// error codes.
package native

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	lib      uintptr
	initOnce sync.Once
	initErr  error
)

var (
	sqlite3OpenV2           func(filename *byte, db *DB, flags int32, vfs *byte) int32
	sqlite3Close            func(db DB) int32
	sqlite3PrepareV2        func(db DB, sql *byte, nBytes int32, stmt *Stmt, tail *uintptr) int32
	sqlite3Step             func(stmt Stmt) int32
	sqlite3Reset            func(stmt Stmt) int32
	sqlite3ClearBindings    func(stmt Stmt) int32
	sqlite3Finalize         func(stmt Stmt) int32
	sqlite3BindNull         func(stmt Stmt, idx int32) int32
	sqlite3BindInt64        func(stmt Stmt, idx int32, v int64) int32
	sqlite3BindDouble       func(stmt Stmt, idx int32, v float64) int32
	sqlite3BindText         func(stmt Stmt, idx int32, text *byte, n int32, destructor uintptr) int32
	sqlite3BindBlob         func(stmt Stmt, idx int32, blob *byte, n int32, destructor uintptr) int32
	sqlite3BindParameterCount func(stmt Stmt) int32
	sqlite3ColumnCount      func(stmt Stmt) int32
	sqlite3ColumnName       func(stmt Stmt, i int32) *byte
	sqlite3ColumnType       func(stmt Stmt, i int32) int32
	sqlite3ColumnInt64      func(stmt Stmt, i int32) int64
	sqlite3ColumnDouble     func(stmt Stmt, i int32) float64
	sqlite3ColumnText       func(stmt Stmt, i int32) *byte
	sqlite3ColumnBytes      func(stmt Stmt, i int32) int32
	sqlite3ColumnBlob       func(stmt Stmt, i int32) unsafe.Pointer
	sqlite3LastInsertRowID  func(db DB) int64
	sqlite3Changes          func(db DB) int32
	sqlite3BusyTimeout      func(db DB, ms int32) int32
	sqlite3Key              func(db DB, key unsafe.Pointer, n int32) int32
	sqlite3Exec             func(db DB, sql *byte, cb uintptr, arg uintptr, errmsg *uintptr) int32
	sqlite3ErrCode          func(db DB) int32
	sqlite3ExtendedErrCode  func(db DB) int32
	sqlite3Errmsg           func(db DB) *byte
	sqlite3StmtReadonly     func(stmt Stmt) int32
)

// libraryPath returns the platform-specific SQLite/SQLCipher shared library
// path. SELEKT_LIBRARY_PATH overrides the default.
func libraryPath() string {
	if p := os.Getenv("SELEKT_LIBRARY_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "sqlite3.dll"
	case "darwin":
		paths := []string{
			"/opt/homebrew/lib/libsqlcipher.dylib",
			"/usr/local/lib/libsqlcipher.dylib",
			"/opt/homebrew/opt/sqlite/lib/libsqlite3.dylib",
			"/usr/lib/libsqlite3.dylib",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "libsqlite3.dylib"
	default:
		return "libsqlite3.so.0"
	}
}

// Init loads the native library and resolves every function pointer. It is
// idempotent and safe to call from multiple goroutines; only the first
// call's error is retained.
func Init() error {
	initOnce.Do(func() {
		path := libraryPath()
		lib, initErr = loadLibrary(path)
		if initErr != nil {
			initErr = fmt.Errorf("failed to load native library %q: %w (set SELEKT_LIBRARY_PATH to override)", path, initErr)
			return
		}

		purego.RegisterLibFunc(&sqlite3OpenV2, lib, "sqlite3_open_v2")
		purego.RegisterLibFunc(&sqlite3Close, lib, "sqlite3_close")
		purego.RegisterLibFunc(&sqlite3PrepareV2, lib, "sqlite3_prepare_v2")
		purego.RegisterLibFunc(&sqlite3Step, lib, "sqlite3_step")
		purego.RegisterLibFunc(&sqlite3Reset, lib, "sqlite3_reset")
		purego.RegisterLibFunc(&sqlite3ClearBindings, lib, "sqlite3_clear_bindings")
		purego.RegisterLibFunc(&sqlite3Finalize, lib, "sqlite3_finalize")
		purego.RegisterLibFunc(&sqlite3BindNull, lib, "sqlite3_bind_null")
		purego.RegisterLibFunc(&sqlite3BindInt64, lib, "sqlite3_bind_int64")
		purego.RegisterLibFunc(&sqlite3BindDouble, lib, "sqlite3_bind_double")
		purego.RegisterLibFunc(&sqlite3BindText, lib, "sqlite3_bind_text")
		purego.RegisterLibFunc(&sqlite3BindBlob, lib, "sqlite3_bind_blob")
		purego.RegisterLibFunc(&sqlite3BindParameterCount, lib, "sqlite3_bind_parameter_count")
		purego.RegisterLibFunc(&sqlite3ColumnCount, lib, "sqlite3_column_count")
		purego.RegisterLibFunc(&sqlite3ColumnName, lib, "sqlite3_column_name")
		purego.RegisterLibFunc(&sqlite3ColumnType, lib, "sqlite3_column_type")
		purego.RegisterLibFunc(&sqlite3ColumnInt64, lib, "sqlite3_column_int64")
		purego.RegisterLibFunc(&sqlite3ColumnDouble, lib, "sqlite3_column_double")
		purego.RegisterLibFunc(&sqlite3ColumnText, lib, "sqlite3_column_text")
		purego.RegisterLibFunc(&sqlite3ColumnBytes, lib, "sqlite3_column_bytes")
		purego.RegisterLibFunc(&sqlite3ColumnBlob, lib, "sqlite3_column_blob")
		purego.RegisterLibFunc(&sqlite3LastInsertRowID, lib, "sqlite3_last_insert_rowid")
		purego.RegisterLibFunc(&sqlite3Changes, lib, "sqlite3_changes")
		purego.RegisterLibFunc(&sqlite3BusyTimeout, lib, "sqlite3_busy_timeout")
		purego.RegisterLibFunc(&sqlite3Key, lib, "sqlite3_key")
		purego.RegisterLibFunc(&sqlite3Exec, lib, "sqlite3_exec")
		purego.RegisterLibFunc(&sqlite3ErrCode, lib, "sqlite3_errcode")
		purego.RegisterLibFunc(&sqlite3ExtendedErrCode, lib, "sqlite3_extended_errcode")
		purego.RegisterLibFunc(&sqlite3Errmsg, lib, "sqlite3_errmsg")
		purego.RegisterLibFunc(&sqlite3StmtReadonly, lib, "sqlite3_stmt_readonly")
	})
	return initErr
}

func cstr(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

// Open opens filename with the given flags, returning the native handle.
func Open(filename string, flags int32) (DB, Result) {
	var db DB
	ret := sqlite3OpenV2(cstr(filename), &db, flags, nil)
	return db, Result(ret)
}

// Close closes a database handle. Idempotent at the caller's discretion;
// the native call itself is not safe to repeat on an already-closed handle.
func Close(db DB) Result {
	return Result(sqlite3Close(db))
}

// Key applies an SQLCipher encryption key to an already-open handle. A nil
// or empty key is a no-op success (plaintext database).
func Key(db DB, key []byte) Result {
	if len(key) == 0 {
		return ResultOK
	}
	return Result(sqlite3Key(db, unsafe.Pointer(&key[0]), int32(len(key))))
}

// Prepare compiles sql into a new statement handle.
func Prepare(db DB, sql string) (Stmt, Result) {
	var stmt Stmt
	var tail uintptr
	b := append([]byte(sql), 0)
	ret := sqlite3PrepareV2(db, &b[0], int32(len(b)), &stmt, &tail)
	return stmt, Result(ret)
}

// Step advances the statement one row, returning ROW, DONE, or an error code.
func Step(stmt Stmt) Result { return Result(sqlite3Step(stmt)) }

// Reset returns the statement to its pre-step state without clearing binds.
func Reset(stmt Stmt) Result { return Result(sqlite3Reset(stmt)) }

// ClearBindings clears all parameter bindings on the statement.
func ClearBindings(stmt Stmt) Result { return Result(sqlite3ClearBindings(stmt)) }

// Finalize destroys a statement handle. Must be called at most once.
func Finalize(stmt Stmt) Result { return Result(sqlite3Finalize(stmt)) }

// BindNull, BindInt64, BindDouble, BindText and BindBlob bind a value at a
// 1-based parameter index.
func BindNull(stmt Stmt, idx int) Result { return Result(sqlite3BindNull(stmt, int32(idx))) }

func BindInt64(stmt Stmt, idx int, v int64) Result {
	return Result(sqlite3BindInt64(stmt, int32(idx), v))
}

func BindDouble(stmt Stmt, idx int, v float64) Result {
	return Result(sqlite3BindDouble(stmt, int32(idx), v))
}

// sqliteTransient tells SQLite to copy the bound buffer (the Go GC may move
// or free it otherwise). This is the well-known (void*)-1 sentinel.
const sqliteTransient = ^uintptr(0)

func BindText(stmt Stmt, idx int, v string) Result {
	if v == "" {
		return Result(sqlite3BindText(stmt, int32(idx), nil, 0, sqliteTransient))
	}
	b := []byte(v)
	return Result(sqlite3BindText(stmt, int32(idx), &b[0], int32(len(b)), sqliteTransient))
}

func BindBlob(stmt Stmt, idx int, v []byte) Result {
	if len(v) == 0 {
		return Result(sqlite3BindBlob(stmt, int32(idx), nil, 0, sqliteTransient))
	}
	return Result(sqlite3BindBlob(stmt, int32(idx), &v[0], int32(len(v)), sqliteTransient))
}

// BindParameterCount returns the number of `?`/named parameters the
// statement was compiled with.
func BindParameterCount(stmt Stmt) int { return int(sqlite3BindParameterCount(stmt)) }

// ColumnCount returns the number of result columns.
func ColumnCount(stmt Stmt) int { return int(sqlite3ColumnCount(stmt)) }

// ColumnName returns the name of column i (0-based).
func ColumnName(stmt Stmt, i int) string {
	p := sqlite3ColumnName(stmt, int32(i))
	return goString(p)
}

// ColumnType returns the native type tag of column i for the current row.
func ColumnType(stmt Stmt, i int) ColType { return ColType(sqlite3ColumnType(stmt, int32(i))) }

func ColumnInt64(stmt Stmt, i int) int64     { return sqlite3ColumnInt64(stmt, int32(i)) }
func ColumnDouble(stmt Stmt, i int) float64  { return sqlite3ColumnDouble(stmt, int32(i)) }

func ColumnText(stmt Stmt, i int) string {
	p := sqlite3ColumnText(stmt, int32(i))
	n := int(sqlite3ColumnBytes(stmt, int32(i)))
	return goStringN(p, n)
}

func ColumnBlob(stmt Stmt, i int) []byte {
	n := int(sqlite3ColumnBytes(stmt, int32(i)))
	if n == 0 {
		return nil
	}
	p := sqlite3ColumnBlob(stmt, int32(i))
	return unsafe.Slice((*byte)(p), n)
}

// LastInsertRowID returns the rowid of the most recent successful insert.
func LastInsertRowID(db DB) int64 { return sqlite3LastInsertRowID(db) }

// Changes returns the number of rows changed by the most recent statement.
func Changes(db DB) int { return int(sqlite3Changes(db)) }

// BusyTimeout configures the native busy handler's sleep budget. The core's
// own retry loop (backoff package) governs retries above the engine level;
// this sets the engine's internal short-sleep behaviour underneath it.
func BusyTimeout(db DB, ms int) Result { return Result(sqlite3BusyTimeout(db, int32(ms))) }

// Exec runs sql directly (no prepared statement, no results), used for
// PRAGMAs and BEGIN/COMMIT/ROLLBACK.
func Exec(db DB, sql string) Result {
	b := append([]byte(sql), 0)
	var errmsg uintptr
	return Result(sqlite3Exec(db, &b[0], 0, 0, &errmsg))
}

// ErrCode and ExtendedErrCode return the last primary/extended result code
// recorded on the connection.
func ErrCode(db DB) Result         { return Result(sqlite3ErrCode(db)) }
func ExtendedErrCode(db DB) Result { return Result(sqlite3ExtendedErrCode(db)) }

// Errmsg returns the human-readable message for the last error on db.
func Errmsg(db DB) string { return goString(sqlite3Errmsg(db)) }

// StmtReadonly reports whether stmt makes no direct changes to the database.
func StmtReadonly(stmt Stmt) bool { return sqlite3StmtReadonly(stmt) != 0 }

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for {
		b := *(*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	return goStringN(p, n)
}

func goStringN(p *byte, n int) string {
	if p == nil || n <= 0 {
		return ""
	}
	return string(unsafe.Slice(p, n))
}
