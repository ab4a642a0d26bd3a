package native

// DB is an opaque pointer to a native sqlite3 database handle.
type DB uintptr

// Stmt is an opaque pointer to a native sqlite3_stmt prepared-statement handle.
type Stmt uintptr

// ColType is a native column/value type tag as reported by sqlite3_column_type.
type ColType int32

const (
	TypeInteger ColType = 1
	TypeFloat   ColType = 2
	TypeText    ColType = 3
	TypeBlob    ColType = 4
	TypeNull    ColType = 5
)

// Result is a primary (low 8 bits) or combined primary+extended native
// result code returned by sqlite3_* calls.
type Result int32

// Primary result codes (low-order, the bottom byte of an extended code).
const (
	ResultOK         Result = 0
	ResultError      Result = 1
	ResultInternal   Result = 2
	ResultPerm       Result = 3
	ResultAbort      Result = 4
	ResultBusy       Result = 5
	ResultLocked     Result = 6
	ResultNoMem      Result = 7
	ResultReadOnly   Result = 8
	ResultInterrupt  Result = 9
	ResultIOErr      Result = 10
	ResultCorrupt    Result = 11
	ResultNotFound   Result = 12
	ResultFull       Result = 13
	ResultCantOpen   Result = 14
	ResultProtocol   Result = 15
	ResultEmpty      Result = 16
	ResultSchema     Result = 17
	ResultTooBig     Result = 18
	ResultConstraint Result = 19
	ResultMismatch   Result = 20
	ResultMisuse     Result = 21
	ResultNoLFS      Result = 22
	ResultAuth       Result = 23
	ResultFormat     Result = 24
	ResultRange      Result = 25
	ResultNotADB     Result = 26
	ResultNotice     Result = 27
	ResultWarning    Result = 28
	ResultRow        Result = 100
	ResultDone       Result = 101
)

// Extended result codes actually consumed by the error map. SQLite
// defines many more; only the ones the taxonomy branches on are named.
const (
	ResultIOErrRead        Result = ResultIOErr | (1 << 8)
	ResultIOErrAccess      Result = ResultIOErr | (13 << 8)
	ResultIOErrLock        Result = ResultIOErr | (15 << 8)
	ResultIOErrUnlock      Result = ResultIOErr | (8 << 8)
	ResultIOErrNoMem       Result = ResultIOErr | (12 << 8)
	ResultIOErrBlocked     Result = ResultIOErr | (11 << 8)
	ResultLockedSharedCash Result = ResultLocked | (1 << 8)
	ResultLockedVTab       Result = ResultLocked | (2 << 8)
	ResultBusyRecovery     Result = ResultBusy | (1 << 8)
	ResultBusySnapshot     Result = ResultBusy | (2 << 8)
	ResultBusyTimeout      Result = ResultBusy | (3 << 8)
	ResultAbortRollback    Result = ResultAbort | (2 << 8)
	ResultConstraintCheck  Result = ResultConstraint | (1 << 8)
	ResultConstraintFK     Result = ResultConstraint | (3 << 8)
	ResultConstraintNotNul Result = ResultConstraint | (5 << 8)
	ResultConstraintPK     Result = ResultConstraint | (6 << 8)
	ResultConstraintUnique Result = ResultConstraint | (8 << 8)
	ResultCorruptVTab      Result = ResultCorrupt | (1 << 8)
)

// Primary extracts the low-order (primary) result code from a combined
// primary+extended code.
func (r Result) Primary() Result { return r & 0xff }

// OK reports whether r indicates success (OK, ROW, or DONE).
func (r Result) OK() bool {
	p := r.Primary()
	return r == ResultOK || p == ResultRow || p == ResultDone
}

// Busy reports whether the primary code is BUSY.
func (r Result) Busy() bool { return r.Primary() == ResultBusy }

// Open flags, mirrored from sqlite3.h, consumed by Open.
const (
	OpenReadOnly  = 0x00000001
	OpenReadWrite = 0x00000002
	OpenCreate    = 0x00000004
	OpenNoMutex   = 0x00008000
	OpenSharedCache = 0x00020000
)
