package selekt

import (
	"fmt"

	"github.com/selekt/selekt/native"
)

// ErrorKind is the stable, user-facing error taxonomy: every native
// result code maps into one of these.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindIntegrityConstraintViolation
	KindDataException
	KindNonTransientConnection
	KindTransient
	KindTimeout
	KindTransactionRollback
	KindRecoverable
	KindIOTransient
	KindNonTransient
	KindMisuse
)

func (k ErrorKind) String() string {
	switch k {
	case KindIntegrityConstraintViolation:
		return "IntegrityConstraintViolation"
	case KindDataException:
		return "DataException"
	case KindNonTransientConnection:
		return "NonTransientConnection"
	case KindTransient:
		return "Transient"
	case KindTimeout:
		return "Timeout"
	case KindTransactionRollback:
		return "TransactionRollback"
	case KindRecoverable:
		return "Recoverable"
	case KindIOTransient:
		return "IO-Transient"
	case KindNonTransient:
		return "NonTransient"
	case KindMisuse:
		return "Misuse"
	default:
		return "Generic"
	}
}

// Error is the error value surfaced by every core operation that can fail.
// It always carries a Kind, a SQLSTATE, and a human-readable message that
// includes the primary (and, if present, extended) native code name.
type Error struct {
	Kind     ErrorKind
	SQLState string
	Message  string
	Primary  native.Result
	Extended native.Result
}

func (e *Error) Error() string { return e.Message }

// ErrBusy, ErrMisuse and ErrConnectionPoisoned are sentinels so callers can
// use errors.Is against a stable class of failure without depending on the
// exact message text.
var (
	ErrBusy               = &Error{Kind: KindTransient, SQLState: "40001", Message: "database is busy"}
	ErrMisuse             = &Error{Kind: KindMisuse, SQLState: "HY010", Message: "misuse of the core API"}
	ErrConnectionPoisoned = &Error{Kind: KindNonTransientConnection, SQLState: "08007", Message: "connection is poisoned"}
)

// Is implements the errors.Is protocol by comparing Kind, allowing
// errors.Is(err, selekt.ErrBusy) to match any BUSY-kind error regardless of
// its specific native code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var primaryNames = map[native.Result]string{
	native.ResultOK:         "SQLITE_OK",
	native.ResultError:      "SQLITE_ERROR",
	native.ResultInternal:   "SQLITE_INTERNAL",
	native.ResultPerm:       "SQLITE_PERM",
	native.ResultAbort:      "SQLITE_ABORT",
	native.ResultBusy:       "SQLITE_BUSY",
	native.ResultLocked:     "SQLITE_LOCKED",
	native.ResultNoMem:      "SQLITE_NOMEM",
	native.ResultReadOnly:   "SQLITE_READONLY",
	native.ResultInterrupt:  "SQLITE_INTERRUPT",
	native.ResultIOErr:      "SQLITE_IOERR",
	native.ResultCorrupt:    "SQLITE_CORRUPT",
	native.ResultNotFound:   "SQLITE_NOTFOUND",
	native.ResultFull:       "SQLITE_FULL",
	native.ResultCantOpen:   "SQLITE_CANTOPEN",
	native.ResultProtocol:   "SQLITE_PROTOCOL",
	native.ResultEmpty:      "SQLITE_EMPTY",
	native.ResultSchema:     "SQLITE_SCHEMA",
	native.ResultTooBig:     "SQLITE_TOOBIG",
	native.ResultConstraint: "SQLITE_CONSTRAINT",
	native.ResultMismatch:   "SQLITE_MISMATCH",
	native.ResultMisuse:     "SQLITE_MISUSE",
	native.ResultNoLFS:      "SQLITE_NOLFS",
	native.ResultAuth:       "SQLITE_AUTH",
	native.ResultFormat:     "SQLITE_FORMAT",
	native.ResultRange:      "SQLITE_RANGE",
	native.ResultNotADB:     "SQLITE_NOTADB",
	native.ResultNotice:     "SQLITE_NOTICE",
	native.ResultWarning:    "SQLITE_WARNING",
	native.ResultRow:        "SQLITE_ROW",
	native.ResultDone:       "SQLITE_DONE",
}

var extendedNames = map[native.Result]string{
	native.ResultIOErrRead:        "SQLITE_IOERR_READ",
	native.ResultIOErrAccess:      "SQLITE_IOERR_ACCESS",
	native.ResultIOErrLock:        "SQLITE_IOERR_LOCK",
	native.ResultIOErrUnlock:      "SQLITE_IOERR_UNLOCK",
	native.ResultIOErrNoMem:       "SQLITE_IOERR_NOMEM",
	native.ResultIOErrBlocked:     "SQLITE_IOERR_BLOCKED",
	native.ResultLockedSharedCash: "SQLITE_LOCKED_SHAREDCACHE",
	native.ResultLockedVTab:       "SQLITE_LOCKED_VTAB",
	native.ResultBusyRecovery:     "SQLITE_BUSY_RECOVERY",
	native.ResultBusySnapshot:     "SQLITE_BUSY_SNAPSHOT",
	native.ResultBusyTimeout:      "SQLITE_BUSY_TIMEOUT",
	native.ResultAbortRollback:    "SQLITE_ABORT_ROLLBACK",
	native.ResultConstraintCheck:  "SQLITE_CONSTRAINT_CHECK",
	native.ResultConstraintFK:     "SQLITE_CONSTRAINT_FOREIGNKEY",
	native.ResultConstraintNotNul: "SQLITE_CONSTRAINT_NOTNULL",
	native.ResultConstraintPK:     "SQLITE_CONSTRAINT_PRIMARYKEY",
	native.ResultConstraintUnique: "SQLITE_CONSTRAINT_UNIQUE",
	native.ResultCorruptVTab:      "SQLITE_CORRUPT_VTAB",
}

func primaryName(p native.Result) string {
	if name, ok := primaryNames[p]; ok {
		return name
	}
	return fmt.Sprintf("SQLITE_UNKNOWN(%d)", int32(p))
}

func extendedName(e native.Result) (string, bool) {
	if e < 0 {
		return "", false
	}
	if name, ok := extendedNames[e]; ok {
		return name, true
	}
	if e.Primary() != e {
		return fmt.Sprintf("SQLITE_UNKNOWN_EXTENDED(%d)", int32(e)), true
	}
	return "", false
}

// MapError classifies a primary (and optional extended, or -1) native
// result code into a (Kind, SQLSTATE, message) triple.
func MapError(message string, primary, extended native.Result) *Error {
	p := primary.Primary()
	kind, sqlstate := classify(p, extended)

	desc := primaryName(p)
	if _, known := primaryNames[p]; !known {
		desc = primaryName(primary)
	}
	if name, ok := extendedName(extended); ok {
		desc = desc + "; " + name
	}
	full := fmt.Sprintf("%s (%s)", message, desc)

	return &Error{
		Kind:     kind,
		SQLState: sqlstate,
		Message:  full,
		Primary:  p,
		Extended: extended,
	}
}

func classify(p, extended native.Result) (ErrorKind, string) {
	switch p {
	case native.ResultConstraint:
		return KindIntegrityConstraintViolation, "23000"
	case native.ResultMismatch:
		return KindDataException, "22000"
	case native.ResultTooBig:
		return KindDataException, "22001"
	case native.ResultRange:
		return KindDataException, "22003"
	case native.ResultCantOpen:
		return KindNonTransientConnection, "08001"
	case native.ResultNotADB, native.ResultCorrupt:
		return KindNonTransientConnection, "08007"
	case native.ResultAuth:
		return KindNonTransientConnection, "28000"
	case native.ResultBusy:
		if extended == native.ResultIOErrBlocked {
			return KindTimeout, "HYT00"
		}
		return KindTransient, "40001"
	case native.ResultLocked:
		return KindTransient, "40001"
	case native.ResultAbort:
		return KindTransactionRollback, "40000"
	case native.ResultNoMem:
		return KindRecoverable, "53000"
	case native.ResultIOErr:
		switch extended {
		case native.ResultIOErrNoMem:
			return KindRecoverable, "53000"
		case native.ResultIOErrAccess, native.ResultIOErrLock, native.ResultIOErrUnlock:
			return KindIOTransient, "HY000"
		default:
			return KindNonTransient, "HY000"
		}
	case native.ResultFull:
		return KindNonTransient, "53100"
	case native.ResultReadOnly:
		return KindNonTransient, "25006"
	case native.ResultMisuse:
		return KindNonTransient, "HY010"
	case native.ResultNotFound:
		return KindNonTransient, "42000"
	case native.ResultError:
		return KindNonTransient, "HY000"
	case native.ResultOK, native.ResultRow, native.ResultDone:
		return KindGeneric, "00000"
	default:
		return KindGeneric, "HY000"
	}
}

// NewMisuseError builds a Misuse-kind error for caller violations (binding
// an out-of-range index, binding an unknown name, nested BEGIN misuse,
// double setSuccessful, writing on a read-only connection) that never
// corrupt engine state.
func NewMisuseError(message string) *Error {
	return &Error{Kind: KindMisuse, SQLState: "HY010", Message: message}
}
