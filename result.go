package selekt

import "database/sql/driver"

// Result implements driver.Result, captured from a single ExecuteForResult
// call so Exec never runs a statement twice to learn both values.
type Result struct {
	lastInsertID int64
	rowsAffected int64
}

// LastInsertId returns native.LastInsertRowID as of the statement's execution.
func (r *Result) LastInsertId() (int64, error) { return r.lastInsertID, nil }

// RowsAffected returns native.Changes as of the statement's execution.
func (r *Result) RowsAffected() (int64, error) { return r.rowsAffected, nil }

var _ driver.Result = (*Result)(nil)
