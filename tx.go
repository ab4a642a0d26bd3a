package selekt

import "database/sql/driver"

// Tx implements driver.Tx over the Session's transaction bookkeeping.
type Tx struct {
	conn *Conn
}

// Commit marks the transaction successful and ends it, issuing a native
// COMMIT at the 1->0 depth transition.
func (t *Tx) Commit() error {
	if err := t.conn.session.SetSuccessful(); err != nil {
		return err
	}
	return t.conn.session.End()
}

// Rollback ends the transaction without marking it successful, issuing a
// native ROLLBACK at the 1->0 depth transition.
func (t *Tx) Rollback() error {
	return t.conn.session.End()
}

var _ driver.Tx = (*Tx)(nil)
