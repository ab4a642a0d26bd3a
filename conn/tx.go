package conn

import "github.com/selekt/selekt/native"

// txState is the per-connection transaction state machine:
// IDLE (depth 0) -> IN_TXN (depth > 0) -> IN_TXN_OK once
// setSuccessful is called at the outermost level. Only the 1->0 transition
// issues a native COMMIT or ROLLBACK; nested begins just bump depth.
type txState struct {
	depth      int
	successful bool
}

func (c *Connection) beginAt(stmt string) error {
	if c.tx.depth == 0 {
		if err := c.ExecuteSQL(stmt, nil); err != nil {
			return err
		}
		c.tx.successful = false
	}
	c.tx.depth++
	return nil
}

// BeginImmediate starts (or nests within) a transaction with BEGIN IMMEDIATE.
func (c *Connection) BeginImmediate() error { return c.beginAt("BEGIN IMMEDIATE") }

// BeginExclusive starts (or nests within) a transaction with BEGIN EXCLUSIVE.
func (c *Connection) BeginExclusive() error { return c.beginAt("BEGIN EXCLUSIVE") }

// BeginDeferred starts (or nests within) a transaction with BEGIN DEFERRED.
func (c *Connection) BeginDeferred() error { return c.beginAt("BEGIN DEFERRED") }

// SetSuccessful marks the outermost transaction level as successful so the
// eventual depth 1->0 End() issues COMMIT instead of ROLLBACK. Calling it
// twice at the same level, or with no transaction open, is misuse.
func (c *Connection) SetSuccessful() error {
	if c.tx.depth == 0 {
		return c.mapErr("setSuccessful called with no transaction open", native.ResultMisuse, -1)
	}
	if c.tx.successful {
		return c.mapErr("setSuccessful called twice for the same transaction", native.ResultMisuse, -1)
	}
	c.tx.successful = true
	return nil
}

// End decrements the transaction depth. At the 1->0 transition it issues a
// native COMMIT if the transaction was marked successful, otherwise ROLLBACK.
func (c *Connection) End() error {
	if c.tx.depth == 0 {
		return c.mapErr("end called with no transaction open", native.ResultMisuse, -1)
	}
	c.tx.depth--
	if c.tx.depth > 0 {
		return nil
	}
	stmt := "ROLLBACK"
	if c.tx.successful {
		stmt = "COMMIT"
	}
	c.tx.successful = false
	return c.ExecuteSQL(stmt, nil)
}
