package selekt

import (
	"database/sql/driver"
	"io"

	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/native"
)

// Rows implements driver.Rows over a fully materialized result set. Session
// acquisitions release their pinned connection as soon as the triggering
// fn returns (see session.Session.Execute), so a plain SELECT's rows must
// be drained into memory before that happens rather than streamed lazily
// off a live Cursor that could outlive its connection's lease.
type Rows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

// materializeRows runs sql against c and copies every row into memory
// before the cursor's connection is released.
func materializeRows(c *conn.Connection, sql string, args []conn.Arg) (*Rows, error) {
	cur, err := c.Query(sql, args)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	count := cur.ColumnCount()
	columns := make([]string, count)
	for i := range columns {
		columns[i] = cur.ColumnName(i)
	}

	var out [][]driver.Value
	for cur.Next() {
		row := make([]driver.Value, count)
		for i := 0; i < count; i++ {
			row[i] = columnValue(cur, i)
		}
		out = append(out, row)
	}
	if cur.Err() != nil {
		return nil, cur.Err()
	}
	return &Rows{columns: columns, rows: out}, nil
}

func columnValue(cur *conn.Cursor, i int) driver.Value {
	switch cur.ColumnType(i) {
	case native.TypeNull:
		return nil
	case native.TypeInteger:
		return cur.ColumnInt64(i)
	case native.TypeFloat:
		return cur.ColumnDouble(i)
	case native.TypeBlob:
		return cur.ColumnBlob(i)
	default:
		return cur.ColumnText(i)
	}
}

// Columns returns the result set's column names.
func (r *Rows) Columns() []string { return r.columns }

// Close is a no-op: the rows are already fully materialized.
func (r *Rows) Close() error { return nil }

// Next copies the next materialized row into dest.
func (r *Rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

var _ driver.Rows = (*Rows)(nil)
