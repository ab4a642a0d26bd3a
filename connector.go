package selekt

import (
	"context"
	"database/sql/driver"

	"github.com/selekt/selekt/session"
)

// Connector implements driver.Connector, handing database/sql a fresh
// Session-backed Conn per dial while sharing one Pool per database path.
type Connector struct {
	dsn    *DSN
	driver *Driver
}

// Connect returns a new driver.Conn: one Session pinned lazily against the
// shared Pool as statements are executed against it.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	p := poolFor(c.dsn)
	return &Conn{session: session.New(p, mapErrorFunc)}, nil
}

// Driver returns the underlying Driver.
func (c *Connector) Driver() driver.Driver { return c.driver }

var _ driver.Connector = (*Connector)(nil)
