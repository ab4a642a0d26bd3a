package selekt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/selekt/selekt/pool"
)

func init() {
	sql.Register("selekt", &Driver{})
}

// Driver implements database/sql/driver.Driver over a shared Pool per
// database path.
type Driver struct{}

// Open opens a new connection for name, a jdbc:selekt:... connection URL.
func (d *Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector parses name and returns a reusable Connector, satisfying
// driver.DriverContext so database/sql can pool driver.Conn values
// efficiently without re-parsing the DSN on every dial.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	dsn, err := ParseDSN(name)
	if err != nil {
		return nil, err
	}
	return &Connector{dsn: dsn, driver: d}, nil
}

var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
)

// sharedPools caches one *pool.Pool per database path so that every
// database/sql.DB built against the same jdbc:selekt: path shares a single
// Selekt Pool (and therefore its writer-exclusivity guarantee), even if the
// caller opens it through more than one *sql.DB.
var (
	sharedPoolsMu sync.Mutex
	sharedPools   = map[string]*pool.Pool{}
)

func poolFor(dsn *DSN) *pool.Pool {
	sharedPoolsMu.Lock()
	defer sharedPoolsMu.Unlock()
	if p, ok := sharedPools[dsn.Path]; ok {
		return p
	}
	cfg := pool.NewConfig(dsn.Path,
		pool.WithKey(dsn.Key),
		pool.WithMaxConnections(dsn.PoolSize),
		pool.WithBusyTimeoutMillis(dsn.BusyTimeout),
		pool.WithJournalMode(dsn.JournalMode),
		pool.WithForeignKeys(dsn.ForeignKeys),
	)
	p := pool.New(cfg, mapErrorFunc, nil)
	sharedPools[dsn.Path] = p
	return p
}
