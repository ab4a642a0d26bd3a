// Package selekt implements a thread-safe connection-pool core over an
// embedded SQL engine (SQLite/SQLCipher): statement classification and
// caching, a fair writer/readers Pool, busy-retry with jittered backoff,
// and a stable SQLSTATE-bearing error taxonomy.
//
// Most callers want the database/sql driver registered as "selekt" (see
// driver.go); the lower-level Session/Connection/Pool API in the conn,
// session, and pool subpackages is exposed for callers that need explicit
// transaction and pinning control database/sql does not offer.
package selekt

import (
	"time"

	"github.com/selekt/selekt/native"
	"github.com/selekt/selekt/pool"
	"github.com/selekt/selekt/session"
)

// mapErrorFunc adapts MapError to the ErrorFunc shape threaded through the
// conn/pool/session/statement packages, wiring the root error taxonomy in
// without creating an import cycle (see conn.ErrorFunc's doc comment).
func mapErrorFunc(message string, primary, extended native.Result) error {
	return MapError(message, primary, extended)
}

// DB is the high-level façade over a Pool: open it directly when explicit
// transaction and connection-pinning control is wanted without going
// through database/sql.
type DB struct {
	pool *pool.Pool
}

// Open parses dsn and returns a DB backed by a dedicated
// Pool. Unlike the database/sql driver, Open never shares its Pool with
// another Open call against the same path.
func Open(dsn string) (*DB, error) {
	parsed, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg := pool.NewConfig(parsed.Path,
		pool.WithKey(parsed.Key),
		pool.WithMaxConnections(parsed.PoolSize),
		pool.WithBusyTimeoutMillis(parsed.BusyTimeout),
		pool.WithJournalMode(parsed.JournalMode),
		pool.WithForeignKeys(parsed.ForeignKeys),
	)
	return &DB{pool: pool.New(cfg, mapErrorFunc, nil)}, nil
}

// NewSession returns a fresh Session bound to this DB's Pool. Sessions are
// not safe for concurrent use by more than one goroutine; callers typically
// keep one per goroutine of database work.
func (db *DB) NewSession() *session.Session {
	return session.New(db.pool, mapErrorFunc)
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (db *DB) Stats() pool.ConnStats { return db.pool.Stats() }

// StartIdleReaper runs the pool's idle connection reaper on the given
// interval until the returned stop func is called.
func (db *DB) StartIdleReaper(intervalMillis int64) (stop func()) {
	return db.pool.StartIdleReaper(time.Duration(intervalMillis) * time.Millisecond)
}

// Close closes every connection the underlying Pool holds.
func (db *DB) Close() error { return db.pool.Close() }
