// Package selektsql is a small string-interning store built directly on
// session.Session, demonstrating the write-serialized Session -> Connection
// -> Pool path end to end without going through database/sql: INSERT OR
// IGNORE then SELECT, batched to stay under SQLite's bound-parameter limit.
package selektsql

import (
	"fmt"
	"strings"

	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/session"
)

// maxParams keeps batched statements under SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 900

// Store interns strings into a string_pool table through a single Session.
// Not safe for concurrent use by more than one goroutine, matching
// Session's own concurrency contract.
type Store struct {
	session *session.Session
}

// New returns a Store bound to s. Call EnsureSchema once before use.
func New(s *session.Session) *Store { return &Store{session: s} }

// EnsureSchema creates the string_pool table if it does not already exist.
func (store *Store) EnsureSchema() error {
	_, err := store.session.Execute(true, `CREATE TABLE IF NOT EXISTS string_pool (
		id    INTEGER PRIMARY KEY,
		value TEXT NOT NULL UNIQUE
	)`, func(c *conn.Connection) (any, error) {
		return nil, c.ExecuteSQL(`CREATE TABLE IF NOT EXISTS string_pool (
			id    INTEGER PRIMARY KEY,
			value TEXT NOT NULL UNIQUE
		)`, nil)
	})
	return err
}

// InternStrings interns every distinct value in values and returns each
// input's id, in input order. Runs the whole batch inside one transaction.
func (store *Store) InternStrings(values []string) ([]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	for i, v := range values {
		if v == "" {
			return nil, fmt.Errorf("value at index %d is empty", i)
		}
	}

	if err := store.session.BeginImmediate(); err != nil {
		return nil, err
	}
	ids, err := store.internLocked(values)
	if err != nil {
		_ = store.session.End()
		return nil, err
	}
	if err := store.session.SetSuccessful(); err != nil {
		return nil, err
	}
	if err := store.session.End(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (store *Store) internLocked(values []string) ([]int64, error) {
	unique := make(map[string][]int, len(values))
	for i, v := range values {
		unique[v] = append(unique[v], i)
	}
	uniqueValues := make([]string, 0, len(unique))
	for v := range unique {
		uniqueValues = append(uniqueValues, v)
	}

	valueToID := make(map[string]int64, len(uniqueValues))
	for start := 0; start < len(uniqueValues); start += maxParams {
		end := start + maxParams
		if end > len(uniqueValues) {
			end = len(uniqueValues)
		}
		chunk := uniqueValues[start:end]
		if err := store.internChunk(chunk, valueToID); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, len(values))
	for i, v := range values {
		ids[i] = valueToID[v]
	}
	return ids, nil
}

func (store *Store) internChunk(chunk []string, valueToID map[string]int64) error {
	_, err := store.session.Execute(true, "INSERT OR IGNORE INTO string_pool", func(c *conn.Connection) (any, error) {
		insertArgs := make([][]conn.Arg, len(chunk))
		for i, v := range chunk {
			insertArgs[i] = conn.Positional(v)
		}
		if _, err := c.ExecuteBatchForChangedRowCount("INSERT OR IGNORE INTO string_pool (value) VALUES (?)", insertArgs); err != nil {
			return nil, err
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		selectArgs := make([]any, len(chunk))
		for i, v := range chunk {
			selectArgs[i] = v
		}
		cur, err := c.Query("SELECT id, value FROM string_pool WHERE value IN ("+placeholders+")", conn.Positional(selectArgs...))
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		for cur.Next() {
			valueToID[cur.ColumnText(1)] = cur.ColumnInt64(0)
		}
		return nil, cur.Err()
	})
	return err
}

// GetStrings resolves each id back to its interned value, in input order.
func (store *Store) GetStrings(ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idToValue := make(map[int64]string, len(ids))

	for start := 0; start < len(ids); start += maxParams {
		end := start + maxParams
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		_, err := store.session.Execute(false, "SELECT id, value FROM string_pool WHERE id IN (...)", func(c *conn.Connection) (any, error) {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			cur, err := c.Query("SELECT id, value FROM string_pool WHERE id IN ("+placeholders+")", conn.Positional(args...))
			if err != nil {
				return nil, err
			}
			defer cur.Close()
			for cur.Next() {
				idToValue[cur.ColumnInt64(0)] = cur.ColumnText(1)
			}
			return nil, cur.Err()
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idToValue[id]
	}
	return out, nil
}
