// recordset.go
//
// Top-level application handle.
//
// Context
// -------
// A *DB bundles the four process-wide collaborators the library needs:
//
//   - Registry  — named connection definitions (file, code, or env).
//   - schema    — per (connection, table) column metadata cache.
//   - executor  — pooled sqlx handles, placeholder substitution, binding.
//   - TxManager — one cached dedicated handle per connection name.
//
// Nothing here is process-global: tests can build throwaway instances,
// and long-lived services can reset individual pieces explicitly.
//
// Notes
// -----
// • A *DB is safe for concurrent use.  Individual *Record instances are
//   not; confine each to one goroutine.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"errors"
)

// DefaultConnection is the name used when callers do not pick one.
const DefaultConnection = "default"

// DB is the top-level handle.  Construct with New or Open.
type DB struct {
	reg  *Registry
	sch  *schemaCache
	exec *executor
	txm  *TxManager
}

// New returns a DB with an empty registry.  Connections come from
// LoadConfig, Registry().Add, or the legacy RECORDSET_* env fallback.
func New() *DB {
	db := &DB{reg: NewRegistry()}
	db.exec = newExecutor(db.reg)
	db.sch = newSchemaCache(db)
	db.txm = newTxManager(db.exec)
	db.exec.txm = db.txm
	return db
}

// Open is New plus LoadConfig.  An empty path walks the default search
// locations; a missing file is not an error.
func Open(path string) (*DB, error) {
	db := New()
	if err := db.LoadConfig(path); err != nil {
		return nil, err
	}
	return db, nil
}

// Registry exposes the connection registry for programmatic setup.
func (db *DB) Registry() *Registry { return db.reg }

// Tx exposes the transaction manager.
func (db *DB) Tx() *TxManager { return db.txm }

// Ping opens (or reuses) the pool for name and verifies connectivity.
func (db *DB) Ping(ctx context.Context, name string) error {
	pool, _, err := db.exec.pool(ctx, name)
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// EnableStatementCache turns on the prepared-statement LRU for pooled
// (non-transactional) statements.  Off by default.
func (db *DB) EnableStatementCache(capacity int) {
	db.exec.enableStmtCache(capacity)
}

// ClearSchemaCache drops all cached schemas, or, when table names are
// given, the entries for those tables across every connection.
func (db *DB) ClearSchemaCache(tables ...string) {
	db.sch.clear(tables...)
}

// Close releases every pooled handle and cached transaction connection.
// In-flight transactions are rolled back by the connection close.
func (db *DB) Close() error {
	return errors.Join(
		db.txm.ClearConnectionCache(),
		db.exec.close(),
	)
}
