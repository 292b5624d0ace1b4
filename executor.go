// executor.go
//
// Statement execution against named connections.
//
// Context
// -------
// One pooled *sqlx.DB per connection name, opened lazily with the usual
// conservative pool sizes and a fail-fast Ping.  Every statement passes
// through here so three rules hold in exactly one place:
//
//   - The literal token _DB_ (case-insensitive) in query text is
//     replaced by the owning table's already-validated name before
//     preparation.  Values are never interpolated; they ride as bound
//     parameters, rebound to the driver's placeholder style by sqlx.
//   - While a transaction is active on a connection name, statements
//     for that name route through the transaction's dedicated handle,
//     so scoped work shares one connection.
//   - Counters in internal/metrics and a debug span per statement.
//
// The Fetch / FetchAll / Exec methods on Table are the trusted-SQL
// escape hatch: no identifier or operator validation happens there, and
// callers must never splice values into the text.
//
// Notes
// -----
// • The prepared-statement LRU is opt-in (DB.EnableStatementCache) and
//   only serves pooled statements; transactional ones prepare on their
//   own handle.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yanizio/recordset/internal/cache"
	"github.com/yanizio/recordset/internal/metrics"
)

// tableToken matches the table-name placeholder in raw SQL.
var tableToken = regexp.MustCompile(`(?i)_DB_`)

// querier is the subset of database/sql both pools and transactions
// satisfy.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type executor struct {
	reg *Registry
	txm *TxManager // set by New; nil only in narrow unit tests

	mu    sync.Mutex
	pools map[string]*sqlx.DB
	stmts *cache.LRU // nil until EnableStatementCache
}

func newExecutor(reg *Registry) *executor {
	return &executor{reg: reg, pools: make(map[string]*sqlx.DB)}
}

func (e *executor) enableStmtCache(capacity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stmts != nil {
		return
	}
	e.stmts = cache.New(capacity, func(_, val any) {
		if st, ok := val.(*sqlx.Stmt); ok {
			_ = st.Close()
		}
	})
}

// pool returns the cached *sqlx.DB for name, opening it on first use.
func (e *executor) pool(ctx context.Context, name string) (*sqlx.DB, Connection, error) {
	conn, err := e.reg.Get(name)
	if err != nil {
		return nil, Connection{}, err
	}

	e.mu.Lock()
	if p, ok := e.pools[name]; ok {
		e.mu.Unlock()
		return p, conn, nil
	}
	e.mu.Unlock()

	// Resolve secrets and build the driver DSN outside the lock; opening
	// can block on the network.
	pw, err := e.reg.resolvePassword(ctx, conn)
	if err != nil {
		return nil, Connection{}, err
	}
	dsn := buildDSN(conn, pw)

	p, err := sqlx.Open(goDriverName(conn.Driver), dsn)
	if err != nil {
		return nil, Connection{}, fmt.Errorf("recordset: open %q: %w", name, err)
	}
	p.SetMaxOpenConns(15)
	p.SetMaxIdleConns(5)
	p.SetConnMaxLifetime(30 * time.Minute)
	if err := p.PingContext(ctx); err != nil {
		_ = p.Close()
		return nil, Connection{}, fmt.Errorf("recordset: ping %q: %w", name, err)
	}

	e.mu.Lock()
	if winner, ok := e.pools[name]; ok {
		// Lost a racing open; keep the first pool.
		e.mu.Unlock()
		_ = p.Close()
		return winner, conn, nil
	}
	e.pools[name] = p
	e.mu.Unlock()

	zap.S().Infow("connection pool online", "name", name, "driver", conn.Driver)
	return p, conn, nil
}

// handle picks the execution target for name: the live transaction
// handle when one is active, the pool otherwise.
func (e *executor) handle(ctx context.Context, name string) (querier, Connection, error) {
	if e.txm != nil {
		if tx, conn, ok := e.txm.liveHandle(name); ok {
			return tx, conn, nil
		}
	}
	pool, conn, err := e.pool(ctx, name)
	if err != nil {
		return nil, Connection{}, err
	}
	return pool, conn, nil
}

// rebind rewrites ? placeholders into the driver's native style.
func rebind(driver, query string) string {
	return sqlx.Rebind(sqlx.BindType(goDriverName(driver)), query)
}

// substituteTable replaces the _DB_ token with a validated table name.
func substituteTable(query, table string) string {
	return tableToken.ReplaceAllLiteralString(query, table)
}

// query runs a row-returning statement and materializes every row into
// a column → value map.
func (e *executor) query(ctx context.Context, name, query string, args []any) ([]map[string]any, error) {
	h, conn, err := e.handle(ctx, name)
	if err != nil {
		return nil, err
	}
	q := rebind(conn.Driver, query)

	start := time.Now()
	rows, err := e.runQuery(ctx, h, name, q, args)
	metrics.QueriesTotal.WithLabelValues(name).Inc()
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("recordset: query: %w", err)
	}
	defer rows.Close()

	out, err := rowsToMaps(rows)
	zap.S().Debugw("query", "conn", name, "sql", q, "rows", len(out), "dur", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("recordset: scan: %w", err)
	}
	return out, nil
}

// exec runs a non-row statement.
func (e *executor) exec(ctx context.Context, name, query string, args []any) (sql.Result, error) {
	h, conn, err := e.handle(ctx, name)
	if err != nil {
		return nil, err
	}
	q := rebind(conn.Driver, query)

	start := time.Now()
	res, err := e.runExec(ctx, h, name, q, args)
	metrics.QueriesTotal.WithLabelValues(name).Inc()
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("recordset: exec: %w", err)
	}
	zap.S().Debugw("exec", "conn", name, "sql", q, "dur", time.Since(start))
	return res, nil
}

func (e *executor) runQuery(ctx context.Context, h querier, name, q string, args []any) (*sql.Rows, error) {
	if st := e.cachedStmt(ctx, h, name, q); st != nil {
		return st.QueryContext(ctx, args...)
	}
	return h.QueryContext(ctx, q, args...)
}

func (e *executor) runExec(ctx context.Context, h querier, name, q string, args []any) (sql.Result, error) {
	if st := e.cachedStmt(ctx, h, name, q); st != nil {
		return st.ExecContext(ctx, args...)
	}
	return h.ExecContext(ctx, q, args...)
}

// cachedStmt returns a pooled prepared statement when the cache is on
// and the handle is the pool itself.  Transactional handles skip the
// cache; their statements die with the connection.
func (e *executor) cachedStmt(ctx context.Context, h querier, name, q string) *sqlx.Stmt {
	e.mu.Lock()
	lru := e.stmts
	e.mu.Unlock()
	if lru == nil {
		return nil
	}
	pool, ok := h.(*sqlx.DB)
	if !ok {
		return nil
	}

	key := name + "\x00" + q
	e.mu.Lock()
	if cached, hit := lru.Get(key); hit {
		e.mu.Unlock()
		return cached.(*sqlx.Stmt)
	}
	e.mu.Unlock()

	st, err := pool.PreparexContext(ctx, q)
	if err != nil {
		// Fall back to direct execution; the real error surfaces there.
		return nil
	}
	e.mu.Lock()
	lru.Add(key, st)
	e.mu.Unlock()
	return st
}

// close tears down every pool and prepared statement.
func (e *executor) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stmts != nil {
		e.stmts.Purge()
	}
	var firstErr error
	for name, p := range e.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.pools, name)
	}
	return firstErr
}

// rowsToMaps scans every row into column → value maps, keeping driver
// types ([]byte included) untouched.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

//
// Trusted-SQL passthrough (values still bound, never interpolated)
//

// FetchAll runs query with the _DB_ token resolved to this table and
// returns every row.
func (t *Table) FetchAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return t.db.exec.query(ctx, t.conn, substituteTable(query, t.name), args)
}

// Fetch runs query and returns the first row, or nil when the result is
// empty.
func (t *Table) Fetch(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := t.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Exec runs a non-row statement with the _DB_ token resolved.
func (t *Table) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.db.exec.exec(ctx, t.conn, substituteTable(query, t.name), args)
}

//
// DSN assembly
//

// goDriverName maps a registry driver to the database/sql driver name.
func goDriverName(driver string) string {
	switch driver {
	case "sqlite":
		return "sqlite" // modernc.org/sqlite
	default:
		return driver // mysql, postgres
	}
}

// buildDSN folds user, password, and driver options into the stored DSN
// using each driver's own syntax.
func buildDSN(c Connection, password string) string {
	switch c.Driver {
	case "mysql":
		dsn := c.DSN
		if c.User != "" {
			cred := c.User
			if password != "" {
				cred += ":" + password
			}
			dsn = cred + "@" + dsn
		}
		return appendQueryParams(dsn, c.Options)

	case "postgres":
		parts := []string{c.DSN}
		if c.User != "" {
			parts = append(parts, "user="+c.User)
		}
		if password != "" {
			parts = append(parts, "password="+password)
		}
		for _, k := range sortedKeys(c.Options) {
			parts = append(parts, k+"="+c.Options[k])
		}
		return strings.Join(parts, " ")

	default: // sqlite
		return appendQueryParams(c.DSN, c.Options)
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendQueryParams(dsn string, opts map[string]string) string {
	if len(opts) == 0 {
		return dsn
	}
	sep := "?"
	if strings.ContainsRune(dsn, '?') {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, k := range sortedKeys(opts) {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(opts[k]))
		sep = "&"
	}
	return b.String()
}
