// tx.go
//
// Per-connection transaction manager.
//
// Context
// -------
// Transactions are scoped by connection name: at most one live
// transaction per name, and while one is live every statement issued
// against that name routes through the transaction's dedicated
// connection (see executor.handle).  That is what makes rollback
// actually undo work performed through the ordinary Table methods
// inside the scope.
//
// Begin checks out a single *sql.Conn from the pool and starts the
// transaction on it; Commit and Rollback resolve the transaction and
// return the connection.  ClearConnectionCache force-closes checked-out
// connections, which implicitly rolls back anything still open — the
// recovery hatch for leaked scopes.
//
// Notes
// -----
// • Begin on a name with a live transaction is an explicit error, not a
//   silent nesting or an implicit commit.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/recordset/internal/metrics"
)

type txHandle struct {
	conn  *sql.Conn
	tx    *sql.Tx
	entry Connection
}

// TxManager tracks live transactions by connection name.  Safe for
// concurrent use, though each individual transaction is single-owner.
type TxManager struct {
	exec *executor

	mu      sync.Mutex
	handles map[string]*txHandle
}

func newTxManager(exec *executor) *TxManager {
	return &TxManager{exec: exec, handles: make(map[string]*txHandle)}
}

// liveHandle returns the active transaction for name, if any.  Called
// by the executor to route statements.
func (m *TxManager) liveHandle(name string) (querier, Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	if !ok {
		return nil, Connection{}, false
	}
	return h.tx, h.entry, true
}

// Begin starts a transaction on the named connection.  Errors when one
// is already live for that name.
func (m *TxManager) Begin(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.handles[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("recordset: transaction already active on %q", name)
	}
	m.mu.Unlock()

	pool, entry, err := m.exec.pool(ctx, name)
	if err != nil {
		return err
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("recordset: begin %q: %w", name, err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("recordset: begin %q: %w", name, err)
	}

	m.mu.Lock()
	if _, ok := m.handles[name]; ok {
		// Lost a racing Begin; yield to the winner.
		m.mu.Unlock()
		_ = tx.Rollback()
		_ = conn.Close()
		return fmt.Errorf("recordset: transaction already active on %q", name)
	}
	m.handles[name] = &txHandle{conn: conn, tx: tx, entry: entry}
	m.mu.Unlock()

	metrics.ActiveTransactions.Inc()
	zap.S().Debugw("transaction begun", "conn", name)
	return nil
}

// Commit commits the live transaction for name.  ErrNoTransaction when
// none is active.
func (m *TxManager) Commit(name string) error {
	h, err := m.take(name)
	if err != nil {
		return err
	}
	commitErr := h.tx.Commit()
	_ = h.conn.Close()
	metrics.ActiveTransactions.Dec()
	if commitErr != nil {
		return fmt.Errorf("recordset: commit %q: %w", name, commitErr)
	}
	zap.S().Debugw("transaction committed", "conn", name)
	return nil
}

// Rollback aborts the live transaction for name.  ErrNoTransaction when
// none is active.
func (m *TxManager) Rollback(name string) error {
	h, err := m.take(name)
	if err != nil {
		return err
	}
	rbErr := h.tx.Rollback()
	_ = h.conn.Close()
	metrics.ActiveTransactions.Dec()
	if rbErr != nil {
		return fmt.Errorf("recordset: rollback %q: %w", name, rbErr)
	}
	zap.S().Debugw("transaction rolled back", "conn", name)
	return nil
}

// InTransaction reports whether a transaction is live for name.  Never
// opens a connection.
func (m *TxManager) InTransaction(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[name]
	return ok
}

// Transaction runs fn inside a transaction on name: commit when fn
// returns nil, rollback otherwise.  A rollback failure is joined onto
// fn's error.
func (m *TxManager) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := m.Begin(ctx, name); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := m.Rollback(name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return m.Commit(name)
}

// ClearConnectionCache force-closes the dedicated connections for the
// given names (all when none are given).  Open transactions are
// implicitly rolled back by the close.
func (m *TxManager) ClearConnectionCache(names ...string) error {
	m.mu.Lock()
	targets := names
	if len(targets) == 0 {
		targets = make([]string, 0, len(m.handles))
		for n := range m.handles {
			targets = append(targets, n)
		}
	}
	var taken []*txHandle
	for _, n := range targets {
		if h, ok := m.handles[n]; ok {
			taken = append(taken, h)
			delete(m.handles, n)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, h := range taken {
		_ = h.tx.Rollback()
		if err := h.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		metrics.ActiveTransactions.Dec()
	}
	return firstErr
}

// take removes and returns the live handle for name.
func (m *TxManager) take(name string) (*txHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTransaction, name)
	}
	delete(m.handles, name)
	return h, nil
}
