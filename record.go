// record.go
//
// The Record: identity, dirty tracking, and the write engine.
//
// Context
// -------
// A Table is the per-table handle (name, connection, default id column);
// a Record is one row of it.  Properties live in a column → value map;
// every mutation through Set lands the column in an ordered dirty set,
// and Save writes exactly those columns — INSERT when the identity is
// the unsaved sentinel, UPDATE otherwise.  Names beginning with "_" are
// internal scratch slots: never validated, never dirty, never persisted.
//
// The ordering contract callers can rely on:
//
//   - Set validates the column name and the value against the table
//     schema before anything is recorded.
//   - Save re-validates every dirty column (value, then name) before any
//     SQL is issued; a failed Save leaves the dirty set untouched so the
//     offending field can be fixed and the save retried.
//   - After a successful Save or Refresh the dirty set is empty and the
//     in-memory properties are the new baseline snapshot.
//
// Not-found is never an error here: loads resolve to the unsaved
// sentinel, Fresh resolves to nil, and Refresh leaves state unchanged.
//
// Notes
// -----
// • A Record is confined to one goroutine; see the package doc.
// • There is no save-on-finalize.  Callers who want scope-bound
//   persistence write `defer rec.Save(ctx)` themselves.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yanizio/recordset/internal/ident"
)

// UnsavedID is the identity sentinel carried before the first
// successful insert.
const UnsavedID = "-1"

// internalPrefix marks scratch property names excluded from
// persistence and validation.
const internalPrefix = "_"

// Table is a per-table handle bound to one named connection.
type Table struct {
	db       *DB
	name     string
	conn     string
	idColumn string
}

// TableOption customizes a Table at construction.
type TableOption func(*Table)

// WithConnection binds the table to a named connection instead of
// "default".
func WithConnection(name string) TableOption {
	return func(t *Table) { t.conn = name }
}

// WithIDColumn overrides the default "id" identity column.
func WithIDColumn(col string) TableOption {
	return func(t *Table) { t.idColumn = col }
}

// Table returns a handle for name.  The name and any overridden id
// column are identifier-validated here, once, so later SQL assembly can
// trust them.
func (db *DB) Table(name string, opts ...TableOption) (*Table, error) {
	if _, err := ident.Name(name); err != nil {
		return nil, err
	}
	t := &Table{db: db, name: name, conn: DefaultConnection, idColumn: "id"}
	for _, opt := range opts {
		opt(t)
	}
	if _, err := ident.Name(t.idColumn); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Connection returns the bound connection name.
func (t *Table) Connection() string { return t.conn }

// Record is one row: identity, properties, baseline snapshot, and the
// ordered dirty set.
type Record struct {
	table    *Table
	id       string
	idColumn string
	props    map[string]any
	original map[string]any
	tainted  []string
	dirtySet map[string]struct{}
}

// New returns an unsaved Record bound to this table.
func (t *Table) New() *Record {
	return &Record{
		table:    t,
		id:       UnsavedID,
		idColumn: t.idColumn,
		props:    make(map[string]any),
		original: make(map[string]any),
		dirtySet: make(map[string]struct{}),
	}
}

// Load fetches one row by the table's id column.  A missing row yields
// an unsaved Record, not an error.
func (t *Table) Load(ctx context.Context, id any) (*Record, error) {
	return t.LoadBy(ctx, t.idColumn, id)
}

// LoadBy fetches one row by an arbitrary identity column.
func (t *Table) LoadBy(ctx context.Context, idColumn string, id any) (*Record, error) {
	if _, err := ident.Name(idColumn); err != nil {
		return nil, err
	}
	r := t.New()
	r.idColumn = idColumn
	if isZeroID(id) {
		return r, nil
	}

	row, err := t.Fetch(ctx, "SELECT * FROM _DB_ WHERE "+idColumn+" = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return r, nil
	}
	r.id = stringifyID(id)
	r.props = row
	r.original = copyProps(row)
	return r, nil
}

// Exists reports whether a row with the given identity is present.
func (t *Table) Exists(ctx context.Context, id any) (bool, error) {
	return t.ExistsBy(ctx, t.idColumn, id)
}

// ExistsBy is Exists with an explicit identity column.
func (t *Table) ExistsBy(ctx context.Context, idColumn string, id any) (bool, error) {
	if _, err := ident.Name(idColumn); err != nil {
		return false, err
	}
	row, err := t.Fetch(ctx, "SELECT "+idColumn+" FROM _DB_ WHERE "+idColumn+" = ? LIMIT 1", id)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

//
// Identity and property access
//

// ID returns the identity value, or UnsavedID before the first insert.
func (r *Record) ID() string { return r.id }

// IDColumn returns the column treated as primary key for this instance.
func (r *Record) IDColumn() string { return r.idColumn }

// Saved reports whether this instance is backed by a database row.
func (r *Record) Saved() bool { return r.id != UnsavedID }

// Get returns the current value of a property, or nil when absent.
func (r *Record) Get(column string) any { return r.props[column] }

// Has reports whether the property is present AND non-null.  Absent
// keys and keys holding an explicit null both report false.
func (r *Record) Has(column string) bool {
	v, ok := r.props[column]
	return ok && v != nil
}

// GetString renders the property as a string; absent, null, and
// non-scalar values yield "".
func (r *Record) GetString(column string) string {
	if v, ok := r.props[column]; ok && v != nil {
		if s, ok := stringifyValue(v); ok {
			return s
		}
	}
	return ""
}

// GetInt renders the property as int64, best effort; 0 on any miss.
func (r *Record) GetInt(column string) int64 { return asInt(r.props[column]) }

// GetFloat renders the property as float64, best effort; 0 on any miss.
func (r *Record) GetFloat(column string) float64 {
	switch x := r.props[column].(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	default:
		return float64(asInt(r.props[column]))
	}
}

// GetBool renders the property as bool, best effort; false on any miss.
func (r *Record) GetBool(column string) bool { return asBool(r.props[column]) }

// GetBytes returns the raw byte form of the property when the driver
// delivered one, else nil.
func (r *Record) GetBytes(column string) []byte {
	if b, ok := r.props[column].([]byte); ok {
		return b
	}
	return nil
}

// Set records a value.  For persisted columns the name is
// identifier-validated and the value is checked against the table
// schema before anything mutates; internal-reserved names skip both and
// never taint.
func (r *Record) Set(ctx context.Context, column string, value any) error {
	if !strings.HasPrefix(column, internalPrefix) {
		if _, err := ident.Name(column); err != nil {
			return err
		}
		if err := r.table.ValidateValue(ctx, column, value); err != nil {
			return err
		}
	}
	r.props[column] = value
	r.taint(column)
	return nil
}

// SetMulti applies Set for each pair in sorted key order and stops at
// the first failure.  Partial application is accepted behavior, not a
// transaction.
func (r *Record) SetMulti(ctx context.Context, values map[string]any) error {
	for _, k := range sortedAnyKeys(values) {
		if err := r.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Record) taint(column string) {
	if strings.HasPrefix(column, internalPrefix) {
		return
	}
	if _, ok := r.dirtySet[column]; ok {
		return
	}
	r.dirtySet[column] = struct{}{}
	r.tainted = append(r.tainted, column)
}

//
// Dirty-checking surface
//

// IsDirty reports whether anything is pending, or, with arguments,
// whether any of the named columns is.
func (r *Record) IsDirty(columns ...string) bool {
	if len(columns) == 0 {
		return len(r.tainted) > 0
	}
	for _, c := range columns {
		if _, ok := r.dirtySet[c]; ok {
			return true
		}
	}
	return false
}

// IsClean is the negation of IsDirty with no arguments.
func (r *Record) IsClean() bool { return !r.IsDirty() }

// Dirty returns the pending column → value map.
func (r *Record) Dirty() map[string]any {
	out := make(map[string]any, len(r.tainted))
	for _, c := range r.tainted {
		out[c] = r.props[c]
	}
	return out
}

// Original returns the as-loaded value of one column, or nil if absent
// from the baseline snapshot.
func (r *Record) Original(column string) any { return r.original[column] }

// Originals returns a copy of the whole baseline snapshot.
func (r *Record) Originals() map[string]any { return copyProps(r.original) }

//
// Lifecycle operations
//

// Refresh re-runs the identity lookup and, on success, replaces the
// properties and baseline and clears the dirty set.  When no row is
// found the instance is left exactly as it was: best-effort semantics,
// not reload-or-die.
func (r *Record) Refresh(ctx context.Context) error {
	if !r.Saved() {
		return nil
	}
	row, err := r.table.Fetch(ctx, "SELECT * FROM _DB_ WHERE "+r.idColumn+" = ?", r.id)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	r.props = row
	r.original = copyProps(row)
	r.tainted = nil
	r.dirtySet = make(map[string]struct{})
	return nil
}

// Fresh constructs a brand-new instance via identity lookup.  Returns
// nil for unsaved records and for rows that no longer exist.  Never
// mutates the receiver.
func (r *Record) Fresh(ctx context.Context) (*Record, error) {
	if !r.Saved() {
		return nil, nil
	}
	loaded, err := r.table.LoadBy(ctx, r.idColumn, r.id)
	if err != nil {
		return nil, err
	}
	if !loaded.Saved() {
		return nil, nil
	}
	return loaded, nil
}

// Save writes the dirty columns: INSERT for unsaved instances, UPDATE
// for persisted ones.  All validation happens before any SQL; a failed
// execution leaves the dirty set untouched so the caller can fix and
// retry.  A clean Save is a cheap no-op.
func (r *Record) Save(ctx context.Context) error {
	// 1. Value validation for the whole dirty set, in taint order.
	for _, col := range r.tainted {
		if strings.HasPrefix(col, internalPrefix) {
			continue
		}
		if err := r.table.ValidateValue(ctx, col, r.props[col]); err != nil {
			return err
		}
	}

	// 2–3. Partition out internal names, then re-validate identifiers.
	// Set already checked them, but direct map manipulation must not be
	// able to smuggle a name past the whitelist.
	cols := make([]string, 0, len(r.tainted))
	for _, col := range r.tainted {
		if strings.HasPrefix(col, internalPrefix) {
			continue
		}
		if _, err := ident.Name(col); err != nil {
			return err
		}
		cols = append(cols, col)
	}

	// 4. Nothing to write.
	if len(cols) == 0 {
		return nil
	}

	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, r.props[col])
	}

	// 5. Branch on identity state.
	if !r.Saved() {
		if err := r.insert(ctx, cols, args); err != nil {
			return err
		}
	} else {
		set := make([]string, len(cols))
		for i, col := range cols {
			set[i] = col + " = ?"
		}
		q := "UPDATE _DB_ SET " + strings.Join(set, ", ") + " WHERE " + r.idColumn + " = ?"
		if _, err := r.table.Exec(ctx, q, append(args, r.id)...); err != nil {
			return err
		}
	}

	// 6. In-memory values become the new baseline; no re-fetch.
	r.tainted = nil
	r.dirtySet = make(map[string]struct{})
	r.original = copyProps(r.props)
	return nil
}

// insert builds the portable INSERT … (cols) VALUES (?) form and adopts
// the database-assigned key.  Postgres has no LastInsertId, so the id
// comes back through RETURNING there.
func (r *Record) insert(ctx context.Context, cols []string, args []any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := "INSERT INTO _DB_ (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	entry, err := r.table.db.reg.Get(r.table.conn)
	if err != nil {
		return err
	}
	if entry.Driver == "postgres" {
		row, err := r.table.Fetch(ctx, q+" RETURNING "+r.idColumn, args...)
		if err != nil {
			return err
		}
		if row != nil {
			r.id = stringifyID(row[r.idColumn])
		}
		return nil
	}

	res, err := r.table.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	last, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recordset: last insert id: %w", err)
	}
	r.id = stringifyID(last)
	return nil
}

// Delete removes the backing row.  In-memory state, including the
// identity, is left untouched; the caller discards the instance.
func (r *Record) Delete(ctx context.Context) error {
	if !r.Saved() {
		return nil
	}
	_, err := r.table.Exec(ctx, "DELETE FROM _DB_ WHERE "+r.idColumn+" = ?", r.id)
	return err
}

// Increment applies `col = col + ?` at the database and reloads, so the
// result reflects concurrent writers rather than the stale in-memory
// value plus delta.
func (r *Record) Increment(ctx context.Context, column string, delta any) error {
	if _, err := ident.Name(column); err != nil {
		return err
	}
	if !r.Saved() {
		return fmt.Errorf("recordset: increment on unsaved record")
	}
	q := "UPDATE _DB_ SET " + column + " = " + column + " + ? WHERE " + r.idColumn + " = ?"
	if _, err := r.table.Exec(ctx, q, delta, r.id); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

//
// Helpers
//

func copyProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			out[k] = append([]byte(nil), b...)
			continue
		}
		out[k] = v
	}
	return out
}

func sortedAnyKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// stringifyID renders any driver-delivered key value as the canonical
// string identity.
func stringifyID(v any) string {
	if s, ok := stringifyValue(v); ok {
		return s
	}
	return fmt.Sprint(v)
}

// isZeroID mirrors the falsy-identity convention: nil, empty string,
// numeric zero, and false all mean "construct unsaved".
func isZeroID(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case bool:
		return !x
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return asInt(x) == 0
	case float64:
		return x == 0
	case float32:
		return x == 0
	}
	return false
}
