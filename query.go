// query.go
//
// Filtered listing and the convenience finders.
//
// Context
// -------
// Everything here compiles down to the same shape: validated column
// names and operators spliced as text, values carried as bound
// parameters, LIMIT and OFFSET emitted as integer literals.  Filters
// with an empty operator are skipped outright, which lets callers keep
// optional criteria in a fixed slice and blank out the ones that do not
// apply.
//
// All materializes matches as full Records via the identity column, one
// load per row.  That keeps every row's lifecycle (schema validation,
// dirty tracking) identical to a single Load at the cost of extra
// round trips; callers who need a flat result set use FetchAll.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"strconv"
	"strings"

	"github.com/yanizio/recordset/internal/ident"
)

// Filter is one WHERE criterion.  An empty Operator marks the filter as
// inactive and it is skipped during compilation.  A nil Value binds SQL
// NULL (useful with IS / IS NOT).
type Filter struct {
	Column   string
	Operator string
	Value    any
}

// ListOptions shapes a listing query.  The zero value means: identity
// column from the table, no filters, AND glue, no ordering, no paging.
type ListOptions struct {
	IDColumn string
	Filters  []Filter
	Glue     string // "AND" (default) or "OR"
	OrderBy  string
	OrderDir string // "ASC" (default) or "DESC"
	Limit    int
	Offset   int // applied only alongside a positive Limit
}

// compileFilters renders active filters into a WHERE fragment and the
// matching bind arguments.  Column names and operators go through the
// whitelist; the fragment is "" when nothing is active.
func compileFilters(filters []Filter, glue string) (string, []any, error) {
	g := "AND"
	if glue != "" {
		canon, err := ident.Glue(glue)
		if err != nil {
			return "", nil, err
		}
		g = canon
	}

	var (
		terms []string
		args  []any
	)
	for _, f := range filters {
		if f.Operator == "" {
			continue
		}
		col, err := ident.Name(f.Column)
		if err != nil {
			return "", nil, err
		}
		op, err := ident.Operator(f.Operator)
		if err != nil {
			return "", nil, err
		}
		terms = append(terms, col+" "+op+" ?")
		args = append(args, f.Value)
	}
	if len(terms) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(terms, " "+g+" "), args, nil
}

// listQuery assembles "SELECT <sel> FROM _DB_ …" from ListOptions.
func listQuery(sel string, opts ListOptions) (string, []any, error) {
	where, args, err := compileFilters(opts.Filters, opts.Glue)
	if err != nil {
		return "", nil, err
	}
	q := "SELECT " + sel + " FROM _DB_" + where

	if opts.OrderBy != "" {
		col, err := ident.Name(opts.OrderBy)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if opts.OrderDir != "" {
			canon, err := ident.Direction(opts.OrderDir)
			if err != nil {
				return "", nil, err
			}
			dir = canon
		}
		q += " ORDER BY " + col + " " + dir
	}

	// Paging values are integers the caller supplied as ints; rendered as
	// literals, never as bound parameters, for cross-driver portability.
	if opts.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(opts.Limit)
		if opts.Offset > 0 {
			q += " OFFSET " + strconv.Itoa(opts.Offset)
		}
	}
	return q, args, nil
}

// All returns every matching row as a fully loaded Record.
func (t *Table) All(ctx context.Context, opts ListOptions) ([]*Record, error) {
	idCol := opts.IDColumn
	if idCol == "" {
		idCol = t.idColumn
	}
	if _, err := ident.Name(idCol); err != nil {
		return nil, err
	}

	q, args, err := listQuery(idCol, opts)
	if err != nil {
		return nil, err
	}
	rows, err := t.FetchAll(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := t.LoadBy(ctx, idCol, row[idCol])
		if err != nil {
			return nil, err
		}
		if rec.Saved() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Count returns the number of matching rows.
func (t *Table) Count(ctx context.Context, opts ListOptions) (int64, error) {
	where, args, err := compileFilters(opts.Filters, opts.Glue)
	if err != nil {
		return 0, err
	}
	row, err := t.Fetch(ctx, "SELECT COUNT(*) AS n FROM _DB_"+where, args...)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return asInt(row["n"]), nil
}

// Pluck returns the values of one column across matching rows.
func (t *Table) Pluck(ctx context.Context, column string, opts ListOptions) ([]any, error) {
	col, err := ident.Name(column)
	if err != nil {
		return nil, err
	}
	q, args, err := listQuery(col, opts)
	if err != nil {
		return nil, err
	}
	rows, err := t.FetchAll(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[col])
	}
	return out, nil
}

// FindBy lists records matching a single criterion.  The operator
// defaults to "=".
func (t *Table) FindBy(ctx context.Context, column string, value any, operator ...string) ([]*Record, error) {
	op := "="
	if len(operator) > 0 {
		op = operator[0]
	}
	return t.All(ctx, ListOptions{
		Filters: []Filter{{Column: column, Operator: op, Value: value}},
	})
}

// FindOneBy returns the first record matching a single criterion, or
// nil when none match.
func (t *Table) FindOneBy(ctx context.Context, column string, value any) (*Record, error) {
	recs, err := t.All(ctx, ListOptions{
		Filters: []Filter{{Column: column, Operator: "=", Value: value}},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// FirstOrCreate finds the record matching attributes, creating it with
// attributes plus values when no match exists.
func (t *Table) FirstOrCreate(ctx context.Context, attributes, values map[string]any) (*Record, error) {
	rec, err := t.findByAttributes(ctx, attributes)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	rec = t.New()
	if err := rec.SetMulti(ctx, attributes); err != nil {
		return nil, err
	}
	if err := rec.SetMulti(ctx, values); err != nil {
		return nil, err
	}
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateOrCreate finds the record matching attributes and applies
// values to it, creating it from both maps when no match exists.
func (t *Table) UpdateOrCreate(ctx context.Context, attributes, values map[string]any) (*Record, error) {
	rec, err := t.findByAttributes(ctx, attributes)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = t.New()
		if err := rec.SetMulti(ctx, attributes); err != nil {
			return nil, err
		}
	}
	if err := rec.SetMulti(ctx, values); err != nil {
		return nil, err
	}
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Table) findByAttributes(ctx context.Context, attributes map[string]any) (*Record, error) {
	filters := make([]Filter, 0, len(attributes))
	for _, k := range sortedAnyKeys(attributes) {
		filters = append(filters, Filter{Column: k, Operator: "=", Value: attributes[k]})
	}
	recs, err := t.All(ctx, ListOptions{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}
