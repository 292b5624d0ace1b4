// errors.go
//
// Error taxonomy for recordset.
//
// Context
// -------
// Three families, all matchable with errors.Is:
//
//   - Whitelist failures (identifier, operator, glue, direction) come
//     from internal/ident and are re-exported here so callers never
//     import the internal package.
//   - Schema-derived value failures (type mismatch, null not allowed,
//     max length) are raised before any write SQL is issued.
//   - ErrNotConfigured and ErrNoTransaction cover registry and
//     transaction misuse.
//
// Database errors (constraint violations, connectivity, syntax) are
// never wrapped into these families; they propagate verbatim from the
// driver so callers can inspect them.  Not-found is not an error
// anywhere in this library.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package recordset

import (
	"errors"
	"fmt"

	"github.com/yanizio/recordset/internal/ident"
)

// Whitelist sentinels, re-exported from internal/ident.
var (
	ErrInvalidIdentifier     = ident.ErrInvalidIdentifier
	ErrInvalidOperator       = ident.ErrInvalidOperator
	ErrInvalidGlue           = ident.ErrInvalidGlue
	ErrInvalidOrderDirection = ident.ErrInvalidDirection
)

// Registry, schema, and transaction sentinels.
var (
	// ErrNotConfigured is returned at first query attempt when a named
	// connection has no registry entry and no legacy fallback.
	ErrNotConfigured = errors.New("recordset: connection not configured")

	// ErrTypeMismatch is returned when a value cannot satisfy the
	// column's semantic type.
	ErrTypeMismatch = errors.New("recordset: value does not match column type")

	// ErrNullNotAllowed is returned when nil is assigned to a NOT NULL
	// column.
	ErrNullNotAllowed = errors.New("recordset: null not allowed")

	// ErrMaxLengthExceeded is returned when a string value exceeds the
	// column's declared maximum length.
	ErrMaxLengthExceeded = errors.New("recordset: max length exceeded")

	// ErrNoTransaction is returned by Commit and Rollback when the named
	// connection has no transaction in flight.
	ErrNoTransaction = errors.New("recordset: no active transaction")
)

// TypeError describes a semantic-type validation failure: which column,
// what the schema wanted, and what the caller supplied.
type TypeError struct {
	Column string
	Want   string // semantic type, e.g. "integer"
	Got    any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("recordset: column %q wants %s, got %T (%v)", e.Column, e.Want, e.Got, e.Got)
}

func (e *TypeError) Is(target error) bool { return target == ErrTypeMismatch }

// NullError reports a nil assigned to a NOT NULL column.
type NullError struct {
	Column string
}

func (e *NullError) Error() string {
	return fmt.Sprintf("recordset: column %q is NOT NULL", e.Column)
}

func (e *NullError) Is(target error) bool { return target == ErrNullNotAllowed }

// LengthError reports a stringified value longer than the column allows.
type LengthError struct {
	Column string
	Max    int
	Actual int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("recordset: column %q max length %d, got %d", e.Column, e.Max, e.Actual)
}

func (e *LengthError) Is(target error) bool { return target == ErrMaxLengthExceeded }
