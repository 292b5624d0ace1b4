// internal/ident/ident.go
//
// Whitelist validation for SQL fragments assembled at runtime.
//
// Context
// -------
// Recordset builds column lists, WHERE clauses, and ORDER BY text from
// caller-supplied strings.  Values are always parameter-bound, but
// identifiers and operators cannot be bound, so every name or operator
// that reaches query text must pass through this package first.  The
// defense is a character-class whitelist, not a keyword blacklist;
// injection payloads fail because they contain spaces, quotes,
// semicolons, or parens, all of which are outside the class.
//
// Four gates:
//
//	Name(s)      – column, table, and id-column identifiers.
//	Operator(s)  – the 13 comparison operators, returned upper-cased.
//	Glue(s)      – AND / OR between filter clauses.
//	Direction(s) – ASC / DESC for ORDER BY.
//
// Notes
// -----
// • No dots or quoting support on purpose; recordset is single-table.
// • Oxford commas, two spaces after periods.
package ident

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matchable with errors.Is.
var (
	ErrInvalidIdentifier = errors.New("recordset: invalid SQL identifier")
	ErrInvalidOperator   = errors.New("recordset: invalid SQL operator")
	ErrInvalidGlue       = errors.New("recordset: invalid filter glue")
	ErrInvalidDirection  = errors.New("recordset: invalid order direction")
)

// operators is the full whitelist.  Keys are canonical (upper-case,
// single-spaced); anything else, including BETWEEN and REGEXP, is out.
var operators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, ">": {}, "<=": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {}, "IN": {}, "NOT IN": {}, "IS": {}, "IS NOT": {},
}

// Name reports whether s is a safe identifier: first rune ASCII letter
// or underscore, remainder ASCII letters, digits, or underscores.
// Returns s unchanged so call sites can validate inline.
func Name(s string) (string, error) {
	if s == "" {
		return "", &NameError{Name: s, Reason: "empty identifier"}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return "", &NameError{Name: s, Reason: "identifier starts with a digit"}
			}
		default:
			return "", &NameError{Name: s, Reason: fmt.Sprintf("character %q not allowed", c)}
		}
	}
	return s, nil
}

// Operator normalizes op to its canonical upper-case form, collapsing
// interior runs of whitespace ("not   like" → "NOT LIKE").
func Operator(op string) (string, error) {
	canonical := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if _, ok := operators[canonical]; !ok {
		return "", &OperatorError{Operator: op}
	}
	return canonical, nil
}

// Glue accepts AND or OR, case-insensitively, and returns the canonical
// upper-case form.
func Glue(g string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(g)) {
	case "AND":
		return "AND", nil
	case "OR":
		return "OR", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGlue, g)
}

// Direction accepts ASC or DESC, case-insensitively, and returns the
// canonical upper-case form.
func Direction(d string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(d)) {
	case "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, d)
}

// NameError carries the rejected identifier and the first offending
// detail.  It matches ErrInvalidIdentifier under errors.Is.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("recordset: invalid SQL identifier %q: %s", e.Name, e.Reason)
}

func (e *NameError) Is(target error) bool { return target == ErrInvalidIdentifier }

// OperatorError matches ErrInvalidOperator under errors.Is.
type OperatorError struct {
	Operator string
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("recordset: invalid SQL operator %q", e.Operator)
}

func (e *OperatorError) Is(target error) bool { return target == ErrInvalidOperator }
