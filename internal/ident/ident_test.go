// internal/ident/ident_test.go
//
// Unit-tests for the SQL-fragment whitelists.
//
// Context
// -------
// These gates are the whole injection defense for dynamically assembled
// identifiers and operators, so the tables below lean adversarial:
// quote breakouts, comment markers, stacked statements, and UNION
// payloads must all fail the character-class test.

package ident

import (
	"errors"
	"testing"
)

func TestName_Accepts(t *testing.T) {
	for _, s := range []string{
		"id", "user_id", "_scratch", "Email", "a", "col9", "_", "UPPER_CASE_9",
	} {
		got, err := Name(s)
		if err != nil {
			t.Errorf("Name(%q) unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("Name(%q) = %q, want input unchanged", s, got)
		}
	}
}

func TestName_Rejects(t *testing.T) {
	for _, s := range []string{
		"",
		"9col",
		"user-id",
		"users.id",
		"name'",
		`name"`,
		"name`",
		"two words",
		"a;b",
		"a(b)",
		"a@b",
		"id; DROP TABLE users; --",
		"id' OR '1'='1",
	} {
		if _, err := Name(s); err == nil {
			t.Errorf("Name(%q) accepted, want rejection", s)
		} else if !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Name(%q) error %v does not match ErrInvalidIdentifier", s, err)
		}
	}
}

func TestOperator_WhitelistAndCanonicalForm(t *testing.T) {
	cases := map[string]string{
		"=":        "=",
		"!=":       "!=",
		"<>":       "<>",
		"<":        "<",
		">":        ">",
		"<=":       "<=",
		">=":       ">=",
		"like":     "LIKE",
		"Not Like": "NOT LIKE",
		"in":       "IN",
		"not in":   "NOT IN",
		"is":       "IS",
		"is  not":  "IS NOT", // interior whitespace collapses
	}
	for in, want := range cases {
		got, err := Operator(in)
		if err != nil {
			t.Errorf("Operator(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Operator(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOperator_Rejects(t *testing.T) {
	for _, op := range []string{
		"", "BETWEEN", "REGEXP", "UNION SELECT", "= OR 1=1", "=;", "--", "<=>", "!==",
	} {
		if _, err := Operator(op); err == nil {
			t.Errorf("Operator(%q) accepted, want rejection", op)
		} else if !errors.Is(err, ErrInvalidOperator) {
			t.Errorf("Operator(%q) error %v does not match ErrInvalidOperator", op, err)
		}
	}
}

func TestGlue(t *testing.T) {
	for in, want := range map[string]string{"and": "AND", "AND": "AND", "Or": "OR"} {
		got, err := Glue(in)
		if err != nil || got != want {
			t.Errorf("Glue(%q) = %q, %v; want %q, nil", in, got, err, want)
		}
	}
	for _, g := range []string{"", "XOR", "AND 1=1", "OR (SELECT 1)"} {
		if _, err := Glue(g); !errors.Is(err, ErrInvalidGlue) {
			t.Errorf("Glue(%q) = %v, want ErrInvalidGlue", g, err)
		}
	}
}

func TestDirection(t *testing.T) {
	for in, want := range map[string]string{"asc": "ASC", "DESC": "DESC", "Desc": "DESC"} {
		got, err := Direction(in)
		if err != nil || got != want {
			t.Errorf("Direction(%q) = %q, %v; want %q, nil", in, got, err, want)
		}
	}
	for _, d := range []string{"", "ASCENDING", "ASC; --"} {
		if _, err := Direction(d); !errors.Is(err, ErrInvalidDirection) {
			t.Errorf("Direction(%q) = %v, want ErrInvalidDirection", d, err)
		}
	}
}
