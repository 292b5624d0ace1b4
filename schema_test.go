// schema_test.go
//
// Introspection normalization, cache behavior, and value validation.
//
// Run: go test . -v

package recordset

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func showColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
		AddRow("id", "int unsigned", "NO", "PRI", nil, "auto_increment").
		AddRow("name", "varchar(80)", "YES", "", nil, "").
		AddRow("active", "tinyint(1)", "YES", "", "1", "").
		AddRow("score", "decimal(8,2)", "YES", "", nil, "").
		AddRow("bio", "text", "YES", "", nil, "")
}

func TestTableSchemaMySQLNormalization(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM users")).
		WillReturnRows(showColumnsRows())

	schema, err := db.TableSchema(context.Background(), DefaultConnection, "users")
	if err != nil {
		t.Fatalf("TableSchema: %v", err)
	}

	id := schema["id"]
	if id.Semantic != SemanticInteger || !id.PrimaryKey || id.Nullable {
		t.Fatalf("id column: %+v", id)
	}
	name := schema["name"]
	if name.Semantic != SemanticString || name.MaxLength != 80 || !name.Nullable {
		t.Fatalf("name column: %+v", name)
	}
	if schema["active"].Semantic != SemanticBoolean {
		t.Fatalf("tinyint(1) should be boolean: %+v", schema["active"])
	}
	if schema["score"].Semantic != SemanticFloat {
		t.Fatalf("decimal should be float: %+v", schema["score"])
	}
	bio := schema["bio"]
	if bio.Semantic != SemanticString || bio.MaxLength != 0 {
		t.Fatalf("text column: %+v", bio)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTableSchemaMemoized(t *testing.T) {
	db, mock := newMockDB(t)
	// One expectation, two calls: the second must hit the cache.
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM users")).
		WillReturnRows(showColumnsRows())

	ctx := context.Background()
	if _, err := db.TableSchema(ctx, DefaultConnection, "users"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := db.TableSchema(ctx, DefaultConnection, "users"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestClearSchemaCacheForcesReintrospection(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM users")).
		WillReturnRows(showColumnsRows())
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM users")).
		WillReturnRows(showColumnsRows())

	ctx := context.Background()
	if _, err := db.TableSchema(ctx, DefaultConnection, "users"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	db.ClearSchemaCache("users")
	if _, err := db.TableSchema(ctx, DefaultConnection, "users"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTableSchemaRejectsBadName(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := db.TableSchema(context.Background(), DefaultConnection, "users; --")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestSplitDialectType(t *testing.T) {
	cases := []struct {
		in     string
		base   string
		length int
	}{
		{"varchar(80)", "varchar", 80},
		{"VARCHAR(255)", "varchar", 255},
		{"int unsigned", "int", 0},
		{"tinyint(1)", "tinyint", 1},
		{"decimal(8,2)", "decimal", 8},
		{"text", "text", 0},
		{"character varying(40)", "character", 40},
	}
	for _, c := range cases {
		base, length := splitDialectType(c.in)
		if base != c.base || length != c.length {
			t.Errorf("splitDialectType(%q) = %q, %d; want %q, %d", c.in, base, length, c.base, c.length)
		}
	}
}

func TestValidateColumnValue(t *testing.T) {
	schema := map[string]ColumnInfo{
		"age":   {Name: "age", Semantic: SemanticInteger, Nullable: true},
		"email": {Name: "email", Semantic: SemanticString, MaxLength: 10},
		"score": {Name: "score", Semantic: SemanticFloat, Nullable: true},
		"flag":  {Name: "flag", Semantic: SemanticBoolean, Nullable: true},
		"blob":  {Name: "blob", Semantic: SemanticOther, Nullable: true},
	}

	cases := []struct {
		name   string
		column string
		value  any
		want   error // nil means accepted
	}{
		{"int ok", "age", 42, nil},
		{"int as digit string", "age", "42", nil},
		{"negative digit string", "age", "-7", nil},
		{"whole float is integer-like", "age", 3.0, nil},
		{"fractional float rejected", "age", 3.5, ErrTypeMismatch},
		{"word rejected for int", "age", "forty", ErrTypeMismatch},
		{"null on nullable", "age", nil, nil},
		{"null on not-null", "email", nil, ErrNullNotAllowed},
		{"string within length", "email", "a@b.co", nil},
		{"string too long", "email", "waytoolong@example.com", ErrMaxLengthExceeded},
		{"int stored in string col", "email", 12345, nil},
		{"float ok", "score", 1.25, nil},
		{"float from string", "score", "1.25", nil},
		{"bool ok", "flag", true, nil},
		{"bool from one", "flag", 1, nil},
		{"bool from two rejected", "flag", 2, ErrTypeMismatch},
		{"other accepts anything", "blob", []byte{0xff, 0x00}, nil},
		{"unknown column accepted", "ghost", "x", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateColumnValue(schema, c.column, c.value)
			if c.want == nil {
				if err != nil {
					t.Fatalf("expected accept, got %v", err)
				}
				return
			}
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestValidateColumnValueEmptySchemaIsNoOp(t *testing.T) {
	if err := validateColumnValue(map[string]ColumnInfo{}, "anything", struct{}{}); err != nil {
		t.Fatalf("empty schema must accept everything, got %v", err)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	schema := map[string]ColumnInfo{
		"email": {Name: "email", Semantic: SemanticString, MaxLength: 5},
	}
	err := validateColumnValue(schema, "email", "toolongvalue")
	var le *LengthError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LengthError, got %T", err)
	}
	if le.Column != "email" || le.Max != 5 || le.Actual != len("toolongvalue") {
		t.Fatalf("unexpected detail: %+v", le)
	}
}
