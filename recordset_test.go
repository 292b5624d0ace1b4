// recordset_test.go
//
// Shared test harness: a DB wired to a sqlmock pool, plus a canned
// schema so write-path tests do not each re-expect introspection.
//
// Run: go test . -v

package recordset

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// newMockDB returns a DB whose "default" connection is backed by a
// sqlmock pool injected directly, bypassing Open and Ping.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	db := New()
	err = db.reg.Add(Connection{
		Name:   DefaultConnection,
		Driver: "mysql",
		DSN:    "tcp(localhost:3306)/test",
	})
	if err != nil {
		t.Fatalf("register connection: %v", err)
	}
	db.exec.pools[DefaultConnection] = sqlx.NewDb(raw, "mysql")
	return db, mock
}

// seedUsersSchema pre-populates the schema cache for "users" so tests
// exercising writes do not need a SHOW COLUMNS expectation.
func seedUsersSchema(db *DB) {
	db.sch.mu.Lock()
	db.sch.m[schemaKey(DefaultConnection, "users")] = map[string]ColumnInfo{
		"id":     {Name: "id", DialectType: "int", Semantic: SemanticInteger, PrimaryKey: true},
		"name":   {Name: "name", DialectType: "varchar", Semantic: SemanticString, MaxLength: 80, Nullable: true},
		"email":  {Name: "email", DialectType: "varchar", Semantic: SemanticString, MaxLength: 120},
		"age":    {Name: "age", DialectType: "int", Semantic: SemanticInteger, Nullable: true},
		"score":  {Name: "score", DialectType: "double", Semantic: SemanticFloat, Nullable: true},
		"active": {Name: "active", DialectType: "tinyint", Semantic: SemanticBoolean, Nullable: true},
	}
	db.sch.mu.Unlock()
}

func mustTable(t *testing.T, db *DB, name string, opts ...TableOption) *Table {
	t.Helper()
	tbl, err := db.Table(name, opts...)
	if err != nil {
		t.Fatalf("Table(%q): %v", name, err)
	}
	return tbl
}

func TestTableValidatesName(t *testing.T) {
	db, _ := newMockDB(t)

	if _, err := db.Table("users; DROP TABLE users"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if _, err := db.Table("users", WithIDColumn("id OR 1=1")); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier for id column, got %v", err)
	}
	tbl := mustTable(t, db, "users", WithConnection("reports"), WithIDColumn("user_id"))
	if tbl.Connection() != "reports" || tbl.Name() != "users" {
		t.Fatalf("unexpected table state: %+v", tbl)
	}
}

func TestPingUnknownConnection(t *testing.T) {
	db, _ := newMockDB(t)

	err := db.Ping(context.Background(), "nope")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPingReusesInjectedPool(t *testing.T) {
	db, mock := newMockDB(t)

	if err := db.Ping(context.Background(), DefaultConnection); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
