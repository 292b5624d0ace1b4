// tx_test.go
//
// Transaction scoping per connection name.
//
// Run: go test . -v

package recordset

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBeginCommitRoutesStatements(t *testing.T) {
	db, mock := newMockDB(t)
	seedUsersSchema(db)
	users := mustTable(t, db, "users")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name) VALUES (?)")).
		WithArgs("Ada").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	if err := db.Tx().Begin(ctx, DefaultConnection); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !db.Tx().InTransaction(DefaultConnection) {
		t.Fatal("InTransaction should be true after Begin")
	}

	// An ordinary Record write while the transaction is live must run on
	// the transaction's handle, inside the Begin/Commit bracket above.
	rec := users.New()
	if err := rec.Set(ctx, "name", "Ada"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := rec.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := db.Tx().Commit(DefaultConnection); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if db.Tx().InTransaction(DefaultConnection) {
		t.Fatal("InTransaction should be false after Commit")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRollback(t *testing.T) {
	db, mock := newMockDB(t)
	users := mustTable(t, db, "users")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx := context.Background()
	if err := db.Tx().Begin(ctx, DefaultConnection); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := users.Exec(ctx, "DELETE FROM _DB_ WHERE id = ?", 5); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := db.Tx().Rollback(DefaultConnection); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCommitWithoutTransaction(t *testing.T) {
	db, _ := newMockDB(t)

	if err := db.Tx().Commit(DefaultConnection); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
	if err := db.Tx().Rollback(DefaultConnection); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
}

func TestBeginTwiceFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	if err := db.Tx().Begin(ctx, DefaultConnection); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := db.Tx().Begin(ctx, DefaultConnection); err == nil {
		t.Fatal("second Begin on the same name must fail")
	}
	if err := db.Tx().Rollback(DefaultConnection); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}

func TestTransactionCallback(t *testing.T) {
	db, mock := newMockDB(t)
	users := mustTable(t, db, "users")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET age = age + ? WHERE id = ?")).
		WithArgs(1, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Tx().Transaction(context.Background(), DefaultConnection, func(ctx context.Context) error {
		_, err := users.Exec(ctx, "UPDATE _DB_ SET age = age + ? WHERE id = ?", 1, 5)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if db.Tx().InTransaction(DefaultConnection) {
		t.Fatal("transaction should be resolved after callback")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTransactionCallbackErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := fmt.Errorf("business rule failed")
	err := db.Tx().Transaction(context.Background(), DefaultConnection, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if db.Tx().InTransaction(DefaultConnection) {
		t.Fatal("failed transaction should not stay live")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestClearConnectionCacheRollsBackLiveWork(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	if err := db.Tx().Begin(ctx, DefaultConnection); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := db.Tx().ClearConnectionCache(); err != nil {
		t.Fatalf("ClearConnectionCache: %v", err)
	}
	if db.Tx().InTransaction(DefaultConnection) {
		t.Fatal("cleared connection should drop the live transaction")
	}

	// The name is immediately usable for a fresh transaction.
	mock.ExpectBegin()
	mock.ExpectCommit()
	if err := db.Tx().Begin(ctx, DefaultConnection); err != nil {
		t.Fatalf("Begin after clear: %v", err)
	}
	if err := db.Tx().Commit(DefaultConnection); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
