package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return conn
}

func countRows(t *testing.T, conn *Conn) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRunInTxCommitRunsHooksInOrder(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	var order []string
	err := RunInTx(ctx, conn, nil, func(ctx context.Context, tx Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1"); err != nil {
			return err
		}
		tx.OnCommit(func() { order = append(order, "first") })
		tx.OnCommit(func() { order = append(order, "second") })
		// COMMIT 前には走らない
		if len(order) != 0 {
			t.Errorf("hooks ran before commit: %v", order)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx() error = %v", err)
	}

	if countRows(t, conn) != 1 {
		t.Errorf("row was not committed")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hooks = %v, want [first second]", order)
	}
}

func TestRunInTxRollbackDiscardsHooks(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	errBoom := errors.New("boom")
	called := false
	err := RunInTx(ctx, conn, nil, func(ctx context.Context, tx Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1"); err != nil {
			return err
		}
		tx.OnCommit(func() { called = true })
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("RunInTx() error = %v, want boom", err)
	}
	if called {
		t.Errorf("hook ran after rollback")
	}
	if countRows(t, conn) != 0 {
		t.Errorf("row survived rollback")
	}
}

func TestRunInTxPanicRollsBack(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("panic was swallowed")
			}
		}()
		_ = RunInTx(ctx, conn, nil, func(ctx context.Context, tx Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1"); err != nil {
				return err
			}
			panic("unexpected")
		})
	}()

	if countRows(t, conn) != 0 {
		t.Errorf("row survived panic")
	}
}

func TestBootstrapIsRepeatable(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		if err := Bootstrap(context.Background(), conn); err != nil {
			t.Fatalf("Bootstrap() #%d error = %v", i, err)
		}
	}
	if conn.ForUpdate() != "" {
		t.Errorf("ForUpdate() on sqlite = %q, want empty", conn.ForUpdate())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openTestConn(t)
	if _, err := conn.Exec(`INSERT INTO kv (k, v) VALUES ('a', '1')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, dupErr := conn.Exec(`INSERT INTO kv (k, v) VALUES ('a', '2')`)
	_, nullErr := conn.Exec(`INSERT INTO kv (k, v) VALUES ('b', NULL)`)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Given a duplicate key insert When checking Then it is a unique violation", dupErr, true},
		{"Given a NOT NULL failure When checking Then it is not", nullErr, false},
		{"Given a duplicate entry from mysql When checking Then it is a unique violation", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"Given another mysql error When checking Then it is not", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, false},
		{"Given a plain error When checking Then it is not", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}
