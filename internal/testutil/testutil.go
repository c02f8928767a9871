// Package testutil はテスト用の SQLite DB とフィクスチャ。
// 機能パッケージから import されるので、ここからは platform/db 以外を import しないこと。
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/db"
)

// NewDB は t.TempDir() 上の SQLite を作りスキーマを流す
func NewDB(t *testing.T) *db.Conn {
	t.Helper()

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "libra-test.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Bootstrap(context.Background(), conn); err != nil {
		t.Fatalf("Failed to bootstrap schema: %v", err)
	}
	return conn
}

// Date は UTC 0時の日付
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SeedUser(t *testing.T, conn *db.Conn, email string, staff bool) int64 {
	t.Helper()
	res, err := conn.Exec(
		`INSERT INTO users (email, password_hash, first_name, last_name, is_staff, created_at) VALUES (?, ?, '', '', ?, ?)`,
		email, "x", staff, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", email, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func SeedBook(t *testing.T, conn *db.Conn, title string, inventory int, fee string) int64 {
	t.Helper()
	res, err := conn.Exec(
		`INSERT INTO books (title, author, cover, inventory, daily_fee) VALUES (?, ?, ?, ?, ?)`,
		title, "Author", "HARD", inventory, decimal.RequireFromString(fee),
	)
	if err != nil {
		t.Fatalf("Failed to seed book %s: %v", title, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func SeedBorrowing(t *testing.T, conn *db.Conn, id string, userID, bookID int64, borrowed, expected time.Time, returned *time.Time) {
	t.Helper()
	var actual any
	if returned != nil {
		actual = *returned
	}
	_, err := conn.Exec(
		`INSERT INTO borrowings (id, user_id, book_id, borrow_date, expected_return_date, actual_return_date) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, bookID, borrowed, expected, actual,
	)
	if err != nil {
		t.Fatalf("Failed to seed borrowing %s: %v", id, err)
	}
}

func SeedPayment(t *testing.T, conn *db.Conn, id, borrowingID, typ, status, sessionID, amount string) {
	t.Helper()
	_, err := conn.Exec(
		`INSERT INTO payments (id, borrowing_id, status, type, session_id, session_url, money_to_pay, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, borrowingID, status, typ, sessionID, "https://checkout.example/"+sessionID, decimal.RequireFromString(amount), time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("Failed to seed payment %s: %v", id, err)
	}
}

func Inventory(t *testing.T, conn *db.Conn, bookID int64) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT inventory FROM books WHERE id = ?`, bookID).Scan(&n); err != nil {
		t.Fatalf("Failed to read inventory: %v", err)
	}
	return n
}

func Count(t *testing.T, conn *db.Conn, query string, args ...any) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count (%s): %v", query, err)
	}
	return n
}
