// Package borrowings は貸出・返却のワークフローと延滞の扱い。
package borrowings

import (
	"database/sql"
	"time"

	"LIBRA-backend/internal/books"
)

const DateLayout = "2006-01-02"

type Borrowing struct {
	ID                 string
	UserID             int64
	BookID             int64
	BorrowDate         time.Time
	ExpectedReturnDate time.Time
	ActualReturnDate   sql.NullTime
}

func (b *Borrowing) IsActive() bool { return !b.ActualReturnDate.Valid }

// Row は一覧・詳細用に借り手と本を添えたもの
type Row struct {
	Borrowing
	UserEmail string
	Book      books.Book
}

// dateOf は UTC の日付（0時）に丸める
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OverdueDays は返却日が予定日を過ぎた日数。予定日以前なら 0。
func OverdueDays(expected, returned time.Time) int {
	e, r := dateOf(expected), dateOf(returned)
	if !r.After(e) {
		return 0
	}
	return int(r.Sub(e).Hours() / 24)
}
