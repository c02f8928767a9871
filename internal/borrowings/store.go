package borrowings

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

// ErrAlreadyReturned は返却済みの貸出を再度返却しようとした場合
var ErrAlreadyReturned = errors.New("borrowings: already returned")

type Store struct{ conn *db.Conn }

func NewStore(conn *db.Conn) *Store { return &Store{conn: conn} }

const borrowingColumns = `id, user_id, book_id, borrow_date, expected_return_date, actual_return_date`

const rowColumns = `br.id, br.user_id, br.book_id, br.borrow_date, br.expected_return_date, br.actual_return_date,
u.email, bk.id, bk.title, bk.author, bk.cover, bk.inventory, bk.daily_fee`

const rowFrom = ` FROM borrowings br
JOIN users u ON u.id = br.user_id
JOIN books bk ON bk.id = br.book_id`

func scanBorrowing(sc interface{ Scan(...any) error }) (*Borrowing, error) {
	var b Borrowing
	if err := sc.Scan(&b.ID, &b.UserID, &b.BookID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanRow(sc interface{ Scan(...any) error }) (*Row, error) {
	var r Row
	err := sc.Scan(&r.ID, &r.UserID, &r.BookID, &r.BorrowDate, &r.ExpectedReturnDate, &r.ActualReturnDate,
		&r.UserEmail, &r.Book.ID, &r.Book.Title, &r.Book.Author, &r.Book.Cover, &r.Book.Inventory, &r.Book.DailyFee)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, b *Borrowing) error {
	const stmt = `
INSERT INTO borrowings (id, user_id, book_id, borrow_date, expected_return_date, actual_return_date)
VALUES (?, ?, ?, ?, ?, NULL)`
	_, err := q.ExecContext(ctx, stmt, b.ID, b.UserID, b.BookID, b.BorrowDate, b.ExpectedReturnDate)
	return err
}

// Get: 見つからなければ sql.ErrNoRows
func (s *Store) Get(ctx context.Context, q db.DBTX, id string) (*Row, error) {
	return scanRow(q.QueryRowContext(ctx, `SELECT `+rowColumns+rowFrom+` WHERE br.id = ?`, id))
}

// LockForUpdate は Tx 内で貸出行をロックして読み直す
func (s *Store) LockForUpdate(ctx context.Context, tx db.DBTX, id string) (*Borrowing, error) {
	q := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE id = ?` + s.conn.ForUpdate()
	return scanBorrowing(tx.QueryRowContext(ctx, q, id))
}

// LockUser は同じ利用者の貸出作成を直列化する（保留支払いチェックのすり抜け防止）
func (s *Store) LockUser(ctx context.Context, tx db.DBTX, userID int64) error {
	var id int64
	return tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`+s.conn.ForUpdate(), userID).Scan(&id)
}

// MarkReturned は未返却の行にだけ返却日を入れる。既に返却済みなら ErrAlreadyReturned。
func (s *Store) MarkReturned(ctx context.Context, tx db.DBTX, id string, at time.Time) error {
	const stmt = `UPDATE borrowings SET actual_return_date = ? WHERE id = ? AND actual_return_date IS NULL`
	res, err := tx.ExecContext(ctx, stmt, at, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff != 1 {
		return ErrAlreadyReturned
	}
	return nil
}

func (s *Store) List(ctx context.Context, f Filter, p paging.Page) ([]Row, int64, error) {
	var where []string
	args := []any{}
	if f.UserID != nil {
		where = append(where, "br.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Active != nil {
		if *f.Active {
			where = append(where, "br.actual_return_date IS NULL")
		} else {
			where = append(where, "br.actual_return_date IS NOT NULL")
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*)`+rowFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + rowColumns + rowFrom + cond + ` ORDER BY br.borrow_date DESC, br.id DESC LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Row, 0, p.Limit)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// ListOverdue は未返却かつ予定日が today より前のもの（予定日の古い順）
func (s *Store) ListOverdue(ctx context.Context, today time.Time) ([]Row, error) {
	q := `SELECT ` + rowColumns + rowFrom + `
WHERE br.actual_return_date IS NULL AND br.expected_return_date < ?
ORDER BY br.expected_return_date, br.id`
	rows, err := s.conn.QueryContext(ctx, q, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
