package payments

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

type Store struct{ conn *db.Conn }

func NewStore(conn *db.Conn) *Store { return &Store{conn: conn} }

type Filter struct {
	UserID      *int64 // 非スタッフは必ず自分の ID
	BorrowingID *string
	Status      *Status
	Type        *Type
}

const rowColumns = `p.id, p.borrowing_id, p.status, p.type, p.session_id, p.session_url, p.money_to_pay, p.created_at, b.user_id, u.email`

const rowFrom = ` FROM payments p
JOIN borrowings b ON b.id = p.borrowing_id
JOIN users u ON u.id = b.user_id`

func scanRow(sc interface{ Scan(...any) error }) (*Row, error) {
	var r Row
	err := sc.Scan(&r.ID, &r.BorrowingID, &r.Status, &r.Type, &r.SessionID, &r.SessionURL,
		&r.MoneyToPay, &r.CreatedAt, &r.UserID, &r.UserEmail)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, p *Payment) error {
	const stmt = `
INSERT INTO payments (id, borrowing_id, status, type, session_id, session_url, money_to_pay, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt, p.ID, p.BorrowingID, p.Status, p.Type,
		p.SessionID, p.SessionURL, p.MoneyToPay, p.CreatedAt)
	return err
}

// HasPendingForUser は貸出ゲート用。どの貸出に紐づく支払いかは問わない。
func (s *Store) HasPendingForUser(ctx context.Context, q db.DBTX, userID int64) (bool, error) {
	const stmt = `
SELECT COUNT(*) FROM payments p
JOIN borrowings b ON b.id = p.borrowing_id
WHERE b.user_id = ? AND p.status = ?`
	var n int
	if err := q.QueryRowContext(ctx, stmt, userID, StatusPending).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get: 見つからなければ sql.ErrNoRows
func (s *Store) Get(ctx context.Context, id string) (*Row, error) {
	return scanRow(s.conn.QueryRowContext(ctx, `SELECT `+rowColumns+rowFrom+` WHERE p.id = ?`, id))
}

// GetBySession: 見つからなければ nil, nil
func (s *Store) GetBySession(ctx context.Context, q db.DBTX, sessionID string) (*Row, error) {
	r, err := scanRow(q.QueryRowContext(ctx, `SELECT `+rowColumns+rowFrom+` WHERE p.session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// MarkPaidBySession は PENDING の行だけを PAID にする条件付き UPDATE。
// 遷移させた呼び出しだけが true を受け取るので、同じ完了通知が何度来ても遷移は1回。
func (s *Store) MarkPaidBySession(ctx context.Context, q db.DBTX, sessionID string) (bool, error) {
	const stmt = `UPDATE payments SET status = ? WHERE session_id = ? AND status = ?`
	res, err := q.ExecContext(ctx, stmt, StatusPaid, sessionID, StatusPending)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) List(ctx context.Context, f Filter, p paging.Page) ([]Row, int64, error) {
	var where []string
	args := []any{}
	if f.UserID != nil {
		where = append(where, "b.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.BorrowingID != nil {
		where = append(where, "p.borrowing_id = ?")
		args = append(args, *f.BorrowingID)
	}
	if f.Status != nil {
		where = append(where, "p.status = ?")
		args = append(args, *f.Status)
	}
	if f.Type != nil {
		where = append(where, "p.type = ?")
		args = append(args, *f.Type)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*)`+rowFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + rowColumns + rowFrom + cond + ` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
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
