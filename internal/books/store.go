package books

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

// ErrOutOfStock は在庫を負にしようとした場合
var ErrOutOfStock = errors.New("books: inventory would go negative")

type Store struct{ conn *db.Conn }

func NewStore(conn *db.Conn) *Store { return &Store{conn: conn} }

const bookColumns = `id, title, author, cover, inventory, daily_fee`

func scanBook(sc interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	if err := sc.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get: 見つからなければ sql.ErrNoRows
func (s *Store) Get(ctx context.Context, q db.DBTX, id int64) (*Book, error) {
	return scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
}

// LockForUpdate は Tx 内で本の行をロックして読む。貸出・返却はここで直列化される。
func (s *Store) LockForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE id = ?` + s.conn.ForUpdate()
	return scanBook(tx.QueryRowContext(ctx, q, id))
}

// AdjustInventory は inventory に delta を足す。0 未満になる更新は ErrOutOfStock。
func (s *Store) AdjustInventory(ctx context.Context, tx db.DBTX, id int64, delta int) error {
	const q = `UPDATE books SET inventory = inventory + ? WHERE id = ? AND inventory + ? >= 0`
	res, err := tx.ExecContext(ctx, q, delta, id, delta)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrOutOfStock
	}
	return nil
}

func (s *Store) List(ctx context.Context, p paging.Page, f BookQuery) ([]Book, int64, error) {
	var where []string
	args := []any{}
	if f.Title != nil && *f.Title != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(*f.Title)+"%")
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + bookColumns + ` FROM books` + cond + ` ORDER BY id LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Book, 0, p.Limit)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, b *Book) error {
	const stmt = `INSERT INTO books (title, author, cover, inventory, daily_fee) VALUES (?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, stmt, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, q db.DBTX, b *Book) error {
	const stmt = `UPDATE books SET title = ?, author = ?, cover = ?, inventory = ?, daily_fee = ? WHERE id = ?`
	// MySQL は値が変わらないと affected=0 を返すので存在確認は呼び出し側で済ませる
	_, err := q.ExecContext(ctx, stmt, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee, b.ID)
	return err
}

func (s *Store) FindByTitleAuthor(ctx context.Context, q db.DBTX, title, author string) (*Book, error) {
	const stmt = `SELECT ` + bookColumns + ` FROM books WHERE title = ? AND author = ? ORDER BY id LIMIT 1`
	b, err := scanBook(q.QueryRowContext(ctx, stmt, title, author))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) HasBorrowings(ctx context.Context, q db.DBTX, id int64) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM borrowings WHERE book_id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, q db.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}
