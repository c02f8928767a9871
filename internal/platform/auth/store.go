package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"LIBRA-backend/internal/platform/db"
)

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsStaff      bool
	CreatedAt    time.Time
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateName(ctx context.Context, id int64, firstName, lastName string) error
}

type Store struct{ conn *db.Conn }

func NewStore(conn *db.Conn) UserStore {
	return &Store{conn: conn}
}

const userColumns = `id, email, password_hash, first_name, last_name, is_staff, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsStaff, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`
	return scanUser(s.conn.QueryRowContext(ctx, q, id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`
	return scanUser(s.conn.QueryRowContext(ctx, q, email))
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (email, password_hash, first_name, last_name, is_staff, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`
	res, err := s.conn.ExecContext(ctx, q, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (s *Store) UpdateName(ctx context.Context, id int64, firstName, lastName string) error {
	const q = `UPDATE users SET first_name = ?, last_name = ? WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, q, firstName, lastName, id)
	return err
}
