package books

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

type Service struct {
	conn  *db.Conn
	store *Store
}

func NewService(conn *db.Conn) *Service {
	return &Service{conn: conn, store: NewStore(conn)}
}

// Store は貸出ワークフローが行ロックと在庫調整に使う
func (s *Service) Store() *Store { return s.store }

func validateBook(b *Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	switch {
	case b.Title == "":
		return apperr.InvalidField("title", "title is required")
	case utf8.RuneCountInString(b.Title) > 255:
		return apperr.InvalidField("title", "title must be at most 255 characters")
	case b.Author == "":
		return apperr.InvalidField("author", "author is required")
	case utf8.RuneCountInString(b.Author) > 255:
		return apperr.InvalidField("author", "author must be at most 255 characters")
	case !b.Cover.Valid():
		return apperr.InvalidField("cover", "cover must be HARD or SOFT")
	case b.Inventory < 0:
		return apperr.InvalidField("inventory", "inventory must be >= 0")
	}
	return validateFee(b.DailyFee)
}

func validateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return apperr.InvalidField("daily_fee", "daily_fee must be >= 0")
	}
	if !fee.Equal(fee.Round(2)) {
		return apperr.InvalidField("daily_fee", "daily_fee must have at most 2 decimal places")
	}
	if fee.GreaterThan(maxDailyFee) {
		return apperr.InvalidField("daily_fee", "daily_fee is too large")
	}
	return nil
}

func fromCreate(in CreateBookRequest) (*Book, error) {
	if in.Inventory == nil {
		return nil, apperr.InvalidField("inventory", "inventory is required")
	}
	if in.DailyFee == nil {
		return nil, apperr.InvalidField("daily_fee", "daily_fee is required")
	}
	b := &Book{
		Title:     in.Title,
		Author:    in.Author,
		Cover:     Cover(strings.ToUpper(string(in.Cover))),
		Inventory: *in.Inventory,
		DailyFee:  *in.DailyFee,
	}
	if err := validateBook(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) Create(ctx context.Context, in CreateBookRequest) (BookDetailResponse, error) {
	b, err := fromCreate(in)
	if err != nil {
		return BookDetailResponse{}, err
	}
	if err := s.store.Insert(ctx, s.conn, b); err != nil {
		return BookDetailResponse{}, err
	}
	log.Printf("[INFO] book created: id=%d title=%q inventory=%d", b.ID, b.Title, b.Inventory)
	return toDetail(b), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Book, error) {
	b, err := s.store.Get(ctx, s.conn, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("book not found")
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, p paging.Page, q BookQuery) ([]Book, int64, error) {
	return s.store.List(ctx, p.Normalize(), q)
}

// Replace は PUT。全項目を置き換える。
func (s *Service) Replace(ctx context.Context, id int64, in CreateBookRequest) (BookDetailResponse, error) {
	next, err := fromCreate(in)
	if err != nil {
		return BookDetailResponse{}, err
	}
	return s.modify(ctx, id, func(b *Book) { next.ID = b.ID; *b = *next })
}

// Patch は指定された項目だけ更新する
func (s *Service) Patch(ctx context.Context, id int64, in UpdateBookRequest) (BookDetailResponse, error) {
	return s.modify(ctx, id, func(b *Book) {
		if in.Title != nil {
			b.Title = *in.Title
		}
		if in.Author != nil {
			b.Author = *in.Author
		}
		if in.Cover != nil {
			b.Cover = Cover(strings.ToUpper(string(*in.Cover)))
		}
		if in.Inventory != nil {
			b.Inventory = *in.Inventory
		}
		if in.DailyFee != nil {
			b.DailyFee = *in.DailyFee
		}
	})
}

// modify は行ロックを取ってから書き換える。貸出中の在庫減算と競合しないため。
func (s *Service) modify(ctx context.Context, id int64, apply func(b *Book)) (BookDetailResponse, error) {
	var out BookDetailResponse
	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		b, err := s.store.LockForUpdate(ctx, tx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("book not found")
		}
		if err != nil {
			return err
		}

		apply(b)
		if err := validateBook(b); err != nil {
			return err
		}
		if err := s.store.Update(ctx, tx, b); err != nil {
			return err
		}
		out = toDetail(b)
		return nil
	})
	if err != nil {
		return BookDetailResponse{}, err
	}
	log.Printf("[INFO] book updated: id=%d", id)
	return out, nil
}

// Delete: 貸出履歴のある本は消さない（台帳の参照を守る）
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		if _, err := s.store.LockForUpdate(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("book not found")
			}
			return err
		}

		used, err := s.store.HasBorrowings(ctx, tx, id)
		if err != nil {
			return err
		}
		if used {
			return apperr.Conflict("book has borrowings and cannot be deleted")
		}
		return s.store.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] book deleted: id=%d", id)
	return nil
}
