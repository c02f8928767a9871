package borrowings

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/books"
	"LIBRA-backend/internal/checkout"
	"LIBRA-backend/internal/notify"
	"LIBRA-backend/internal/payments"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

const (
	msgBookUnavailable = "Book is not available."
	msgPendingPayments = "You have pending payments. Complete them before borrowing new books."
	msgDateNotFuture   = "Expected return date must be in the future."
	msgAlreadyReturned = "Book already returned."
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// -------------- Service --------------

// Config は起動時に設定ファイルから組み立てて渡す
type Config struct {
	FineMultiplier decimal.Decimal
	Currency       string
}

type Service struct {
	conn     *db.Conn
	store    *Store
	books    *books.Store
	payments *payments.Store
	gateway  checkout.Gateway
	notifier notify.Notifier
	cfg      Config
	clock    Clock
	id       IDGen
}

func NewService(conn *db.Conn, bookStore *books.Store, paymentStore *payments.Store,
	gateway checkout.Gateway, notifier notify.Notifier, cfg Config) *Service {
	return &Service{
		conn:     conn,
		store:    NewStore(conn),
		books:    bookStore,
		payments: paymentStore,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		clock:    realClock{},
		id:       ulidGen{},
	}
}

func (s *Service) Store() *Store { return s.store }

// POST /borrowings/
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateBorrowingRequest) (BorrowingResponse, error) {
	if in.Book == nil {
		return BorrowingResponse{}, apperr.InvalidField("book", "book is required")
	}
	expected, err := time.Parse(DateLayout, in.ExpectedReturnDate)
	if err != nil {
		return BorrowingResponse{}, apperr.InvalidField("expected_return_date", "expected_return_date must be YYYY-MM-DD")
	}

	now := s.clock.Now()
	today := dateOf(now)
	if !expected.After(today) {
		return BorrowingResponse{}, apperr.InvalidField("expected_return_date", msgDateNotFuture)
	}

	var (
		br   *Borrowing
		book *books.Book
	)
	err = db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		if err := s.store.LockUser(ctx, tx, p.UserID); err != nil {
			if isNoRows(err) {
				return apperr.Unauthenticated("user no longer exists")
			}
			return err
		}
		pending, err := s.payments.HasPendingForUser(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		if pending {
			return apperr.Invalid(msgPendingPayments)
		}

		// ロック後に在庫を読み直す
		book, err = s.books.LockForUpdate(ctx, tx, *in.Book)
		if isNoRows(err) {
			return apperr.InvalidField("book", "Book not found.")
		}
		if err != nil {
			return err
		}
		if !book.IsAvailable() {
			return apperr.InvalidField("book", msgBookUnavailable)
		}
		if err := s.books.AdjustInventory(ctx, tx, book.ID, -1); err != nil {
			if errors.Is(err, books.ErrOutOfStock) {
				return apperr.InvalidField("book", msgBookUnavailable)
			}
			return err
		}
		book.Inventory--

		br = &Borrowing{
			ID:                 s.id.NewULID(now),
			UserID:             p.UserID,
			BookID:             book.ID,
			BorrowDate:         today,
			ExpectedReturnDate: expected,
		}
		if err := s.store.Insert(ctx, tx, br); err != nil {
			return err
		}

		pay, err := s.charge(ctx, tx, br.ID, payments.TypePayment, book.DailyFee, now)
		if err != nil {
			return err
		}

		info := notify.BorrowingInfo{
			BorrowingID:    br.ID,
			UserEmail:      p.Email,
			BookTitle:      book.Title,
			ExpectedReturn: expected,
		}
		tx.OnCommit(func() {
			log.Printf("[INFO] borrowing %s created: user=%d book=%d payment=%s", br.ID, p.UserID, book.ID, pay.ID)
			s.notifier.Enqueue(notify.BorrowingCreated(info))
		})
		return nil
	})
	if err != nil {
		return BorrowingResponse{}, err
	}
	return ToResponse(br, book), nil
}

// charge は決済セッションを作り PENDING の支払い行を入れる。
// プロバイダ失敗は apperr.Provider になり、呼び出し元の Tx ごと巻き戻る。
func (s *Service) charge(ctx context.Context, tx db.Tx, borrowingID string, typ payments.Type, amount decimal.Decimal, now time.Time) (*payments.Payment, error) {
	desc := "Borrowing #" + borrowingID
	if typ == payments.TypeFine {
		desc = "Overdue fine for borrowing #" + borrowingID
	}
	sess, err := s.gateway.CreateSession(ctx, checkout.SessionRequest{
		BorrowingID: borrowingID,
		Description: desc,
		Amount:      payments.MinorUnits(amount),
		Currency:    s.cfg.Currency,
	})
	if err != nil {
		log.Printf("[ERROR] checkout session for borrowing %s (%s): %v", borrowingID, typ, err)
		return nil, apperr.Provider("failed to create payment session")
	}

	pay := &payments.Payment{
		ID:          s.id.NewULID(now),
		BorrowingID: borrowingID,
		Status:      payments.StatusPending,
		Type:        typ,
		SessionID:   sql.NullString{String: sess.ID, Valid: true},
		SessionURL:  sql.NullString{String: sess.URL, Valid: true},
		MoneyToPay:  amount,
		CreatedAt:   now,
	}
	if err := s.payments.Insert(ctx, tx, pay); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return pay, nil
}

// POST /borrowings/:id/return/
func (s *Service) Return(ctx context.Context, p auth.Principal, id string) (BorrowingResponse, error) {
	row, err := s.visible(ctx, p, id)
	if err != nil {
		return BorrowingResponse{}, err
	}
	if !row.IsActive() {
		return BorrowingResponse{}, apperr.Invalid(msgAlreadyReturned)
	}

	now := s.clock.Now()
	today := dateOf(now)

	var (
		br   *Borrowing
		book *books.Book
	)
	err = db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		// 同時返却に備えてロック下で再確認
		br, err = s.store.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !br.IsActive() {
			return apperr.Invalid(msgAlreadyReturned)
		}
		if err := s.store.MarkReturned(ctx, tx, id, today); err != nil {
			if errors.Is(err, ErrAlreadyReturned) {
				return apperr.Invalid(msgAlreadyReturned)
			}
			return err
		}
		br.ActualReturnDate = sql.NullTime{Time: today, Valid: true}

		book, err = s.books.LockForUpdate(ctx, tx, br.BookID)
		if err != nil {
			return err
		}
		if err := s.books.AdjustInventory(ctx, tx, book.ID, +1); err != nil {
			return err
		}
		book.Inventory++

		info := notify.BorrowingInfo{
			BorrowingID:    br.ID,
			UserEmail:      row.UserEmail,
			BookTitle:      book.Title,
			ExpectedReturn: br.ExpectedReturnDate,
			ActualReturn:   &today,
		}

		if days := OverdueDays(br.ExpectedReturnDate, today); days > 0 {
			fine := decimal.NewFromInt(int64(days)).Mul(book.DailyFee).Mul(s.cfg.FineMultiplier)
			pay, err := s.charge(ctx, tx, br.ID, payments.TypeFine, fine, now)
			if err != nil {
				return err
			}
			fineInfo := notify.PaymentInfo{
				BorrowingID: br.ID,
				UserEmail:   row.UserEmail,
				Type:        string(payments.TypeFine),
				Amount:      fine,
			}
			tx.OnCommit(func() {
				log.Printf("[INFO] fine %s created for borrowing %s: %d days, %s", pay.ID, br.ID, days, payments.FormatAmount(fine))
				s.notifier.Enqueue(notify.FineCreated(fineInfo, days))
			})
		}

		tx.OnCommit(func() {
			log.Printf("[INFO] borrowing %s returned", br.ID)
			s.notifier.Enqueue(notify.BorrowingReturned(info))
		})
		return nil
	})
	if err != nil {
		return BorrowingResponse{}, err
	}
	return ToResponse(br, book), nil
}

// GET /borrowings/:id/
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (BorrowingResponse, error) {
	row, err := s.visible(ctx, p, id)
	if err != nil {
		return BorrowingResponse{}, err
	}
	return ToResponse(&row.Borrowing, &row.Book), nil
}

// visible: 他人の貸出は存在しないものとして 404
func (s *Service) visible(ctx context.Context, p auth.Principal, id string) (*Row, error) {
	row, err := s.store.Get(ctx, s.conn, id)
	if isNoRows(err) {
		return nil, apperr.NotFound("borrowing not found")
	}
	if err != nil {
		return nil, err
	}
	if !p.IsStaff && row.UserID != p.UserID {
		return nil, apperr.NotFound("borrowing not found")
	}
	return row, nil
}

// GET /borrowings/  非スタッフは自分の分のみ。user_id 絞り込みはスタッフだけ有効。
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter, page paging.Page) ([]BorrowingResponse, int64, error) {
	if !p.IsStaff {
		uid := p.UserID
		f.UserID = &uid
	}
	rows, total, err := s.store.List(ctx, f, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BorrowingResponse, 0, len(rows))
	for i := range rows {
		out = append(out, ToResponse(&rows[i].Borrowing, &rows[i].Book))
	}
	return out, total, nil
}

// overdueItems はスイープと CSV 出力の共通部分
func overdueItems(ctx context.Context, store *Store, today time.Time) ([]notify.OverdueItem, error) {
	rows, err := store.ListOverdue(ctx, today)
	if err != nil {
		return nil, err
	}
	items := make([]notify.OverdueItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, notify.OverdueItem{
			BorrowingID:    r.ID,
			UserEmail:      r.UserEmail,
			BookTitle:      r.Book.Title,
			ExpectedReturn: r.ExpectedReturnDate,
			DaysOverdue:    OverdueDays(r.ExpectedReturnDate, today),
		})
	}
	return items, nil
}
