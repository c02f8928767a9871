package payments

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"LIBRA-backend/internal/notify"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/paging"
)

type Service struct {
	conn     *db.Conn
	store    *Store
	notifier notify.Notifier
	webhook  WebhookConfig
}

func NewService(conn *db.Conn, notifier notify.Notifier, webhook WebhookConfig) *Service {
	return &Service{
		conn:     conn,
		store:    NewStore(conn),
		notifier: notifier,
		webhook:  webhook,
	}
}

// Store は貸出ワークフローが PAYMENT/FINE 行の追加と保留チェックに使う
func (s *Service) Store() *Store { return s.store }

type ListQuery struct {
	Status string
	Type   string
}

func (s *Service) List(ctx context.Context, p auth.Principal, q ListQuery, page paging.Page) ([]PaymentResponse, int64, error) {
	var f Filter
	if !p.IsStaff {
		uid := p.UserID
		f.UserID = &uid
	}
	if q.Status != "" {
		st := Status(strings.ToUpper(q.Status))
		if !st.Valid() {
			return nil, 0, apperr.InvalidField("status", "status must be PENDING or PAID")
		}
		f.Status = &st
	}
	if q.Type != "" {
		tp := Type(strings.ToUpper(q.Type))
		if !tp.Valid() {
			return nil, 0, apperr.InvalidField("type", "type must be PAYMENT or FINE")
		}
		f.Type = &tp
	}

	rows, total, err := s.store.List(ctx, f, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, ToResponse(&rows[i].Payment))
	}
	return out, total, nil
}

// Get: 他人の支払いは存在しないものとして 404
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (PaymentResponse, error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return PaymentResponse{}, apperr.NotFound("payment not found")
	}
	if err != nil {
		return PaymentResponse{}, err
	}
	if !p.IsStaff && r.UserID != p.UserID {
		return PaymentResponse{}, apperr.NotFound("payment not found")
	}
	return ToResponse(&r.Payment), nil
}

// SessionStatus は success リダイレクト用。参照のみで状態は変えない（PAID にするのは webhook だけ）。
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (StatusResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return StatusResponse{}, apperr.InvalidField("session_id", "Session ID is required")
	}
	r, err := s.store.GetBySession(ctx, s.conn, sessionID)
	if err != nil {
		return StatusResponse{}, err
	}
	if r == nil {
		return StatusResponse{}, apperr.NotFound("Payment not found")
	}

	if r.Status == StatusPaid {
		return StatusResponse{Status: r.Status, Detail: "Payment confirmed"}, nil
	}
	return StatusResponse{Status: r.Status, Detail: "Payment not completed yet"}, nil
}

// CompleteSession は session_id の支払いを PAID にする。
// 未知の session や既に PAID の場合は何もしない。遷移させた場合だけ COMMIT 後に通知する。
func (s *Service) CompleteSession(ctx context.Context, sessionID string) (bool, error) {
	var transitioned bool
	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		r, err := s.store.GetBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if r == nil {
			log.Printf("[WARN] webhook: no payment for session %s", sessionID)
			return nil
		}

		ok, err := s.store.MarkPaidBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("[INFO] webhook: payment %s already paid, skip", r.ID)
			return nil
		}

		transitioned = true
		info := notify.PaymentInfo{
			BorrowingID: r.BorrowingID,
			UserEmail:   r.UserEmail,
			Type:        string(r.Type),
			Amount:      r.MoneyToPay,
		}
		tx.OnCommit(func() { s.notifier.Enqueue(notify.PaymentCompleted(info)) })
		return nil
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		log.Printf("[INFO] webhook: session %s marked PAID", sessionID)
	}
	return transitioned, nil
}
