// Package payments は支払い・延滞金の台帳と、決済プロバイダからの完了通知の取り込み。
package payments

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/notify"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

func (s Status) Valid() bool { return s == StatusPending || s == StatusPaid }

type Type string

const (
	TypePayment Type = "PAYMENT"
	TypeFine    Type = "FINE"
)

func (t Type) Valid() bool { return t == TypePayment || t == TypeFine }

// Payment の状態遷移は PENDING → PAID のみ
type Payment struct {
	ID          string
	BorrowingID string
	Status      Status
	Type        Type
	SessionID   sql.NullString
	SessionURL  sql.NullString
	MoneyToPay  decimal.Decimal
	CreatedAt   time.Time
}

// Row は一覧・通知用に借り手を添えたもの
type Row struct {
	Payment
	UserID    int64
	UserEmail string
}

// FormatAmount は API レスポンスと通知で同じ表記を使う
func FormatAmount(d decimal.Decimal) string { return notify.FormatAmount(d) }

// MinorUnits は決済プロバイダに渡す最小通貨単位（セント）。端数は四捨五入。
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
