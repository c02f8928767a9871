// Package checkout は外部のホスト型決済ページ（Checkout Session）とのやり取りを扱う。
package checkout

import (
	"context"
	"errors"
)

// ErrProvider は決済プロバイダ呼び出しの失敗。呼び出し側は Tx を巻き戻す。
var ErrProvider = errors.New("checkout provider error")

type SessionRequest struct {
	BorrowingID string
	Description string
	Amount      int64 // 最小通貨単位（セント）
	Currency    string
}

type Session struct {
	ID  string
	URL string
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}
