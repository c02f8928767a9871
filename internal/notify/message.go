// Package notify は管理者向け通知（Telegram, WebSocket）の非同期配信を扱う。
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBorrowingCreated  Kind = "borrowing_created"
	KindBorrowingReturned Kind = "borrowing_returned"
	KindFineCreated       Kind = "fine_created"
	KindPaymentCompleted  Kind = "payment_completed"
	KindOverdueSummary    Kind = "overdue_summary"
)

// Message の Text は Telegram の HTML parse mode 前提
type Message struct {
	Kind Kind
	Text string
}

const dateLayout = "2006-01-02"

// MaxTextLength は Telegram sendMessage の本文上限
const MaxTextLength = 4096

// FormatAmount は2桁に収まる額は 0.00 形式、それより細かい額は丸めずに出す
func FormatAmount(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

type BorrowingInfo struct {
	BorrowingID    string
	UserEmail      string
	BookTitle      string
	ExpectedReturn time.Time
	ActualReturn   *time.Time
}

type PaymentInfo struct {
	BorrowingID string
	UserEmail   string
	Type        string // PAYMENT | FINE
	Amount      decimal.Decimal
}

type OverdueItem struct {
	BorrowingID    string
	UserEmail      string
	BookTitle      string
	ExpectedReturn time.Time
	DaysOverdue    int
}

func BorrowingCreated(b BorrowingInfo) Message {
	return Message{
		Kind: KindBorrowingCreated,
		Text: "📚 <b>New borrowing created</b>\n" +
			fmt.Sprintf("Borrowing ID: %s\n", b.BorrowingID) +
			fmt.Sprintf("User: %s\n", html.EscapeString(b.UserEmail)) +
			fmt.Sprintf("Book: %s\n", html.EscapeString(b.BookTitle)) +
			fmt.Sprintf("Expected return: %s", b.ExpectedReturn.Format(dateLayout)),
	}
}

func BorrowingReturned(b BorrowingInfo) Message {
	returned := "-"
	if b.ActualReturn != nil {
		returned = b.ActualReturn.Format(dateLayout)
	}
	return Message{
		Kind: KindBorrowingReturned,
		Text: "✅ <b>Book returned</b>\n" +
			fmt.Sprintf("Borrowing ID: %s\n", b.BorrowingID) +
			fmt.Sprintf("User: %s\n", html.EscapeString(b.UserEmail)) +
			fmt.Sprintf("Book: %s\n", html.EscapeString(b.BookTitle)) +
			fmt.Sprintf("Expected return: %s\n", b.ExpectedReturn.Format(dateLayout)) +
			fmt.Sprintf("Returned: %s", returned),
	}
}

func FineCreated(p PaymentInfo, overdueDays int) Message {
	return Message{
		Kind: KindFineCreated,
		Text: "⏰ <b>Overdue fine created</b>\n" +
			fmt.Sprintf("Borrowing ID: %s\n", p.BorrowingID) +
			fmt.Sprintf("User: %s\n", html.EscapeString(p.UserEmail)) +
			fmt.Sprintf("Overdue days: %d\n", overdueDays) +
			fmt.Sprintf("Amount: $%s", FormatAmount(p.Amount)),
	}
}

// PaymentCompleted は FINE と PAYMENT で見出しを変える
func PaymentCompleted(p PaymentInfo) Message {
	header := "💰 <b>Payment completed</b>"
	if p.Type == "FINE" {
		header = "⚠️ <b>Fine payment completed</b>"
	}
	return Message{
		Kind: KindPaymentCompleted,
		Text: header + "\n" +
			fmt.Sprintf("Borrowing ID: %s\n", p.BorrowingID) +
			fmt.Sprintf("User: %s\n", html.EscapeString(p.UserEmail)) +
			fmt.Sprintf("Amount: $%s", FormatAmount(p.Amount)),
	}
}

// OverdueSummary は延滞一覧を MaxTextLength 以内の通知に分割する。
// 1通に収まれば1件、溢れたら見出しに (i/n) を付けて連番で送る。
func OverdueSummary(items []OverdueItem, today time.Time) []Message {
	title := fmt.Sprintf("🚨 <b>Overdue borrowings (%s)</b>", today.Format(dateLayout))
	total := fmt.Sprintf("Total: %d", len(items))

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("• %s: %s, due %s (%d days)",
			html.EscapeString(it.UserEmail),
			html.EscapeString(it.BookTitle),
			it.ExpectedReturn.Format(dateLayout),
			it.DaysOverdue,
		))
	}

	// 見出しの " (i/n)" 分を空けておく
	budget := MaxTextLength - utf8.RuneCountInString(title) - utf8.RuneCountInString(total) - 32
	var chunks [][]string
	var cur []string
	size := 0
	for _, l := range lines {
		n := utf8.RuneCountInString(l) + 1
		if len(cur) > 0 && size+n > budget {
			chunks = append(chunks, cur)
			cur, size = nil, 0
		}
		cur = append(cur, l)
		size += n
	}
	chunks = append(chunks, cur)

	msgs := make([]Message, 0, len(chunks))
	for i, c := range chunks {
		var sb strings.Builder
		sb.WriteString(title)
		if len(chunks) > 1 {
			fmt.Fprintf(&sb, " (%d/%d)", i+1, len(chunks))
		}
		sb.WriteString("\n")
		sb.WriteString(total)
		for _, l := range c {
			sb.WriteString("\n")
			sb.WriteString(l)
		}
		msgs = append(msgs, Message{Kind: KindOverdueSummary, Text: sb.String()})
	}
	return msgs
}
