package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSender records messages; SendFunc decides the outcome of each call.
type MockSender struct {
	SendFunc func(ctx context.Context, msg Message) error

	mu    sync.Mutex
	calls int
	got   []Message
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	var err error
	if m.SendFunc != nil {
		err = m.SendFunc(ctx, msg)
	}
	if err == nil {
		m.mu.Lock()
		m.got = append(m.got, msg)
		m.mu.Unlock()
	}
	return err
}

func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.got...)
}

func noBackoff() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Millisecond }}
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	// max なしでも桁あふれで負にならない
	unbounded := ExponentialBackoff(time.Second, 0)
	if got := unbounded(200); got <= 0 {
		t.Errorf("unbounded Backoff(200) = %s, want positive", got)
	}
}

func TestDispatcherDeliversToEverySender(t *testing.T) {
	a, b := &MockSender{}, &MockSender{}
	d := NewDispatcher(DispatcherOptions{Workers: 2, QueueSize: 10, Policy: noBackoff()}, a, b)

	d.Enqueue(Message{Kind: KindBorrowingCreated, Text: "hello"})
	closeDispatcher(t, d)

	for name, s := range map[string]*MockSender{"a": a, "b": b} {
		msgs := s.Messages()
		if len(msgs) != 1 || msgs[0].Text != "hello" {
			t.Errorf("sender %s got %+v", name, msgs)
		}
	}
	if d.Delivered() != 2 {
		t.Errorf("Delivered() = %d, want 2", d.Delivered())
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	var n atomic.Int32
	s := &MockSender{SendFunc: func(context.Context, Message) error {
		if n.Add(1) < 3 {
			return errors.New("telegram down")
		}
		return nil
	}}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, Policy: noBackoff()}, s)

	d.Enqueue(Message{Kind: KindPaymentCompleted, Text: "paid"})
	closeDispatcher(t, d)

	if s.Calls() != 3 {
		t.Errorf("calls = %d, want 3", s.Calls())
	}
	if len(s.Messages()) != 1 {
		t.Errorf("delivered messages = %d, want 1", len(s.Messages()))
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	s := &MockSender{SendFunc: func(context.Context, Message) error { return errors.New("always") }}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, Policy: noBackoff()}, s)

	d.Enqueue(Message{Kind: KindFineCreated})
	closeDispatcher(t, d)

	if s.Calls() != 3 {
		t.Errorf("calls = %d, want 3", s.Calls())
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	s := &MockSender{SendFunc: func(context.Context, Message) error {
		return Permanent(errors.New("bad request"))
	}}
	slow := RetryPolicy{MaxAttempts: 5, Backoff: func(int) time.Duration { return time.Hour }}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, Policy: slow}, s)

	d.Enqueue(Message{Kind: KindFineCreated})
	closeDispatcher(t, d)

	if s.Calls() != 1 {
		t.Errorf("calls = %d, want 1", s.Calls())
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestDispatcherEnqueueNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	s := &MockSender{SendFunc: func(ctx context.Context, _ Message) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, Policy: noBackoff()}, s)

	start := time.Now()
	for i := 0; i < 5; i++ {
		d.Enqueue(Message{Kind: KindBorrowingCreated})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Enqueue blocked for %s", elapsed)
	}
	if d.Dropped() < 3 {
		t.Errorf("Dropped() = %d, want >= 3", d.Dropped())
	}

	close(release)
	closeDispatcher(t, d)
}

func TestDispatcherEnqueueAfterClose(t *testing.T) {
	s := &MockSender{}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, Policy: noBackoff()}, s)
	closeDispatcher(t, d)

	d.Enqueue(Message{Kind: KindBorrowingCreated})
	if s.Calls() != 0 || d.Dropped() != 1 {
		t.Errorf("calls = %d dropped = %d, want 0 and 1", s.Calls(), d.Dropped())
	}
}

func TestMessageFormats(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	ret := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			"borrowing created",
			BorrowingCreated(BorrowingInfo{BorrowingID: "B1", UserEmail: "u@test.com", BookTitle: "Go & You", ExpectedReturn: due}),
			[]string{"New borrowing created", "Borrowing ID: B1", "User: u@test.com", "Book: Go &amp; You", "Expected return: 2026-03-10"},
		},
		{
			"borrowing returned",
			BorrowingReturned(BorrowingInfo{BorrowingID: "B1", UserEmail: "u@test.com", BookTitle: "T", ExpectedReturn: due, ActualReturn: &ret}),
			[]string{"Book returned", "Returned: 2026-03-13"},
		},
		{
			"fine created",
			FineCreated(PaymentInfo{BorrowingID: "B1", UserEmail: "u@test.com", Type: "FINE", Amount: decimal.RequireFromString("60")}, 3),
			[]string{"Overdue fine created", "Overdue days: 3", "Amount: $60.00"},
		},
		{
			"sub-cent fine keeps its exact amount",
			FineCreated(PaymentInfo{BorrowingID: "B2", UserEmail: "u@test.com", Type: "FINE", Amount: decimal.RequireFromString("0.495")}, 1),
			[]string{"Amount: $0.495"},
		},
		{
			"payment completed",
			PaymentCompleted(PaymentInfo{BorrowingID: "B1", UserEmail: "u@test.com", Type: "PAYMENT", Amount: decimal.RequireFromString("10")}),
			[]string{"💰 <b>Payment completed</b>", "Amount: $10.00"},
		},
		{
			"fine payment completed",
			PaymentCompleted(PaymentInfo{BorrowingID: "B1", UserEmail: "u@test.com", Type: "FINE", Amount: decimal.RequireFromString("20.5")}),
			[]string{"Fine payment completed", "Amount: $20.50"},
		},
		{
			"overdue summary",
			OverdueSummary([]OverdueItem{{UserEmail: "a@test.com", BookTitle: "Dune", ExpectedReturn: due, DaysOverdue: 2}}, ret)[0],
			[]string{"Overdue borrowings (2026-03-13)", "Total: 1", "a@test.com: Dune, due 2026-03-10 (2 days)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				if !strings.Contains(tt.msg.Text, w) {
					t.Errorf("text %q does not contain %q", tt.msg.Text, w)
				}
			}
		})
	}
}

func TestTelegramSender(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		if got.Text == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42", srv.URL)
	if err := s.Send(context.Background(), Message{Text: "<b>hi</b>"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if got.ChatID != "42" || got.ParseMode != "HTML" {
		t.Errorf("request = %+v", got)
	}

	err := s.Send(context.Background(), Message{Text: "fail"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("Send() error = %v, want provider description", err)
	}
	if !IsPermanent(err) {
		t.Errorf("IsPermanent(%v) = false, want a 400 not to be retried", err)
	}
}

func TestOverdueSummarySplitsLongLists(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		items     int
		wantParts int
	}{
		{"Given a few overdue rows When formatting Then one message without part suffix", 3, 1},
		{"Given many overdue rows When formatting Then several messages within the limit", 300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]OverdueItem, tt.items)
			for i := range items {
				items[i] = OverdueItem{
					UserEmail:      fmt.Sprintf("reader-%03d@example.com", i),
					BookTitle:      "The Remarkably Long Title Of A Book That Keeps Going & Going",
					ExpectedReturn: due,
					DaysOverdue:    12,
				}
			}

			msgs := OverdueSummary(items, today)
			if tt.wantParts > 0 && len(msgs) != tt.wantParts {
				t.Fatalf("parts = %d, want %d", len(msgs), tt.wantParts)
			}
			if tt.wantParts == 0 && len(msgs) < 2 {
				t.Fatalf("parts = %d, want the list split", len(msgs))
			}

			rows := 0
			for i, m := range msgs {
				if n := utf8.RuneCountInString(m.Text); n > MaxTextLength {
					t.Errorf("part %d length = %d, want <= %d", i+1, n, MaxTextLength)
				}
				if m.Kind != KindOverdueSummary || !strings.Contains(m.Text, "Total: "+strconv.Itoa(tt.items)) {
					t.Errorf("part %d header = %q", i+1, strings.SplitN(m.Text, "\n", 2)[0])
				}
				if len(msgs) > 1 && !strings.Contains(m.Text, fmt.Sprintf("(%d/%d)", i+1, len(msgs))) {
					t.Errorf("part %d has no part counter", i+1)
				}
				rows += strings.Count(m.Text, "\n• ")
			}
			if rows != tt.items {
				t.Errorf("rows across parts = %d, want %d", rows, tt.items)
			}
		})
	}
}

func TestHubBroadcastsToStaffClients(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Minute, time.Hour)
	staffPair, err := tokens.IssuePair(&auth.User{ID: 1, Email: "staff@test.com", IsStaff: true})
	if err != nil {
		t.Fatal(err)
	}
	userPair, err := tokens.IssuePair(&auth.User{ID: 2, Email: "user@test.com"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	RegisterRoutes(r.Group("/api"), hub, tokens)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+userPair.Access, nil)
	if err == nil {
		t.Fatal("non-staff dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-staff response = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+staffPair.Access, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Send(context.Background(), Message{Kind: KindPaymentCompleted, Text: "paid"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var wm wireMessage
	if err := conn.ReadJSON(&wm); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if wm.Kind != KindPaymentCompleted || wm.Text != "paid" {
		t.Errorf("message = %+v", wm)
	}
}

func TestClosedHubIsDroppedWithoutRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := hub.Send(context.Background(), Message{Kind: KindPaymentCompleted})
	if !errors.Is(err, ErrHubClosed) || !IsPermanent(err) {
		t.Fatalf("Send() on closed hub error = %v, want permanent ErrHubClosed", err)
	}

	// 閉じた hub が後ろの Telegram 配信を待たせない
	tg := &MockSender{}
	slow := RetryPolicy{MaxAttempts: 5, Backoff: func(int) time.Duration { return time.Hour }}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 4, Policy: slow}, hub, tg)
	d.Enqueue(Message{Kind: KindBorrowingCreated, Text: "one"})
	d.Enqueue(Message{Kind: KindBorrowingCreated, Text: "two"})

	closeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := d.Close(closeCtx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(tg.Messages()) != 2 {
		t.Errorf("telegram messages = %d, want 2", len(tg.Messages()))
	}
}
