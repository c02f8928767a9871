package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const sessionsPath = "/v1/checkout/sessions"

type StripeConfig struct {
	APIKey     string
	APIBase    string
	SuccessURL string
	CancelURL  string
}

// StripeGateway は Stripe Checkout Session API をフォームエンコードで直接叩く
type StripeGateway struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.stripe.com"
	}
	return &StripeGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrProvider, req.Amount)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("client_reference_id", req.BorrowingID)
	form.Set("metadata[borrowing_id]", req.BorrowingID)
	// {CHECKOUT_SESSION_ID} は Stripe 側で置換される
	form.Set("success_url", g.cfg.SuccessURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", g.cfg.CancelURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.APIBase, "/")+sessionsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var se stripeError
		_ = json.Unmarshal(body, &se)
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, se.Error.Message)
	}

	var s stripeSession
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrProvider, err)
	}
	if s.ID == "" || s.URL == "" {
		return nil, fmt.Errorf("%w: incomplete session in response", ErrProvider)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}
