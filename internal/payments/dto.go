package payments

import "time"

type PaymentResponse struct {
	ID          string    `json:"id"`
	BorrowingID string    `json:"borrowing"`
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	MoneyToPay  string    `json:"money_to_pay"`
	SessionURL  *string   `json:"session_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func ToResponse(p *Payment) PaymentResponse {
	var url *string
	if p.SessionURL.Valid {
		v := p.SessionURL.String
		url = &v
	}
	return PaymentResponse{
		ID:          p.ID,
		BorrowingID: p.BorrowingID,
		Type:        p.Type,
		Status:      p.Status,
		MoneyToPay:  FormatAmount(p.MoneyToPay),
		SessionURL:  url,
		CreatedAt:   p.CreatedAt,
	}
}

// StatusResponse は success / cancel リダイレクト先の応答
type StatusResponse struct {
	Status Status `json:"status,omitempty"`
	Detail string `json:"detail"`
}
