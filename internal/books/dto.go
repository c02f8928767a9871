package books

import "github.com/shopspring/decimal"

// ===== Requests =====

// CreateBookRequest は POST と PUT で共用（PUT は全項目置き換え）
type CreateBookRequest struct {
	Title     string           `json:"title"`
	Author    string           `json:"author"`
	Cover     Cover            `json:"cover"`
	Inventory *int             `json:"inventory"`
	DailyFee  *decimal.Decimal `json:"daily_fee"`
}

type UpdateBookRequest struct {
	Title     *string          `json:"title,omitempty"`
	Author    *string          `json:"author,omitempty"`
	Cover     *Cover           `json:"cover,omitempty"`
	Inventory *int             `json:"inventory,omitempty"`
	DailyFee  *decimal.Decimal `json:"daily_fee,omitempty"`
}

// ===== Responses =====

type BookResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Cover       Cover  `json:"cover"`
	DailyFee    string `json:"daily_fee"`
	IsAvailable bool   `json:"is_available"`
}

// BookDetailResponse はスタッフ向けに在庫数も返す
type BookDetailResponse struct {
	BookResponse
	Inventory int `json:"inventory"`
}

func ToResponse(b *Book) BookResponse {
	return BookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Cover:       b.Cover,
		DailyFee:    b.DailyFee.StringFixed(2),
		IsAvailable: b.IsAvailable(),
	}
}

func toDetail(b *Book) BookDetailResponse {
	return BookDetailResponse{BookResponse: ToResponse(b), Inventory: b.Inventory}
}

// ===== Listing helpers =====

type BookQuery struct {
	Title *string
}
