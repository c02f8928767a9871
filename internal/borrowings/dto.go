package borrowings

import "LIBRA-backend/internal/books"

type CreateBorrowingRequest struct {
	Book               *int64 `json:"book"`
	ExpectedReturnDate string `json:"expected_return_date"` // YYYY-MM-DD
}

type BorrowingResponse struct {
	ID                 string             `json:"id"`
	Book               books.BookResponse `json:"book"`
	BorrowDate         string             `json:"borrow_date"`
	ExpectedReturnDate string             `json:"expected_return_date"`
	ActualReturnDate   *string            `json:"actual_return_date"`
	IsActive           bool               `json:"is_active"`
}

func ToResponse(b *Borrowing, book *books.Book) BorrowingResponse {
	res := BorrowingResponse{
		ID:                 b.ID,
		Book:               books.ToResponse(book),
		BorrowDate:         b.BorrowDate.Format(DateLayout),
		ExpectedReturnDate: b.ExpectedReturnDate.Format(DateLayout),
		IsActive:           b.IsActive(),
	}
	if b.ActualReturnDate.Valid {
		s := b.ActualReturnDate.Time.Format(DateLayout)
		res.ActualReturnDate = &s
	}
	return res
}

// ===== Listing helpers =====

type Filter struct {
	UserID *int64
	Active *bool
}
