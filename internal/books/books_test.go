package books

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func intp(n int) *int { return &n }

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	tests := []struct {
		name      string
		req       CreateBookRequest
		wantField string
	}{
		{"Given a valid book When creating Then ok",
			CreateBookRequest{Title: "Dune", Author: "Herbert", Cover: "hard", Inventory: intp(2), DailyFee: decp("1.50")}, ""},
		{"Given a 255 character multibyte title When creating Then ok",
			CreateBookRequest{Title: strings.Repeat("猫", 255), Author: "夏目漱石", Cover: "hard", Inventory: intp(1), DailyFee: decp("1.50")}, ""},
		{"Given a 256 character title When creating Then title error",
			CreateBookRequest{Title: strings.Repeat("猫", 256), Author: "A", Cover: "HARD", Inventory: intp(1), DailyFee: decp("1")}, "title"},
		{"Given an empty title When creating Then title error",
			CreateBookRequest{Title: " ", Author: "A", Cover: "HARD", Inventory: intp(1), DailyFee: decp("1")}, "title"},
		{"Given an unknown cover When creating Then cover error",
			CreateBookRequest{Title: "T", Author: "A", Cover: "LEATHER", Inventory: intp(1), DailyFee: decp("1")}, "cover"},
		{"Given a negative inventory When creating Then inventory error",
			CreateBookRequest{Title: "T", Author: "A", Cover: "SOFT", Inventory: intp(-1), DailyFee: decp("1")}, "inventory"},
		{"Given a missing inventory When creating Then inventory error",
			CreateBookRequest{Title: "T", Author: "A", Cover: "SOFT", DailyFee: decp("1")}, "inventory"},
		{"Given a negative fee When creating Then fee error",
			CreateBookRequest{Title: "T", Author: "A", Cover: "SOFT", Inventory: intp(1), DailyFee: decp("-0.01")}, "daily_fee"},
		{"Given a fee with three decimals When creating Then fee error",
			CreateBookRequest{Title: "T", Author: "A", Cover: "SOFT", Inventory: intp(1), DailyFee: decp("1.005")}, "daily_fee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Create(context.Background(), tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				if res.Cover != CoverHard || res.DailyFee != "1.50" || !res.IsAvailable {
					t.Errorf("Create() = %+v", res)
				}
				return
			}
			var api *apperr.APIError
			if !errors.As(err, &api) || api.Code != apperr.CodeInvalidArgument {
				t.Fatalf("Create() error = %v, want INVALID_ARGUMENT", err)
			}
			if _, ok := api.Fields[tt.wantField]; !ok {
				t.Errorf("Fields = %v, want %s", api.Fields, tt.wantField)
			}
		})
	}
}

func TestInventoryNeverNegative(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	id := testutil.SeedBook(t, conn, "Solaris", 1, "2.00")

	err := db.RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx db.Tx) error {
		if err := svc.Store().AdjustInventory(ctx, tx, id, -1); err != nil {
			return err
		}
		return svc.Store().AdjustInventory(ctx, tx, id, -1)
	})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("AdjustInventory() error = %v, want ErrOutOfStock", err)
	}
	if got := testutil.Inventory(t, conn, id); got != 1 {
		t.Errorf("inventory = %d, want 1 after rollback", got)
	}
}

func TestPatchAndReplace(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	id := testutil.SeedBook(t, conn, "Old", 3, "1.00")

	title := "New"
	res, err := svc.Patch(context.Background(), id, UpdateBookRequest{Title: &title})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if res.Title != "New" || res.Inventory != 3 || res.DailyFee != "1.00" {
		t.Errorf("Patch() = %+v", res)
	}

	res, err = svc.Replace(context.Background(), id, CreateBookRequest{
		Title: "Replaced", Author: "B", Cover: "SOFT", Inventory: intp(0), DailyFee: decp("4.25"),
	})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if res.ID != id || res.IsAvailable || res.DailyFee != "4.25" {
		t.Errorf("Replace() = %+v", res)
	}

	if _, err := svc.Patch(context.Background(), 9999, UpdateBookRequest{Title: &title}); apperr.ToHTTPStatus(err) != http.StatusNotFound {
		t.Errorf("Patch(missing) error = %v, want 404", err)
	}
}

func TestDeleteReferencedBookConflicts(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	userID := testutil.SeedUser(t, conn, "u@test.com", false)
	used := testutil.SeedBook(t, conn, "Used", 1, "1.00")
	unused := testutil.SeedBook(t, conn, "Unused", 1, "1.00")
	testutil.SeedBorrowing(t, conn, "01J00000000000000000000001", userID, used,
		testutil.Date(2026, 1, 1), testutil.Date(2026, 1, 5), nil)

	if err := svc.Delete(context.Background(), used); apperr.ToHTTPStatus(err) != http.StatusConflict {
		t.Errorf("Delete(used) error = %v, want 409", err)
	}
	if err := svc.Delete(context.Background(), unused); err != nil {
		t.Errorf("Delete(unused) error = %v", err)
	}
	if n := testutil.Count(t, conn, `SELECT COUNT(*) FROM books`); n != 1 {
		t.Errorf("books = %d, want 1", n)
	}
}

func TestImportCatalog(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	testutil.SeedBook(t, conn, "Dune", 1, "1.00")

	f, err := ParseCatalog(strings.NewReader(`
books:
  - title: Dune
    author: Author
    cover: SOFT
    inventory: 5
    daily_fee: "2.00"
  - title: Hyperion
    author: Simmons
    cover: HARD
    inventory: 2
    daily_fee: "1.25"
  - title: Broken
    author: Nobody
    cover: HARD
    inventory: 1
    daily_fee: abc
`))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}

	res, err := svc.Import(context.Background(), f)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Total != 3 || res.Created != 1 || res.Updated != 1 || res.NgCount != 1 {
		t.Errorf("Import() = %+v", res)
	}
	if res.Results[2].Ok || res.Results[2].Error == nil {
		t.Errorf("row 3 = %+v, want error", res.Results[2])
	}
	if n := testutil.Count(t, conn, `SELECT COUNT(*) FROM books WHERE title = 'Dune' AND inventory = 5`); n != 1 {
		t.Errorf("Dune not updated")
	}
}

func TestParseCatalogRejectsUnknownFields(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("books:\n  - title: X\n    price: 3\n"))
	if err == nil {
		t.Fatal("ParseCatalog() error = nil, want unknown field error")
	}
}

func TestHandlers(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	tokens := auth.NewTokens([]byte("secret"), time.Minute, time.Hour)
	staff, _ := tokens.IssuePair(&auth.User{ID: 1, Email: "staff@test.com", IsStaff: true})
	user, _ := tokens.IssuePair(&auth.User{ID: 2, Email: "user@test.com"})

	r := gin.New()
	RegisterRoutes(r.Group("/api"), svc, tokens)

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	payload := `{"title":"Dune","author":"Herbert","cover":"HARD","inventory":1,"daily_fee":"1.50"}`

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"Given no token When creating Then 401", http.MethodPost, "/api/books/", "", payload, http.StatusUnauthorized},
		{"Given a non-staff token When creating Then 403", http.MethodPost, "/api/books/", user.Access, payload, http.StatusForbidden},
		{"Given a staff token When creating Then 201", http.MethodPost, "/api/books/", staff.Access, payload, http.StatusCreated},
		{"Given anyone When listing Then 200", http.MethodGet, "/api/books/", "", "", http.StatusOK},
		{"Given anyone When retrieving Then 200", http.MethodGet, "/api/books/1/", "", "", http.StatusOK},
		{"Given a bad id When retrieving Then 400", http.MethodGet, "/api/books/abc/", "", "", http.StatusBadRequest},
		{"Given a missing book When retrieving Then 404", http.MethodGet, "/api/books/99/", "", "", http.StatusNotFound},
		{"Given a non-staff token When deleting Then 403", http.MethodDelete, "/api/books/1/", user.Access, "", http.StatusForbidden},
		{"Given a staff token When deleting Then 204", http.MethodDelete, "/api/books/1/", staff.Access, "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListShape(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := NewService(conn)
	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		testutil.SeedBook(t, conn, title, 1, "1.00")
	}
	testutil.SeedBook(t, conn, "Out", 0, "1.00")

	r := gin.New()
	RegisterRoutes(r.Group("/api"), svc, auth.NewTokens([]byte("s"), time.Minute, time.Hour))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books/?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Items      []BookResponse `json:"items"`
		Total      int64          `json:"total"`
		NextOffset int            `json:"next_offset"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) != 2 || body.Total != 4 || body.NextOffset != 2 {
		t.Errorf("list = %+v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books/?title=ou", nil))
	body.Items = nil
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Items) != 1 || body.Items[0].IsAvailable {
		t.Errorf("filtered = %+v", body.Items)
	}
}
