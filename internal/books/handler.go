package books

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

// RegisterRoutes: 参照は公開、書き込みはスタッフのみ
func RegisterRoutes(r gin.IRouter, svc *Service, tokens *auth.Tokens) {
	h := &Handler{svc: svc}

	r.GET("/books/", h.ListBooks)
	r.GET("/books/:id/", h.GetBook)

	staff := r.Group("/books", auth.RequireAuth(tokens), auth.RequireStaff())
	staff.POST("/", h.CreateBook)
	staff.PUT("/:id/", h.ReplaceBook)
	staff.PATCH("/:id/", h.PatchBook)
	staff.DELETE("/:id/", h.DeleteBook)
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.Invalid("invalid json")))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.Header("Location", "/api/books/"+strconv.FormatInt(res.ID, 10)+"/")
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, ToResponse(b))
}

func (h *Handler) ListBooks(c *gin.Context) {
	var q BookQuery
	if v := c.Query("title"); v != "" {
		q.Title = &v
	}
	p := paging.FromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), p, q)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}

	out := make([]BookResponse, 0, len(items))
	for i := range items {
		out = append(out, ToResponse(&items[i]))
	}
	c.JSON(http.StatusOK, paging.NewResult(out, total, p))
}

func (h *Handler) ReplaceBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.Invalid("invalid json")))
		return
	}
	res, err := h.svc.Replace(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PatchBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.Invalid("invalid json")))
		return
	}
	res, err := h.svc.Patch(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== helpers =====

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.Invalid("id must be a positive number")))
		return 0, false
	}
	return id, true
}
