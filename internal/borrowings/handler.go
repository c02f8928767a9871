package borrowings

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, tokens *auth.Tokens) {
	h := &Handler{svc: svc}

	g := r.Group("/borrowings", auth.RequireAuth(tokens))
	g.GET("/", h.ListBorrowings)
	g.POST("/", h.CreateBorrowing)
	g.GET("/overdue/export", auth.RequireStaff(), h.ExportOverdue)
	g.GET("/:id/", h.GetBorrowing)
	g.POST("/:id/return/", h.ReturnBorrowing)
}

func (h *Handler) CreateBorrowing(c *gin.Context) {
	var req CreateBorrowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.Invalid("invalid json")))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), auth.MustPrincipal(c), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.Header("Location", "/api/borrowings/"+res.ID+"/")
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ReturnBorrowing(c *gin.Context) {
	res, err := h.svc.Return(c.Request.Context(), auth.MustPrincipal(c), c.Param("id"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetBorrowing(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.MustPrincipal(c), c.Param("id"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBorrowings(c *gin.Context) {
	var f Filter
	if v := c.Query("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, apperr.Body(apperr.InvalidField("user_id", "user_id must be an integer")))
			return
		}
		f.UserID = &uid
	}
	if v := c.Query("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apperr.Body(apperr.InvalidField("is_active", "is_active must be true or false")))
			return
		}
		f.Active = &active
	}

	p := paging.FromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), auth.MustPrincipal(c), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, paging.NewResult(items, total, p))
}

// GET /borrowings/overdue/export?encoding=utf8|sjis
func (h *Handler) ExportOverdue(c *gin.Context) {
	enc := c.DefaultQuery("encoding", EncodingUTF8)

	var buf bytes.Buffer
	if err := h.svc.ExportOverdue(c.Request.Context(), &buf, enc); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	filename := "overdue-" + dateOf(h.svc.clock.Now()).Format(DateLayout) + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, ContentType(enc), buf.Bytes())
}
