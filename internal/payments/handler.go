package payments

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/checkout"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/paging"
)

// webhook のボディ上限
const maxWebhookBody = 1 << 16

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, tokens *auth.Tokens) {
	h := &Handler{svc: svc}

	// public
	r.GET("/payments/success/", h.Success)
	r.GET("/payments/cancel/", h.Cancel)
	r.POST("/payments/webhook/", h.Webhook)

	g := r.Group("/payments", auth.RequireAuth(tokens))
	g.GET("/", h.ListPayments)
	g.GET("/:id/", h.GetPayment)
}

func (h *Handler) ListPayments(c *gin.Context) {
	p := paging.FromQuery(c)
	q := ListQuery{Status: c.Query("status"), Type: c.Query("type")}
	items, total, err := h.svc.List(c.Request.Context(), auth.MustPrincipal(c), q, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, paging.NewResult(items, total, p))
}

func (h *Handler) GetPayment(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.MustPrincipal(c), c.Param("id"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Success(c *gin.Context) {
	res, err := h.svc.SessionStatus(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Cancel は状態を変えない。Checkout Session は24時間有効なので後から支払える。
func (h *Handler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Detail: "Payment was cancelled"})
}

func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	err = h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader(checkout.SignatureHeader))
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, checkout.ErrInvalidSignature), errors.Is(err, ErrMalformedEvent):
		log.Printf("[WARN] webhook rejected: %v", err)
		c.Status(http.StatusBadRequest)
	default:
		// DB 障害など。5xx ならプロバイダが再送してくれる
		log.Printf("[ERROR] webhook failed: %v", err)
		c.Status(http.StatusInternalServerError)
	}
}
