package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/books"
	"LIBRA-backend/internal/borrowings"
	"LIBRA-backend/internal/checkout"
	"LIBRA-backend/internal/notify"
	"LIBRA-backend/internal/payments"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/config"
	"LIBRA-backend/internal/platform/db"
)

// app は設定から組み立てた各コンポーネント一式
type app struct {
	cfg        *config.Config
	conn       *db.Conn
	tokens     *auth.Tokens
	gateway    checkout.Gateway
	hub        *notify.Hub
	dispatcher *notify.Dispatcher
	auth       *auth.Service
	books      *books.Service
	payments   *payments.Service
	borrowings *borrowings.Service
	sweeper    *borrowings.Sweeper
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if conn.Driver == db.DriverSQLite {
		if err := db.Bootstrap(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	log.Printf("[INFO] connected to DB (%s)", conn.Driver)
	return buildApp(ctx, cfg, conn, newGateway(cfg))
}

// buildApp は接続済みの DB とゲートウェイから残りを組み立てる（テストからも使う）
func buildApp(ctx context.Context, cfg *config.Config, conn *db.Conn, gateway checkout.Gateway) (*app, error) {
	multiplier, err := cfg.FineMultiplier()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, conn: conn, gateway: gateway}
	a.tokens = auth.NewTokens([]byte(cfg.Auth.Secret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	a.hub = notify.NewHub()
	go a.hub.Run(ctx)

	senders := []notify.Sender{a.hub}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		senders = append(senders, notify.NewTelegramSender(tg.BotToken, tg.ChatID, tg.APIBase))
		log.Printf("[INFO] notifications: telegram chat %s", tg.ChatID)
	} else {
		senders = append(senders, notify.LogSender{})
		log.Printf("[WARN] notifications: telegram not configured, logging only")
	}
	n := cfg.Notifications
	a.dispatcher = notify.NewDispatcher(notify.DispatcherOptions{
		Workers:   n.Workers,
		QueueSize: n.QueueSize,
		Policy: notify.RetryPolicy{
			MaxAttempts: n.MaxAttempts,
			Backoff:     notify.ExponentialBackoff(n.BaseBackoff, n.MaxBackoff),
		},
	}, senders...)

	a.auth = auth.NewService(conn, a.tokens)
	a.books = books.NewService(conn)
	a.payments = payments.NewService(conn, a.dispatcher, payments.WebhookConfig{
		Secret:    cfg.Payments.Stripe.WebhookSecret,
		Tolerance: cfg.Payments.Stripe.WebhookTolerance,
	})
	a.borrowings = borrowings.NewService(conn, a.books.Store(), a.payments.Store(), gateway, a.dispatcher, borrowings.Config{
		FineMultiplier: multiplier,
		Currency:       cfg.Payments.Currency,
	})
	a.sweeper = borrowings.NewSweeper(a.borrowings.Store(), a.dispatcher)
	return a, nil
}

func newGateway(cfg *config.Config) checkout.Gateway {
	p := cfg.Payments
	if p.Provider == "fake" {
		log.Printf("[WARN] payments: using fake checkout provider")
		return checkout.NewFakeGateway("https://checkout.invalid")
	}
	return checkout.NewStripeGateway(checkout.StripeConfig{
		APIKey:     p.Stripe.APIKey,
		APIBase:    p.Stripe.APIBase,
		SuccessURL: p.SuccessURL,
		CancelURL:  p.CancelURL,
	})
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if a.cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		origins := a.cfg.Server.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := a.conn.PingContext(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	auth.RegisterRoutes(api, a.auth, a.tokens)
	books.RegisterRoutes(api, a.books, a.tokens)
	borrowings.RegisterRoutes(api, a.borrowings, a.tokens)
	payments.RegisterRoutes(api, a.payments, a.tokens)
	notify.RegisterRoutes(api, a.hub, a.tokens)
	return r
}

// close は未送信の通知を流し切ってから DB を閉じる
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.dispatcher.Close(ctx); err != nil {
		log.Printf("[WARN] notifications: %v (delivered=%d dropped=%d)", err, a.dispatcher.Delivered(), a.dispatcher.Dropped())
	}
	if err := a.conn.Close(); err != nil {
		log.Printf("[WARN] close db: %v", err)
	}
}
