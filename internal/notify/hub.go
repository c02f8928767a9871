package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"LIBRA-backend/internal/platform/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	clientBuf  = 16
)

var ErrHubClosed = errors.New("notify: hub closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 認証は ?token= で済ませている
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

type wireMessage struct {
	Kind   Kind      `json:"kind"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Hub は接続中のスタッフ全員へ通知を流す。Sender を満たすので Dispatcher に登録できる。
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run は ctx が切れるまでイベントループを回す
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// 詰まっているクライアントは切る
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(wireMessage{Kind: msg.Kind, Text: msg.Text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
		return nil
	case <-h.done:
		return Permanent(ErrHubClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler は RequireAuthQuery + RequireStaff の後ろに置く
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int64
		if p, ok := auth.PrincipalFrom(c); ok {
			userID = p.UserID
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WARN] notify: websocket upgrade failed: %v", err)
			return
		}

		cl := &client{userID: userID, conn: conn, send: make(chan []byte, clientBuf)}
		select {
		case h.register <- cl:
		case <-h.done:
			_ = conn.Close()
			return
		}
		log.Printf("[INFO] notify: websocket connected user=%d", userID)

		go h.writePump(cl)
		h.readPump(cl)
	}
}

// readPump はクライアントからの入力を読み捨て、切断を検知する
func (h *Hub) readPump(cl *client) {
	defer func() {
		select {
		case h.unregister <- cl:
		case <-h.done:
		}
		_ = cl.conn.Close()
		log.Printf("[INFO] notify: websocket disconnected user=%d", cl.userID)
	}()

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func RegisterRoutes(r gin.IRouter, hub *Hub, tokens *auth.Tokens) {
	r.GET("/notifications/ws/", auth.RequireAuthQuery(tokens), auth.RequireStaff(), hub.Handler())
}
