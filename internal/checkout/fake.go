package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway は開発環境（payments.provider: fake）とテストで使う
type FakeGateway struct {
	BaseURL string

	mu       sync.Mutex
	fail     error
	requests []SessionRequest
}

func NewFakeGateway(baseURL string) *FakeGateway {
	return &FakeGateway{BaseURL: baseURL}
}

// FailWith を設定すると以降の呼び出しは ErrProvider でラップして失敗する。nil で解除。
func (g *FakeGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

func (g *FakeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fail != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, g.fail)
	}
	g.requests = append(g.requests, req)

	id := "cs_fake_" + uuid.NewString()
	return &Session{ID: id, URL: g.BaseURL + "/pay/" + id}, nil
}

// Requests は成功した呼び出しの控え
func (g *FakeGateway) Requests() []SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SessionRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
