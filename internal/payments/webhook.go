package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"LIBRA-backend/internal/checkout"
)

const EventCheckoutCompleted = "checkout.session.completed"

var ErrMalformedEvent = errors.New("malformed webhook payload")

type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
	// Now はテストで差し替える
	Now func() time.Time
}

func (c WebhookConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type sessionObject struct {
	ID string `json:"id"`
}

// HandleWebhook は署名検証 → イベント解釈 → 台帳更新。
// 署名不正と壊れたペイロードは状態に触れる前に弾く（checkout.ErrInvalidSignature / ErrMalformedEvent）。
// 未知のイベント種別・未知の session・既に PAID はすべて nil（200 で受領）。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhook.Secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", checkout.ErrInvalidSignature)
	}
	if err := checkout.VerifySignature(payload, signature, s.webhook.Secret, s.webhook.Tolerance, s.webhook.now()); err != nil {
		return err
	}

	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		var obj sessionObject
		if len(ev.Data.Object) == 0 {
			return fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
		}
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if obj.ID == "" {
			return fmt.Errorf("%w: missing session id", ErrMalformedEvent)
		}
		_, err := s.CompleteSession(ctx, obj.ID)
		return err
	default:
		return nil
	}
}
