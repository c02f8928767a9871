package borrowings

import (
	"context"
	"log"
	"time"

	"LIBRA-backend/internal/notify"
)

// Sweeper は延滞中の貸出をまとめて通知する（長ければ分割）。DB は読むだけ。
type Sweeper struct {
	store    *Store
	notifier notify.Notifier
	clock    Clock
}

func NewSweeper(store *Store, notifier notify.Notifier) *Sweeper {
	return &Sweeper{store: store, notifier: notifier, clock: realClock{}}
}

// Run は1回分のスキャン。通知した件数を返す（0件なら通知しない）。
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	today := dateOf(s.clock.Now())
	items, err := overdueItems(ctx, s.store, today)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		log.Printf("[INFO] overdue sweep: nothing overdue as of %s", today.Format(DateLayout))
		return 0, nil
	}
	for _, msg := range notify.OverdueSummary(items, today) {
		s.notifier.Enqueue(msg)
	}
	log.Printf("[INFO] overdue sweep: %d borrowings overdue", len(items))
	return len(items), nil
}

// Start は起動直後に1回、その後 interval ごとに Run する。ctx が終われば止まる。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		s.runLogged(ctx)
		if interval <= 0 {
			log.Printf("[WARN] overdue sweep: interval %s is not positive, periodic sweep disabled", interval)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[ERROR] overdue sweep: %v", err)
	}
}
