package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sender は1チャネルへの配信。失敗は Dispatcher が RetryPolicy に従って再送する。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc は関数を Sender として使うためのアダプタ
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Notifier はワークフロー側が依存するインターフェース。呼び出しはブロックしない。
type Notifier interface {
	Enqueue(msg Message)
}

// LogSender は Telegram 未設定の開発環境用
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("[INFO] notify(%s): %s", msg.Kind, msg.Text)
	return nil
}

type job struct {
	id     string
	sender Sender
	msg    Message
}

// Dispatcher は有界キュー + ワーカープール。
// Enqueue は Sender ごとに1ジョブを積み、キューが満杯なら捨ててログに残す。
type Dispatcher struct {
	policy  RetryPolicy
	senders []Sender
	timeout time.Duration

	queue chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	delivered atomic.Int64
	dropped   atomic.Int64
}

type DispatcherOptions struct {
	Workers   int
	QueueSize int
	Policy    RetryPolicy
	// SendTimeout は1回の Send に与える時間
	SendTimeout time.Duration
}

func NewDispatcher(opts DispatcherOptions, senders ...Sender) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		policy:  opts.Policy,
		senders: senders,
		timeout: opts.SendTimeout,
		queue:   make(chan job, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, s := range d.senders {
		j := job{id: uuid.NewString(), sender: s, msg: msg}
		if d.closed {
			d.dropped.Add(1)
			log.Printf("[WARN] notify: dispatcher closed, drop job=%s kind=%s", j.id, msg.Kind)
			continue
		}
		select {
		case d.queue <- j:
		default:
			d.dropped.Add(1)
			log.Printf("[WARN] notify: queue full, drop job=%s kind=%s", j.id, msg.Kind)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	max := d.policy.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		err := d.sendOnce(j)
		if err == nil {
			d.delivered.Add(1)
			return
		}
		if IsPermanent(err) {
			d.dropped.Add(1)
			log.Printf("[WARN] notify: drop job=%s kind=%s sender=%T, not retryable: %v",
				j.id, j.msg.Kind, j.sender, err)
			return
		}
		if attempt == max {
			d.dropped.Add(1)
			log.Printf("[WARN] notify: give up job=%s kind=%s sender=%T after %d attempts: %v",
				j.id, j.msg.Kind, j.sender, attempt, err)
			return
		}

		wait := d.policy.delay(attempt)
		log.Printf("[WARN] notify: job=%s sender=%T attempt %d/%d failed, retry in %s: %v",
			j.id, j.sender, attempt, max, wait, err)

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-d.ctx.Done():
			t.Stop()
			d.dropped.Add(1)
			log.Printf("[WARN] notify: shutdown, drop job=%s kind=%s", j.id, j.msg.Kind)
			return
		}
	}
}

func (d *Dispatcher) sendOnce(j job) (err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return j.sender.Send(ctx, j.msg)
}

// Close は新規受付を止め、キューに残ったジョブを配り切るまで待つ。
// ctx が先に切れたら再送待ちを打ち切って ctx.Err() を返す。
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }
func (d *Dispatcher) Dropped() int64   { return d.dropped.Load() }
