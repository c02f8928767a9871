package notify

import "sync"

// Recorder は Enqueue された通知を覚えておくだけの Notifier（テスト用）
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Enqueue(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Kinds は記録順の Kind 一覧
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Kind)
	}
	return out
}
