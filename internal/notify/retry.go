package notify

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy は Dispatcher に明示的に渡す再送方針
type RetryPolicy struct {
	MaxAttempts int
	// Backoff(n) は n 回目の失敗の後に待つ時間
	Backoff func(attempt int) time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// ExponentialBackoff: base, 2*base, 4*base, ... を max で頭打ち
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			if d > math.MaxInt64/2 {
				return time.Duration(math.MaxInt64)
			}
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent で包んだエラーは再送しない
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
