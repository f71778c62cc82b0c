package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-oxitop/internal/pool"
	"github.com/arloliu/go-oxitop/internal/queue"
)

// streamReader serves deadline-bound reads from a ByteStream filled by
// another goroutine.
type streamReader struct {
	name    string
	in      *queue.ByteStream
	timeout time.Duration
	done    <-chan struct{}

	mu       sync.Mutex
	deadline time.Time
}

func (r *streamReader) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	r.deadline = t
	r.mu.Unlock()

	return nil
}

func (r *streamReader) readDeadline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deadline.IsZero() {
		return time.Now().Add(r.timeout)
	}

	return r.deadline
}

func (r *streamReader) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	deadline := r.readDeadline()
	for {
		n, closed := r.in.Read(p)
		if n > 0 {
			return n, nil
		}
		if closed {
			return 0, fmt.Errorf("%s: %w", r.name, ErrClosed)
		}
		select {
		case <-r.done:
			return 0, fmt.Errorf("%s: %w", r.name, ErrClosed)
		default:
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, fmt.Errorf("%s: %w", r.name, ErrTimeout)
		}

		t := pool.GetTimer(wait)
		select {
		case <-r.in.Notify():
		case <-r.done:
		case <-t.C:
		}
		pool.PutTimer(t)
	}
}
