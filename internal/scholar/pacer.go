package scholar

import (
	"context"
	"sync"
	"time"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
)

const (
	// DefaultMinInterval spaces consecutive Scholar requests.
	DefaultMinInterval = 2 * time.Second
	// MinIntervalFloor is the smallest interval a Pacer accepts.
	MinIntervalFloor = 500 * time.Millisecond
)

// Pacer enforces a minimum delay between successive requests. It is safe for
// concurrent use; callers queue behind the mutex so requests never overlap.
// A Pacer belongs to a single run.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	requests int

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a Pacer with the given minimum interval, raised to
// MinIntervalFloor when lower.
func NewPacer(interval time.Duration) *Pacer {
	if interval < MinIntervalFloor {
		interval = MinIntervalFloor
	}
	return &Pacer{
		interval: interval,
		now:      time.Now,
		wait:     utils.WaitFor,
	}
}

// Wait blocks until the next request may be sent.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if d := p.interval - p.now().Sub(p.last); d > 0 {
			if err := p.wait(ctx, d); err != nil {
				return err
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	p.last = p.now()
	p.requests++
	return nil
}

// Requests reports how many requests have been released.
func (p *Pacer) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}
