package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock is an in-memory repository.PhaseClock. Timers are only recorded;
// the scheduler's poller notices expiry by itself.
type Clock struct {
	mu     sync.Mutex
	timers map[string]time.Time
	active map[string]bool
}

// NewClock creates an empty Clock.
func NewClock() *Clock {
	return &Clock{
		timers: make(map[string]time.Time),
		active: make(map[string]bool),
	}
}

func (c *Clock) SetTimer(_ context.Context, code string, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[code] = deadline
	return nil
}

func (c *Clock) ClearTimer(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, code)
	return nil
}

func (c *Clock) MarkActive(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[code] = true
	return nil
}

func (c *Clock) MarkIdle(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, code)
	return nil
}

// ActiveSessions returns active codes in sorted order.
func (c *Clock) ActiveSessions(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, 0, len(c.active))
	for code := range c.active {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Timer returns the armed deadline for code.
func (c *Clock) Timer(code string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[code]
	return t, ok
}
