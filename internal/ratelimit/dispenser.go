package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Dispenser hands out request start times so that consecutive requests to the booking
// service are at least Spacing() apart, whichever goroutine issues them.
//
// All state lives behind one mutex: next is a monotonic watermark of the earliest instant
// the following request may start. Reserve claims the current watermark and pushes it
// forward, so two callers can never receive the same instant.
type Dispenser struct {
	mu      sync.Mutex
	next    time.Time
	spacing time.Duration
	base    time.Duration
	max     time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispenser)

// WithClock replaces time.Now and the context-aware sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispenser) {
		d.now = now
		d.sleep = sleep
	}
}

// New returns a dispenser spacing requests by base. Penalize may widen spacing up to max;
// a max below base is raised to base.
func New(base, max time.Duration, opts ...Option) *Dispenser {
	if base < 0 {
		base = 0
	}
	if max < base {
		max = base
	}
	d := &Dispenser{
		spacing: base,
		base:    base,
		max:     max,
		now:     time.Now,
		sleep:   Sleep,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Reserve claims the next request slot and returns the instant it may start.
func (d *Dispenser) Reserve() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	at := d.now()
	if d.next.After(at) {
		at = d.next
	}
	d.next = at.Add(d.spacing)
	return at
}

// Wait reserves a slot and blocks until it arrives or ctx is done.
func (d *Dispenser) Wait(ctx context.Context) error {
	at := d.Reserve()
	delay := at.Sub(d.now())
	if delay <= 0 {
		return ctx.Err()
	}
	return d.sleep(ctx, delay)
}

// Penalize doubles the spacing after the service reported rate limiting.
func (d *Dispenser) Penalize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.spacing * 2
	if s == 0 {
		s = time.Second
	}
	if s > d.max {
		s = d.max
	}
	d.spacing = s
}

// Relax halves a widened spacing back toward the base.
func (d *Dispenser) Relax() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spacing <= d.base {
		return
	}
	s := d.spacing / 2
	if s < d.base {
		s = d.base
	}
	d.spacing = s
}

func (d *Dispenser) Spacing() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spacing
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
