package services

import (
	"context"
	"sync"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
)

// Clock abstracts time so the request window can be driven by tests
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// RateWindow is a sliding-window limiter shared by every outbound fetch.
// At most limit requests are admitted within any trailing window.
type RateWindow struct {
	clock  Clock
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time // oldest first
}

// NewRateWindow creates a limiter admitting limit requests per window
func NewRateWindow(limit int, window time.Duration, clock Clock) *RateWindow {
	if limit <= 0 {
		limit = 18
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if clock == nil {
		clock = realClock{}
	}
	return &RateWindow{
		clock:  clock,
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
	}
}

// Acquire blocks the caller until a slot is free, records the request and
// returns its timestamp. Only the calling goroutine sleeps.
func (w *RateWindow) Acquire(ctx context.Context) (time.Time, error) {
	for {
		stamp, wait, ok := w.tryAcquire()
		if ok {
			return stamp, nil
		}
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return time.Time{}, err
		}
	}
}

// tryAcquire trims, checks and appends under one lock hold
func (w *RateWindow) tryAcquire() (time.Time, time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.trim(now)

	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		metrics.ProxyWindowOccupancy.Set(float64(len(w.stamps)))
		return now, 0, true
	}

	wait := w.window - now.Sub(w.stamps[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return time.Time{}, wait, false
}

func (w *RateWindow) trim(now time.Time) {
	expired := 0
	for expired < len(w.stamps) && now.Sub(w.stamps[expired]) >= w.window {
		expired++
	}
	if expired > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[expired:]...)
	}
}

// Occupancy returns requests in the current window and the limit
func (w *RateWindow) Occupancy() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(w.clock.Now())
	return len(w.stamps), w.limit
}

// Window returns the trailing window length
func (w *RateWindow) Window() time.Duration {
	return w.window
}
