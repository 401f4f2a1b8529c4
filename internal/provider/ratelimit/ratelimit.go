package ratelimit

import (
    "context"
    "sync"
    "time"
)

// FixedWindow enforces a per-minute call budget with a fixed 60s window:
// the counter resets when the window ages out, and a call that would exceed
// the budget blocks until the window expires (plus one second of slack).
//
// This is deliberately not a sliding window or token bucket: a burst at the
// boundary of two windows can briefly exceed the nominal rate. Vendor free
// tiers meter the same way, so the imprecision is acceptable and kept.
type FixedWindow struct {
    callsPerMinute int

    mu          sync.Mutex
    callCount   int
    windowStart time.Time

    now   func() time.Time
    sleep func(context.Context, time.Duration) error
}

func NewFixedWindow(callsPerMinute int) *FixedWindow {
    return &FixedWindow{
        callsPerMinute: callsPerMinute,
        now:            time.Now,
        sleep:          sleepCtx,
    }
}

// Wait accounts for one call, blocking first if the current window's budget
// is exhausted. Returns early with the context error on cancellation.
func (w *FixedWindow) Wait(ctx context.Context) error {
    if w.callsPerMinute <= 0 {
        return nil
    }
    w.mu.Lock()
    defer w.mu.Unlock()

    now := w.now()
    if w.windowStart.IsZero() || now.Sub(w.windowStart) > time.Minute {
        w.windowStart = now
        w.callCount = 1
        return nil
    }
    if w.callCount < w.callsPerMinute {
        w.callCount++
        return nil
    }

    wait := time.Minute - now.Sub(w.windowStart) + time.Second
    if err := w.sleep(ctx, wait); err != nil {
        return err
    }
    w.windowStart = w.now()
    w.callCount = 1
    return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
