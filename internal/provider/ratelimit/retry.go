package ratelimit

import (
    "context"
    "time"
)

// injectable for tests
var retrySleep = sleepCtx

// Do runs fn up to attempts times, sleeping delay between attempts.
// The last error is returned when every attempt fails. attempts <= 0 is
// treated as a single attempt.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
    if attempts <= 0 {
        attempts = 1
    }
    var err error
    for i := 0; i < attempts; i++ {
        if i > 0 && delay > 0 {
            if serr := retrySleep(ctx, delay); serr != nil {
                return serr
            }
        }
        if err = fn(); err == nil {
            return nil
        }
        if ctx.Err() != nil {
            return err
        }
    }
    return err
}
