package autotrigger

import (
	"context"
	"fmt"
	"time"

	"github.com/wfce/gmgn-filter/internal/model"
)

// DefaultTimeout bounds a single action.
const DefaultTimeout = 5 * time.Second

// lateResultGrace is how long Invoke still waits for a result once the
// deadline has passed.
const lateResultGrace = 250 * time.Millisecond

// DefaultCooldown is how long the global lock is held after an action
// completes.
const DefaultCooldown = time.Second

// Invoke runs exec for target under a timeout. A result arriving within
// lateResultGrace after the deadline still counts, so a nil result is a
// success even when the deadline passed while the action completed. An
// executor that ignores its context beyond that is abandoned and its
// result discarded. A panicking executor is reported as an error.
func Invoke(ctx context.Context, exec Executor, target model.Target, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("executor panic: %v", r)
			}
		}()
		done <- exec.Execute(ctx, target)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		grace := time.NewTimer(lateResultGrace)
		defer grace.Stop()
		select {
		case err = <-done:
		case <-grace.C:
			err = ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("execute %s: %w", target.Identity, err)
	}
	return nil
}
