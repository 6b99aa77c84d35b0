package embedding

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// sessionGuard serializes access to a runtime session whose calls cannot be
// interrupted. Waiting for the session and waiting for a call to finish both
// honour ctx; a call that is abandoned keeps the guard until it returns.
type sessionGuard struct {
	sem *semaphore.Weighted
}

func newSessionGuard() *sessionGuard {
	return &sessionGuard{sem: semaphore.NewWeighted(1)}
}

// run executes fn while holding the guard. It returns ctx.Err() as soon as ctx
// is done, whether the caller is still queued or fn is already running. In the
// latter case fn keeps running in the background and owns everything it
// allocated.
func (g *sessionGuard) run(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Acquire may succeed on a context that is already done.
	if err := ctx.Err(); err != nil {
		g.unlock()
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer g.unlock()
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lock waits for any running call, ignoring cancellation. Close uses it.
func (g *sessionGuard) lock() {
	_ = g.sem.Acquire(context.Background(), 1)
}

func (g *sessionGuard) unlock() {
	g.sem.Release(1)
}
