package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const recoverTimeout = 30 * time.Second

// Start begins processing states, loops, and events
func (e *Engine) Start() error {
	slog.Info("Engine starting")

	e.queue.Start()
	go e.scheduler.Run(e.ctx)
	go e.eventLoop()

	ctx, cancel := context.WithTimeout(e.ctx, recoverTimeout)
	defer cancel()

	if err := e.RecoverStates(ctx); err != nil {
		e.queue.Cancel()
		return fmt.Errorf("%w: %w", ErrRecoverStates, err)
	}
	return nil
}

// Now returns the current wall time from the engine's configured clock
func (e *Engine) Now() time.Time {
	return e.clock()
}
