package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// Stop gracefully shuts down the engine. Pending bookkeeping is flushed
// before in-flight loop executions are waited on
func (e *Engine) Stop() error {
	e.queue.Flush()
	e.cancel()
	defer e.consumer.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.saveEngineSnapshot()
		slog.Info("Engine stopped")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

func (e *Engine) saveEngineSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.engineExec.SaveSnapshot(ctx, events.EngineKey); err != nil {
		slog.Error("Failed to save engine snapshot", log.Error(err))
		return
	}
	slog.Info("Engine snapshot saved")
}
