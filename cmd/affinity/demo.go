package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/config"
	"github.com/mattjoyce/affinity/internal/ownerloop"
)

var errDemoFailure = errors.New("demo: simulated failure")

// produce dispatches one update per interval until ctx is done. update runs
// on the owner, so it may touch owner-affine state without locking.
func produce(ctx context.Context, d *affinity.Dispatcher, name string, cfg config.DemoConfig, update func(seq int) error, logger *slog.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := d.Dispatch(func() error {
			if cfg.FailEvery > 0 && seq%cfg.FailEvery == 0 {
				return fmt.Errorf("%s update %d: %w", name, seq, errDemoFailure)
			}
			return update(seq)
		})
		switch {
		case err == nil:
		case errors.Is(err, affinity.ErrNotOnOwnerThread):
			// The owner has not bound the dispatcher yet; try again next tick.
			logger.Debug("owner not bound yet", "producer", name)
		case errors.Is(err, ownerloop.ErrLoopClosed):
			return
		default:
			logger.Warn("dispatch failed", "producer", name, "seq", seq, "error", err)
		}
	}
}

// producerCount limits producers in design mode, where work runs in place on
// the producer goroutine and the demo state has no lock. The loop owner gets
// one producer. The TUI gets none, since View reads the board on the event
// loop concurrently with any off-loop writer.
func producerCount(cfg *config.Config, kind string) int {
	if !cfg.Owner.DesignMode {
		return cfg.Demo.Producers
	}
	if kind == config.OwnerTUI {
		return 0
	}
	return min(cfg.Demo.Producers, 1)
}
