package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/api"
	"github.com/mattjoyce/affinity/internal/config"
	"github.com/mattjoyce/affinity/internal/events"
	"github.com/mattjoyce/affinity/internal/journal"
	"github.com/mattjoyce/affinity/internal/lock"
	"github.com/mattjoyce/affinity/internal/log"
	"github.com/mattjoyce/affinity/internal/ownerloop"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory (defaults when empty)")
	duration := fs.Duration("duration", 0, "Stop after this long; 0 runs until interrupted")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Owner.Kind == config.OwnerTUI {
		return runTUIWithConfig(cfg, "")
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("affinity starting", "version", version, "config", *configPath, "owner", cfg.Owner.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("affinity stopped with error", "error", err)
		return 1
	}
	logger.Info("affinity stopped")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// serve runs the owner loop on the calling goroutine until ctx is done,
// with producers, journal, and API around it.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := events.NewHub(cfg.Owner.EventBuffer)
	loop := ownerloop.New(
		ownerloop.WithName(cfg.Owner.Name),
		ownerloop.WithLockOSThread(cfg.Owner.LockOSThread),
		ownerloop.WithErrorHandler(events.FailureReporter(hub, cfg.Owner.Name)),
	)
	d := affinity.New(
		ownerloop.Host{DesignModeEnabled: cfg.Owner.DesignMode},
		affinity.WithObserver(events.NewObserver(hub, cfg.Owner.PublishDispatches)),
	)

	var wg sync.WaitGroup

	j, closeJournal, err := openJournal(ctx, cfg, hub, &wg)
	if err != nil {
		return err
	}
	defer closeJournal()

	var apiErr error
	if cfg.API.Enabled {
		opts := []api.Option{api.WithOwnerStats(func() any { return loop.Stats() })}
		if j != nil {
			opts = append(opts, api.WithFailures(j))
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.Token}, d, hub, log.WithComponent("api"), opts...)
		wg.Go(func() {
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				apiErr = err
				cancel()
			}
		})
	}

	// The first work item binds the dispatcher from the owner itself.
	if err := loop.Post(d.Initialize); err != nil {
		return err
	}

	// Owner-affine: only touched by dispatched work, or after the loop ends.
	counts := make(map[string]int)
	for i := range producerCount(cfg, config.OwnerLoop) {
		name := fmt.Sprintf("producer-%d", i+1)
		wg.Go(func() {
			produce(ctx, d, name, cfg.Demo, func(int) error {
				counts[name]++
				return nil
			}, logger)
		})
	}

	runErr := loop.Run(ctx)
	cancel()
	wg.Wait()

	logger.Info("owner loop summary",
		"dispatcher", d.Stats(),
		"loop", loop.Stats(),
		"updates", counts,
	)

	if apiErr != nil {
		return apiErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	return nil
}

// openJournal opens the failure journal when enabled and starts following
// hub failures. The returned cleanup must run after wg has been waited on.
func openJournal(ctx context.Context, cfg *config.Config, hub *events.Hub, wg *sync.WaitGroup) (*journal.Journal, func(), error) {
	if !cfg.Journal.Enabled {
		return nil, func() {}, nil
	}

	pidLock, err := lock.AcquirePIDLock(cfg.Journal.Path + ".lock")
	if err != nil {
		return nil, nil, fmt.Errorf("journal %s: %w", cfg.Journal.Path, err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	j, err := journal.Open(openCtx, cfg.Journal.Path)
	if err != nil {
		_ = pidLock.Release()
		return nil, nil, err
	}
	wg.Go(func() { j.Follow(ctx, hub) })

	return j, func() {
		_ = j.Close()
		_ = pidLock.Release()
	}, nil
}
