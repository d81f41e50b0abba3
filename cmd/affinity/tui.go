package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/config"
	"github.com/mattjoyce/affinity/internal/events"
	"github.com/mattjoyce/affinity/internal/log"
	"github.com/mattjoyce/affinity/internal/tui"
)

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory (defaults when empty)")
	logFile := fs.String("log-file", "", "Write logs here; the terminal belongs to the UI")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	return runTUIWithConfig(cfg, *logFile)
}

func runTUIWithConfig(cfg *config.Config, logFile string) int {
	var logOut io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	log.SetupWriter(logOut, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := events.NewHub(cfg.Owner.EventBuffer)
	host := tui.NewHost(
		tui.WithDesignMode(cfg.Owner.DesignMode),
		tui.WithErrorHandler(events.FailureReporter(hub, cfg.Owner.Name)),
	)
	d := affinity.New(host, affinity.WithObserver(events.NewObserver(hub, cfg.Owner.PublishDispatches)))

	var wg sync.WaitGroup
	_, closeJournal, err := openJournal(ctx, cfg, hub, &wg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer closeJournal()

	board := tui.NewBoard(10)
	monitor := tui.NewMonitor(d, host, board, hub)
	defer monitor.Close()

	p := tea.NewProgram(host.Wrap(monitor), tea.WithAltScreen(), tea.WithContext(ctx))
	host.Attach(p)

	for i := range producerCount(cfg, config.OwnerTUI) {
		name := fmt.Sprintf("producer-%d", i+1)
		wg.Go(func() {
			produce(ctx, d, name, cfg.Demo, func(seq int) error {
				board.Add(name, fmt.Sprintf("%s update #%d", name, seq))
				return nil
			}, logger)
		})
	}

	_, runErr := p.Run()
	cancel()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", runErr)
		return 1
	}
	return 0
}
