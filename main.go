package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"whatube/internal/config"
	"whatube/internal/session"
	"whatube/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	logPath := flag.String("log", os.Getenv("WHATUBE_LOG"), "File to append logs to (the terminal belongs to the UI)")
	flag.Parse()

	cfg, err := config.Load(false)
	if err != nil {
		return err
	}

	// The UI owns the terminal, so logging goes to a file or nowhere.
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	sess := session.New(ctx, cfg)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	program := tea.NewProgram(tui.New(ctx, sess, sess.Roster()), tea.WithAltScreen())

	g, gCtx := errgroup.WithContext(ctx)
	uiDone := make(chan struct{})

	g.Go(func() error {
		defer close(uiDone)
		_, err := program.Run()
		return err
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			program.Quit()
		case <-uiDone:
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
