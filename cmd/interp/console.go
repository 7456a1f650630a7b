package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chalkboard/interp/internal/config"
	"github.com/chalkboard/interp/internal/history"
	"github.com/chalkboard/interp/internal/tui"
)

const closeTimeout = 10 * time.Second

func newConsoleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the full-screen interpreter console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runConsole(cmd.Context())
		},
	}
}

func (a *app) runConsole(ctx context.Context) error {
	manager, err := a.newManager()
	if err != nil {
		return err
	}
	logger := a.logger.With("session_id", manager.ID())

	store := a.historyStore()
	if store != nil {
		entries, loadErr := store.Load()
		if loadErr != nil {
			logger.Warn("history not loaded", "path", store.Path(), "err", loadErr)
		} else {
			manager.SeedHistory(entries)
		}
	}
	saveHistory := func() {
		if store == nil {
			return
		}
		if saveErr := store.Save(manager.History()); saveErr != nil {
			logger.Warn("history not saved", "path", store.Path(), "err", saveErr)
		}
	}

	consoleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	console := tui.NewConsole(manager, tui.Options{
		Context:         consoleCtx,
		EchoPrompt:      a.cfg.EchoPrompt,
		TranscriptLimit: a.cfg.TranscriptLimit,
		AutoStart:       true,
		OnSubmit:        func(string) { saveHistory() },
	})
	defer console.Close()

	program := tea.NewProgram(console, tea.WithAltScreen(), tea.WithContext(consoleCtx))
	if paths, pathErr := config.Paths(); pathErr == nil {
		watchErr := config.Watch(consoleCtx, paths, config.WatchOptions{
			OnError: func(err error) { logger.Warn("config watch error", "err", err) },
		}, func(path string) {
			logger.Info("config file changed", "path", path)
			program.Send(tui.ConfigChangedMsg{Path: path})
		})
		if watchErr != nil {
			logger.Warn("config watch disabled", "err", watchErr)
		}
	}

	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	closeErr := manager.Close(closeCtx)
	saveHistory()

	if runErr != nil {
		return fmt.Errorf("run console: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("stop interpreter: %w", closeErr)
	}
	return nil
}

func (a *app) historyStore() *history.FileStore {
	if a.cfg.HistoryFile == "" {
		return nil
	}
	return history.NewFileStore(a.cfg.HistoryFile)
}
