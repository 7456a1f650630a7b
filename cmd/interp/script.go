package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/chalkboard/interp/internal/session"
	"github.com/chalkboard/interp/internal/state"
)

const defaultIdle = 2 * time.Second

// ErrScriptTimeout is returned when a script is still producing output at the deadline.
var ErrScriptTimeout = errors.New("script did not go idle before the timeout")

func newRunCommand(a *app) *cobra.Command {
	var (
		idle    time.Duration
		timeout time.Duration
		echo    bool
	)
	cmd := &cobra.Command{
		Use:   "run FILE|-",
		Short: "Run a script in a fresh interpreter and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.runScript(cmd.Context(), script, cmd.OutOrStdout(), scriptOptions{
				idle:    idle,
				timeout: timeout,
				echo:    echo,
			})
		},
	}
	cmd.Flags().DurationVar(&idle, "idle", defaultIdle, "stop after this long without output")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")
	cmd.Flags().BoolVar(&echo, "echo", false, "print the submitted command")
	return cmd
}

type scriptOptions struct {
	idle    time.Duration
	timeout time.Duration
	echo    bool
}

func readScript(arg string, stdin io.Reader) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}
		return string(data), nil
	}
	// #nosec G304 -- the script path is the user's own argument.
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

// runScript submits script as one command and prints Text events and artifact
// paths until the session has been quiet for opts.idle.
func (a *app) runScript(ctx context.Context, script string, out io.Writer, opts scriptOptions) error {
	raw := strings.TrimRight(script, "\r\n")
	if strings.TrimSpace(raw) == "" {
		return session.ErrEmptyCommand
	}
	if opts.idle <= 0 {
		opts.idle = defaultIdle
	}

	manager, err := a.newManager()
	if err != nil {
		return err
	}

	echoLine := a.cfg.EchoPrompt + raw
	activity := make(chan struct{}, 1)
	var (
		writeMu  sync.Mutex
		writeErr error
	)
	emit := func(format string, args ...any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(out, format, args...)
	}
	unsubscribe := manager.Subscribe(func(event session.Event) {
		switch event.Kind {
		case session.EventText:
			if event.Text == echoLine && !opts.echo {
				break
			}
			emit("%s\n", event.Text)
		case session.EventArtifactReady:
			emit("artifact: %s\n", event.Path)
		}
		select {
		case activity <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	runCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	runErr := func() error {
		if err := manager.Start(runCtx); err != nil {
			return err
		}
		if err := manager.Submit(runCtx, raw); err != nil {
			return err
		}
		return waitIdle(runCtx, activity, opts.idle)
	}()
	crashed := manager.State() == state.Crashed

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	closeErr := manager.Close(closeCtx)

	switch {
	case errors.Is(runErr, context.DeadlineExceeded) && opts.timeout > 0 && ctx.Err() == nil:
		return fmt.Errorf("%w (%s)", ErrScriptTimeout, opts.timeout)
	case runErr != nil:
		return runErr
	case crashed:
		return errors.New("interpreter exited before the script went idle")
	case closeErr != nil:
		return fmt.Errorf("stop interpreter: %w", closeErr)
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return writeErr
}

func waitIdle(ctx context.Context, activity <-chan struct{}, idle time.Duration) error {
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		case <-timer.C:
			return nil
		}
	}
}
