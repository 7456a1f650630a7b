package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/chalkboard/interp/internal/config"
	"github.com/chalkboard/interp/internal/logging"
	"github.com/chalkboard/interp/internal/process"
	"github.com/chalkboard/interp/internal/session"
	"github.com/chalkboard/interp/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx, logging.WithLevel(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	telemetry.ServiceVersion = Version
	shutdown, err := telemetry.Init(ctx, telemetry.Options{Endpoint: cfg.OTLPEndpoint})
	if err != nil {
		logger.Logger.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown()
	}

	cmd := newRootCommand(&app{cfg: cfg, logger: logger.Logger})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// app carries what every subcommand needs. Spawner and builder are replaced in tests.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	spawner process.Spawner
	builder session.LaunchBuilder
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "interp",
		Short:         "Interactive console for a GNU Octave interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runConsole(cmd.Context())
		},
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newConsoleCommand(a),
		newRunCommand(a),
		newWrapCommand(a),
		newEnvCommand(a),
		newBugreportCommand(a),
		newVersionCommand(),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if a.logger == nil {
			a.logger = log.New(io.Discard)
		}
		if a.cfg == nil {
			return errors.New("config is required")
		}
		a.logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the interp version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "interp %s\n", Version)
			return err
		},
	}
}
