package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newWrapCommand(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "wrap [--file F] [CMD...]",
		Short: "Print the single line sent to the interpreter for a command",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if file != "" {
				if len(args) > 0 {
					return errors.New("pass either --file or a command, not both")
				}
				script, err := readScript(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = strings.TrimRight(script, "\r\n")
			}
			if strings.TrimSpace(raw) == "" {
				return errors.New("a command is required")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), a.newWrapper().Wrap(raw))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the command from a file (- for stdin)")
	return cmd
}

func newEnvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the resolved interpreter launch configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			launch, err := a.launchBuilder().Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("resolve launch: %w", err)
			}
			return printLaunch(cmd.OutOrStdout(), launch.Path, launch.Args, launch.Dir, launch.Overrides, a.cfg.Sources)
		},
	}
}

func printLaunch(out io.Writer, path string, args []string, dir string, overrides map[string]string, sources []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "executable: %s\n", path)
	fmt.Fprintf(&b, "args: %s\n", strings.Join(args, " "))
	if dir != "" {
		fmt.Fprintf(&b, "dir: %s\n", dir)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("env:\n")
		for _, key := range keys {
			fmt.Fprintf(&b, "  %s=%s\n", key, overrides[key])
		}
	}

	if len(sources) > 0 {
		b.WriteString("config:\n")
		for _, source := range sources {
			fmt.Fprintf(&b, "  %s\n", source)
		}
	}
	_, err := io.WriteString(out, b.String())
	return err
}
