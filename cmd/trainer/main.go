// Command markov-trainer trains context-window models from a directory of
// text files and inspects the saved artifacts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	verbose bool
	quiet   bool
	cfg     Config
	logger  *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	defaults := DefaultConfig()
	a := &app{}

	cmd := &cobra.Command{
		Use:           "markov-trainer",
		Short:         "Train and inspect context-window Markov models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := Load(LoadOptions{
				Cmd:        cmd,
				ConfigFile: a.cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			a.cfg = loaded
			a.logger = a.setupLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug messages")
	cmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Log warnings and errors only")
	RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTrainCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newPredictCmd(a))
	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newPruneCmd(a))
	cmd.AddCommand(newInitConfigCmd(a))

	return cmd
}

// setupLogger builds the text logger for this run. --verbose and --quiet
// take precedence over log_level.
func (a *app) setupLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLogLevel(a.cfg.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	switch {
	case a.verbose:
		lvl = slog.LevelDebug
	case a.quiet:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
