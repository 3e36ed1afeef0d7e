package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpyw/arcseq"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	ConfigPath    string
	LoopARC       bool
	MaxIterations int
}

// NewRootCommand creates the root command for the arcseq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "arcseq",
		Short: "arcseq - retain/release pair elimination",
		Long: `Remove redundant retain/release pairs from reference counted IR.

Pairs are proven with a bottom-up and a top-down dataflow over the control
flow graph and deleted only when both directions agree.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log dataflow events to stderr")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.LoopARC, "loop-arc", true, "use the loop-aware dataflow")
	cmd.PersistentFlags().IntVar(&opts.MaxIterations, "max-iterations", 0, "bound on fixpoint iterations (0 keeps the config value)")

	cmd.AddCommand(NewOptCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))

	return cmd
}

// config loads the configuration file, if any, and applies the flags that
// were set explicitly.
func (o *RootOptions) config(cmd *cobra.Command) (arcseq.Config, error) {
	c := arcseq.DefaultConfig()
	if o.ConfigPath != "" {
		var err error
		if c, err = arcseq.LoadConfig(o.ConfigPath); err != nil {
			return arcseq.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if cmd.Flags().Changed("loop-arc") {
		c.EnableLoopARC = o.LoopARC
	}
	if o.MaxIterations != 0 {
		c.MaxIterations = o.MaxIterations
	}
	if err := c.Validate(); err != nil {
		return arcseq.Config{}, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return c, nil
}

// logger returns a text logger on the command's stderr.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// readInput reads the IR named by args, or stdin.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", args[0]), err)
	}
	return string(data), nil
}
