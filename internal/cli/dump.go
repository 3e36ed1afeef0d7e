package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpyw/arcseq"
	"github.com/mpyw/arcseq/internal/debug"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Print the pairing maps of every sweep",
		Long: `Optimize an IR file and print, for every dataflow sweep, the increments
and decrements that were paired together with the state that reached them,
followed by the matching sets that were removed.

Example:
  arcseq dump input.ir`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runDump(opts *RootOptions, cmd *cobra.Command, args []string) error {
	c, err := opts.config(cmd)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	collector := debug.NewCollector()
	_, _, err = arcseq.OptimizeSource(cmd.Context(), src, c,
		arcseq.WithLogger(opts.logger(cmd)), arcseq.WithObserver(collector))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to optimize", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), debug.FormatAll(collector))
	return nil
}
