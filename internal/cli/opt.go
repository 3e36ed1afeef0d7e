package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpyw/arcseq"
)

// OptOptions holds flags for the opt command.
type OptOptions struct {
	*RootOptions
	Stats bool
}

// NewOptCommand creates the opt command.
func NewOptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "opt [file]",
		Short: "Optimize IR and print the result",
		Long: `Optimize every function of an IR file and print the module.

Example:
  arcseq opt input.ir
  arcseq opt --loop-arc=false --stats < input.ir`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpt(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print removed instruction counts to stderr")

	return cmd
}

func runOpt(opts *OptOptions, cmd *cobra.Command, args []string) error {
	c, err := opts.config(cmd)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	out, results, err := arcseq.OptimizeSource(cmd.Context(), src, c, arcseq.WithLogger(opts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to optimize", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)

	if opts.Stats {
		for _, r := range results {
			fmt.Fprintf(cmd.ErrOrStderr(), "@%s: removed %d retain(s), %d release(s)\n",
				r.Function, r.RemovedRetains, r.RemovedReleases)
		}
	}
	return nil
}
