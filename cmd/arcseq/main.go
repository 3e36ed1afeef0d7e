// Command arcseq removes redundant retain/release pairs from reference
// counted IR.
//
// Usage:
//
//	arcseq opt input.ir
//	arcseq dump --loop-arc=false input.ir
//
// Input is read from stdin when no file or "-" is given.
package main

import (
	"fmt"
	"os"

	"github.com/mpyw/arcseq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
