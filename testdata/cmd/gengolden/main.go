// Command gengolden regenerates the expected outputs of the optimizer
// fixtures in testdata/opt.
//
// Each fixture keeps its comment and input.ir. The expected output is
// written to want.ir when block and loop mode agree, and to want.block.ir
// and want.loop.ir otherwise. Review the diff before committing.
//
// Usage (from the repository root):
//
//	go run ./testdata/cmd/gengolden
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/txtar"

	"github.com/mpyw/arcseq"
)

func main() {
	files, err := filepath.Glob(filepath.Join("testdata", "opt", "*.txtar"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	failed := false
	for _, file := range files {
		fmt.Printf("Generating expectations for %s...\n", filepath.Base(file))
		if err := regenerate(file); err != nil {
			fmt.Printf("  Error: %v\n", err)
			failed = true
			continue
		}
	}
	if failed {
		os.Exit(1)
	}
}

func regenerate(path string) error {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		return err
	}

	var input []byte
	for _, f := range ar.Files {
		if f.Name == "input.ir" {
			input = f.Data
		}
	}
	if input == nil {
		return fmt.Errorf("no input.ir section")
	}

	outputs := make(map[string]string, 2)
	for _, mode := range []string{"block", "loop"} {
		c := arcseq.DefaultConfig()
		c.EnableLoopARC = mode == "loop"
		out, _, err := arcseq.OptimizeSource(context.Background(), string(input), c)
		if err != nil {
			return fmt.Errorf("%s mode: %w", mode, err)
		}
		outputs[mode] = out
	}

	files := []txtar.File{{Name: "input.ir", Data: input}}
	if outputs["block"] == outputs["loop"] {
		files = append(files, txtar.File{Name: "want.ir", Data: []byte(outputs["block"])})
	} else {
		files = append(files,
			txtar.File{Name: "want.block.ir", Data: []byte(outputs["block"])},
			txtar.File{Name: "want.loop.ir", Data: []byte(outputs["loop"])},
		)
	}
	ar.Files = files

	if err := os.WriteFile(path, txtar.Format(ar), 0o644); err != nil {
		return err
	}
	fmt.Printf("  Wrote %d section(s)\n", len(files))
	return nil
}
