// Package arcseq removes redundant retain/release pairs from reference
// counted IR.
//
// A retain of a value followed by a release of the same value, with nothing
// in between that could free or observe the object, has no effect. The
// optimizer proves such pairs with a bidirectional dataflow and deletes them:
//
//	func @f(%x) {                 func @f(%x) {
//	bb0:                          bb0:
//	  strong_retain %x      ==>     %1 = apply [readnone] @g(%x)
//	  %1 = apply [readnone] @g(%x)  return
//	  strong_release %x           }
//	  return
//	}
//
// Pairs are matched across blocks and, in loop mode, across loop regions.
// When any doubt exists the instructions stay where they are.
package arcseq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mpyw/arcseq/internal/analysis/alias"
	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/analysis/epilogue"
	"github.com/mpyw/arcseq/internal/analysis/rcident"
	"github.com/mpyw/arcseq/internal/analysis/termination"
	"github.com/mpyw/arcseq/internal/arc"
	"github.com/mpyw/arcseq/internal/ir"
)

// Observer receives dataflow dumps and accepted pairings.
type Observer = arc.Observer

// Result reports what the optimizer did to one function.
type Result struct {
	Function        string
	Changed         bool
	RemovedRetains  int
	RemovedReleases int
}

// Removed returns the number of deleted instructions.
func (r Result) Removed() int { return r.RemovedRetains + r.RemovedReleases }

type options struct {
	logger   *slog.Logger
	observer Observer
}

// Option customises a run.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver installs an observer for dataflow dumps.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Optimize optimizes fn in place. The configuration is expected to be valid.
func Optimize(fn *ir.Function, c Config, opts ...Option) Result {
	o := buildOptions(opts)

	rc := rcident.New()
	aa := alias.New(rc.Root)
	epi := epilogue.Compute(fn, rc.Root, aa)

	var regions arc.LoopRegions
	if c.EnableLoopARC {
		regions = cfg.New().BuildRegions(fn)
	}

	ctx := arc.NewContext(aa, rc, arc.NewClassifier(c.AutoreleasePoolFuncs), o.logger)
	ctx.Observer = o.observer

	res := arc.NewOptimizer(ctx, fn, regions, epi, termination.New(), c.options()).Run()
	return Result{
		Function:        fn.Name,
		Changed:         res.Changed,
		RemovedRetains:  res.RemovedRetains,
		RemovedReleases: res.RemovedReleases,
	}
}

// Run optimizes every function, several at a time. Results are returned in
// the order of fns.
func Run(ctx context.Context, fns []*ir.Function, c Config, opts ...Option) ([]Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	results := make([]Result, len(fns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fn := range fns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Optimize(fn, c, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return results, nil
}

// OptimizeSource parses a module in text form, optimizes it and prints it
// back.
func OptimizeSource(ctx context.Context, src string, c Config, opts ...Option) (string, []Result, error) {
	fns, err := ir.ParseModule(src)
	if err != nil {
		return "", nil, fmt.Errorf("parse: %w", err)
	}
	results, err := Run(ctx, fns, c, opts...)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, len(fns))
	for i, fn := range fns {
		parts[i] = ir.Sprint(fn)
	}
	return strings.Join(parts, "\n"), results, nil
}
