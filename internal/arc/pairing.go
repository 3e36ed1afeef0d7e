package arc

import (
	"log/slog"

	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/ir"
)

// =============================================================================
// Driver
// =============================================================================
//
// Block mode:
//
//	repeat: block sweep ──▶ match ──▶ delete      until nothing is deleted
//	if changed: the same with epilogue releases frozen
//
// Loop mode:
//
//	for each loop, innermost first:
//	    repeat: region sweep ──▶ match ──▶ delete  while nesting and matched
//	    if changed: the same with epilogue releases frozen
//	    summarize the loop for its parent
//	the function region likewise
//	if anything changed: the whole tree once more

// DefaultMaxIterations bounds every fixpoint loop of the driver.
const DefaultMaxIterations = 32

// Options controls the driver.
type Options struct {
	// EnableLoopARC selects loop mode when a region tree is available.
	EnableLoopARC bool
	// MaxIterations bounds each fixpoint loop; zero means
	// DefaultMaxIterations.
	MaxIterations int
	// FreezeEpilogueReleases enables the follow-up run in which epilogue
	// releases stay in place.
	FreezeEpilogueReleases bool
}

// Result summarises the optimization of one function.
type Result struct {
	Changed         bool
	RemovedRetains  int
	RemovedReleases int
}

// Removed returns the number of deleted instructions.
func (r Result) Removed() int { return r.RemovedRetains + r.RemovedReleases }

// Optimizer removes redundant retain/release pairs from one function.
type Optimizer struct {
	ctx         *Context
	fn          *ir.Function
	regions     LoopRegions
	epilogue    EpilogueReleases
	termination ProgramTermination
	opts        Options

	decToInc DecToIncMap
	incToDec IncToDecMap
	result   Result
}

// NewOptimizer creates an optimizer for fn. regions may be nil, which forces
// block mode; epilogue and termination may be nil when unavailable.
func NewOptimizer(ctx *Context, fn *ir.Function, regions LoopRegions, epilogue EpilogueReleases,
	termination ProgramTermination, opts Options) *Optimizer {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Optimizer{
		ctx:         ctx,
		fn:          fn,
		regions:     regions,
		epilogue:    epilogue,
		termination: termination,
		opts:        opts,
	}
}

// Run optimizes the function in place.
func (o *Optimizer) Run() Result {
	if o.opts.EnableLoopARC && o.regions != nil {
		o.runLoopMode()
	} else {
		o.runBlockMode()
	}
	o.ctx.Logger.Debug("function optimized",
		slog.String("function", o.fn.Name),
		slog.Bool("changed", o.result.Changed),
		slog.Int("removed_retains", o.result.RemovedRetains),
		slog.Int("removed_releases", o.result.RemovedReleases))
	return o.result
}

// -----------------------------------------------------------------------------
// Matching
// -----------------------------------------------------------------------------

// performMatching builds a matching set for every paired increment and
// collects the members of each accepted set. It reports whether any set
// contained a pair.
func (o *Optimizer) performMatching(scope string) (bool, []*ir.Instruction) {
	matched := false
	var dead []*ir.Instruction

	builder := NewMatchingSetBuilder(o.ctx, &o.decToInc, &o.incToDec)
	for inc := range o.incToDec.All() {
		builder.Init(inc)
		if !builder.MatchUp() {
			o.ctx.Logger.Debug("matching set rejected",
				slog.String("function", o.fn.Name),
				slog.String("increment", inc.String()))
			continue
		}
		matched = matched || builder.MatchedPair()

		set := builder.Result()
		for _, i := range set.Increments {
			o.incToDec.Erase(i)
		}
		for _, d := range set.Decrements {
			o.decToInc.Erase(d)
		}
		dead = append(dead, set.Increments...)
		dead = append(dead, set.Decrements...)

		o.ctx.Logger.Debug("matching set accepted",
			slog.String("function", o.fn.Name),
			slog.String("root", valueName(set.Root)),
			slog.Int("increments", len(set.Increments)),
			slog.Int("decrements", len(set.Decrements)),
			slog.Bool("known_safe", builder.IsKnownSafe()))
		if o.ctx.Observer != nil {
			o.ctx.Observer.RecordPairing(pairing(o.fn.Name, scope, set, builder.IsKnownSafe(), builder.IsCodeMotionSafe()))
		}
	}
	return matched, dead
}

// erase deletes dead instructions, keeping region summaries in sync.
func (o *Optimizer) erase(dead []*ir.Instruction, eval *LoopEvaluator) {
	for _, inst := range dead {
		if eval != nil {
			eval.RemoveInterestingInst(inst.Parent(), inst)
		}
		if inst.IsRetain() {
			o.result.RemovedRetains++
		} else {
			o.result.RemovedReleases++
		}
		inst.EraseFromParent()
	}
	if len(dead) > 0 {
		o.result.Changed = true
	}
}

// reset drops everything derived from the last sweep.
func (o *Optimizer) reset() {
	o.decToInc.Clear()
	o.incToDec.Clear()
	o.ctx.Sets.Reset()
}

func (o *Optimizer) limitReached(mode string) {
	o.ctx.Logger.Warn("iteration limit reached",
		slog.String("function", o.fn.Name),
		slog.String("mode", mode),
		slog.Int("max_iterations", o.opts.MaxIterations))
}

func (o *Optimizer) recomputeEpilogue() {
	if rc, ok := o.epilogue.(EpilogueRecomputer); ok {
		rc.Recompute()
	}
}

// -----------------------------------------------------------------------------
// Block mode
// -----------------------------------------------------------------------------

func (o *Optimizer) runBlockMode() {
	if !o.processFunctionWithoutLoops(false) || !o.opts.FreezeEpilogueReleases {
		return
	}
	o.recomputeEpilogue()
	o.processFunctionWithoutLoops(true)
}

func (o *Optimizer) processFunctionWithoutLoops(freeze bool) bool {
	eval := NewBlockEvaluator(o.ctx, o.fn, o.epilogue, o.termination, &o.decToInc, &o.incToDec)

	changed := false
	for i := 0; ; i++ {
		if i == o.opts.MaxIterations {
			o.limitReached("block")
			break
		}
		eval.Run(freeze)
		eval.Clear()
		_, dead := o.performMatching("function")
		o.erase(dead, nil)
		o.reset()
		if len(dead) == 0 {
			break
		}
		changed = true
	}
	return changed
}

// -----------------------------------------------------------------------------
// Loop mode
// -----------------------------------------------------------------------------

func (o *Optimizer) runLoopMode() {
	if o.processLoopTree() {
		o.processLoopTree()
	}
}

func (o *Optimizer) processLoopTree() bool {
	eval := NewLoopEvaluator(o.ctx, o.fn, o.regions, o.epilogue, o.termination, &o.decToInc, &o.incToDec)

	changed := false
	for _, r := range o.regions.LoopsPostOrder() {
		if o.processRegion(eval, r, false, false) {
			changed = true
			if o.opts.FreezeEpilogueReleases {
				o.processRegion(eval, r, true, false)
			}
		}
		eval.SummarizeLoop(r)
	}

	top := o.regions.TopLevel()
	if o.processRegion(eval, top, false, false) {
		changed = true
		if o.opts.FreezeEpilogueReleases {
			o.processRegion(eval, top, true, true)
		}
	}
	return changed
}

// processRegion runs the region until it stops exposing nested pairs. Each
// rerun after a deletion refreshes the epilogue releases first.
func (o *Optimizer) processRegion(eval *LoopEvaluator, r *cfg.Region, freeze, recompute bool) bool {
	eval.SummarizeSubregionBlocks(r)

	madeChange := false
	for i := 0; ; i++ {
		if i == o.opts.MaxIterations {
			o.limitReached("loop")
			break
		}
		nesting := eval.RunOnRegion(r, freeze, recompute)
		matched, dead := o.performMatching(scopeName(r))
		o.erase(dead, eval)

		madeChange = madeChange || matched
		eval.SaveMatchingInfo(r)
		eval.ClearLoopState(r)
		o.reset()

		if !nesting || !matched {
			break
		}
		recompute = len(dead) > 0
	}
	return madeChange
}
