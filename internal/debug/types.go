package debug

// Sweep is the dataflow result of one evaluator run over a function or a
// loop region, taken before matching.
type Sweep struct {
	Function string
	// Scope is "function" for the whole function or the loop region label.
	Scope string
	// Iteration counts sweeps of the same function and scope, starting at 1.
	Iteration  int
	Increments []StateInfo
	Decrements []StateInfo
}

// StateInfo describes one paired instruction and the state that reached it.
type StateInfo struct {
	Inst           string
	Root           string
	Tracked        []string // The instructions the state was tracking.
	KnownSafe      bool
	CodeMotionSafe bool
	Lattice        string
}

// Pairing records a matching set that was accepted and removed.
type Pairing struct {
	Function   string
	Scope      string
	Root       string
	Increments []string
	Decrements []string
	KnownSafe  bool
	// CodeMotionSafe is set when the pair was accepted without known safety.
	CodeMotionSafe bool
}
