package debug

import (
	"slices"
	"sync"
)

// Collector accumulates sweeps and pairings.
// It is safe for concurrent use, so functions can be optimized in parallel.
type Collector struct {
	mu       sync.Mutex
	sweeps   []Sweep
	pairings []Pairing
	counts   map[scopeKey]int
}

type scopeKey struct {
	function string
	scope    string
}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{counts: make(map[scopeKey]int)}
}

// RecordSweep stores a sweep and numbers it within its function and scope.
func (c *Collector) RecordSweep(s Sweep) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := scopeKey{s.Function, s.Scope}
	c.counts[key]++
	s.Iteration = c.counts[key]
	c.sweeps = append(c.sweeps, s)
}

// RecordPairing stores an accepted matching set.
func (c *Collector) RecordPairing(p Pairing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairings = append(c.pairings, p)
}

// Sweeps returns the sweeps recorded for function, in recording order.
func (c *Collector) Sweeps(function string) []Sweep {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Sweep
	for _, s := range c.sweeps {
		if s.Function == function {
			out = append(out, s)
		}
	}
	return out
}

// Pairings returns the pairings recorded for function.
func (c *Collector) Pairings(function string) []Pairing {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Pairing
	for _, p := range c.pairings {
		if p.Function == function {
			out = append(out, p)
		}
	}
	return out
}

// Functions returns the names of every function seen, sorted.
func (c *Collector) Functions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, s := range c.sweeps {
		names = append(names, s.Function)
	}
	for _, p := range c.pairings {
		names = append(names, p.Function)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
