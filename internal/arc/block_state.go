package arc

import (
	"github.com/mpyw/arcseq/internal/blotmap"
	"github.com/mpyw/arcseq/internal/ir"
	"github.com/mpyw/arcseq/internal/ptrset"
)

// stateMaps holds the per-identity states of one block or region.
type stateMaps struct {
	topDown  blotmap.Map[ir.Value, *TopDownState]
	bottomUp blotmap.Map[ir.Value, *BottomUpState]
}

// TopDownState returns the state for root, creating an untracked one.
func (m *stateMaps) TopDownState(root ir.Value) *TopDownState {
	s, _ := m.topDown.FindOrInsert(root, func() *TopDownState {
		return &TopDownState{refCountState: refCountState{rcRoot: root}}
	})
	return s
}

// BottomUpState returns the state for root, creating an untracked one.
func (m *stateMaps) BottomUpState(root ir.Value) *BottomUpState {
	s, _ := m.bottomUp.FindOrInsert(root, func() *BottomUpState {
		return &BottomUpState{refCountState: refCountState{rcRoot: root}}
	})
	return s
}

// TopDownStates returns the top-down map.
func (m *stateMaps) TopDownStates() *blotmap.Map[ir.Value, *TopDownState] { return &m.topDown }

// BottomUpStates returns the bottom-up map.
func (m *stateMaps) BottomUpStates() *blotmap.Map[ir.Value, *BottomUpState] { return &m.bottomUp }

func (m *stateMaps) clearTopDown()  { m.topDown.Clear() }
func (m *stateMaps) clearBottomUp() { m.bottomUp.Clear() }

func (m *stateMaps) clear() {
	m.clearTopDown()
	m.clearBottomUp()
}

// initPredTopDown copies the exit state of the first predecessor.
func (m *stateMaps) initPredTopDown(pred *stateMaps) {
	m.topDown = *pred.topDown.Clone((*TopDownState).Clone)
}

// mergePredTopDown meets the exit state of another predecessor: identities
// missing from pred are dropped, the rest are merged.
func (m *stateMaps) mergePredTopDown(pred *stateMaps, sets *ptrset.Factory[*ir.Instruction]) {
	for root, s := range m.topDown.All() {
		other, ok := pred.topDown.Find(root)
		if !ok {
			m.topDown.Erase(root)
			continue
		}
		s.Merge(other, sets)
		if !s.IsTrackingRefCount() {
			m.topDown.Erase(root)
		}
	}
}

// initSuccBottomUp copies the entry state of the first successor.
func (m *stateMaps) initSuccBottomUp(succ *stateMaps) {
	m.bottomUp = *succ.bottomUp.Clone((*BottomUpState).Clone)
}

// mergeSuccBottomUp meets the entry state of another successor.
func (m *stateMaps) mergeSuccBottomUp(succ *stateMaps, sets *ptrset.Factory[*ir.Instruction]) {
	for root, s := range m.bottomUp.All() {
		other, ok := succ.bottomUp.Find(root)
		if !ok {
			m.bottomUp.Erase(root)
			continue
		}
		s.Merge(other, sets)
		if !s.IsTrackingRefCount() {
			m.bottomUp.Erase(root)
		}
	}
}

// BlockState is the dataflow state of one basic block.
type BlockState struct {
	stateMaps
	block  *ir.Block
	isTrap bool
}

func newBlockState(b *ir.Block, isTrap bool) *BlockState {
	return &BlockState{block: b, isTrap: isTrap}
}

// Block returns the block.
func (s *BlockState) Block() *ir.Block { return s.block }

// IsTrapBlock reports whether the block never returns, so leaks are fine.
func (s *BlockState) IsTrapBlock() bool { return s.isTrap }
