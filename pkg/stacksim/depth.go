package stacksim

import (
	"errors"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
)

// Depths computes the entry and exit stack depth of every reachable block
// from the per-opcode stack effects and returns the maximum depth. A
// successor reached with two different depths is a bytecode
// inconsistency; the depth is never patched.
func Depths(g *cfg.Graph) (int, error) {
	entry := make([]int, len(g.Blocks))
	for i, b := range g.Blocks {
		entry[i] = -1
		if b.Handler {
			entry[i] = 1
		}
	}
	entry[0] = 0

	max := 0
	for _, b := range g.ReversePostorder() {
		blk := g.Blocks[b]
		d := entry[b]
		if d < 0 {
			d = 0
		}
		blk.EntryDepth = d
		if d > max {
			max = d
		}
		for _, ins := range g.Instructions(b) {
			pops, pushes, err := bytecode.StackEffect(&ins)
			if err != nil {
				kind := ir.KindUnsupported
				if errors.Is(err, bytecode.ErrCountMismatch) {
					kind = ir.KindBadOperand
				}
				return 0, &ir.InconsistencyError{Kind: kind, Offset: ins.Offset, Detail: err.Error()}
			}
			if pops > d {
				return 0, &ir.InconsistencyError{Kind: ir.KindStackUnderflow, Offset: ins.Offset, Expected: pops, Actual: d}
			}
			d += pushes - pops
			if d > max {
				max = d
			}
		}
		blk.ExitDepth = d

		for _, e := range blk.Succs {
			if e.Kind == cfg.Exception {
				continue
			}
			switch {
			case entry[e.To] < 0:
				entry[e.To] = d
			case entry[e.To] != d:
				return 0, &ir.InconsistencyError{
					Kind:     ir.KindStackDepth,
					Offset:   g.Blocks[e.To].Offset,
					Expected: entry[e.To],
					Actual:   d,
				}
			}
		}
	}
	return max, nil
}
