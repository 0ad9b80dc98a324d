package ssa

import (
	"fmt"

	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
)

// Verify checks that every LValue has a single definition, that every read
// other than a merge source is dominated by its definition, and that
// versions of a slot strictly increase along every acyclic path.
func Verify(g *cfg.Graph, info *Info) error {
	dom := info.Dom
	defs := make(map[ir.LValue]Site)
	for _, b := range dom.RPO {
		for i, s := range g.Blocks[b].Stmts {
			lv, ok := ir.CreatedLValue(s)
			if !ok {
				continue
			}
			if lv.Version == 0 {
				return fmt.Errorf("%w: B%d: definition of %s has no version", ErrInvalid, b, lv)
			}
			if prev, dup := defs[lv]; dup {
				return fmt.Errorf("%w: %s defined at B%d and B%d", ErrInvalid, lv, prev.Block, b)
			}
			defs[lv] = Site{b, i}
		}
	}

	for _, b := range dom.RPO {
		for i, s := range g.Blocks[b].Stmts {
			if m, ok := s.(*ir.Merge); ok {
				for _, src := range m.Sources {
					if _, ok := defs[src]; !ok && src.Version != 0 {
						return fmt.Errorf("%w: B%d: merge source %s has no definition", ErrInvalid, b, src)
					}
				}
				continue
			}
			for _, lv := range ir.UsedLValues(s) {
				if lv.Version == 0 {
					continue
				}
				d, ok := defs[lv]
				switch {
				case !ok:
					return fmt.Errorf("%w: B%d: %s read but never defined", ErrInvalid, b, lv)
				case d.Block == b && d.Index >= i:
					return fmt.Errorf("%w: B%d: %s read before its definition", ErrInvalid, b, lv)
				case d.Block != b && !dom.Dominates(d.Block, b):
					return fmt.Errorf("%w: B%d: definition of %s in B%d does not dominate its use", ErrInvalid, b, lv, d.Block)
				}
			}
		}
	}
	return verifyMonotonic(g, dom)
}

// verifyMonotonic propagates, per slot, the highest version reaching each
// block over forward edges and checks that every definition exceeds it
func verifyMonotonic(g *cfg.Graph, dom *Dominators) error {
	reach := make([]map[int]int, len(g.Blocks))
	for _, b := range dom.RPO {
		in := make(map[int]int)
		for _, e := range g.Blocks[b].Preds {
			p := e.From
			if !dom.Reachable(p) || dom.Order(p) >= dom.Order(b) {
				continue
			}
			for slot, v := range reach[p] {
				if v > in[slot] {
					in[slot] = v
				}
			}
		}
		for _, s := range g.Blocks[b].Stmts {
			lv, ok := ir.CreatedLValue(s)
			if !ok {
				continue
			}
			if lv.Version <= in[lv.Slot] {
				return fmt.Errorf("%w: B%d: %s does not follow version %d", ErrInvalid, b, lv, in[lv.Slot])
			}
			in[lv.Slot] = lv.Version
		}
		reach[b] = in
	}
	return nil
}
