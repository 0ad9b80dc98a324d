package ssa

import (
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
)

// InlineSingleUse substitutes every definition read exactly once into its
// use, repeating until nothing changes, and returns the number of
// substitutions. A candidate that fails a guard is left alone, so a second
// run returns 0.
func InlineSingleUse(g *cfg.Graph, info *Info) int {
	total := 0
	for {
		info.refresh(g)
		if !inlineOne(g, info) {
			return total
		}
		total++
	}
}

func inlineOne(g *cfg.Graph, info *Info) bool {
	for _, b := range info.Dom.RPO {
		stmts := g.Blocks[b].Stmts
		for i := len(stmts) - 1; i >= 0; i-- {
			a, ok := stmts[i].(*ir.Assign)
			if !ok || !info.candidate(a) {
				continue
			}
			use := info.useSite[a.LV]
			if !canMove(g, info, a, Site{b, i}, use) {
				continue
			}
			ir.ReplaceLocal(g.Blocks[use.Block].Stmts[use.Index], a.LV, a.Value)
			blk := g.Blocks[b]
			blk.Stmts = append(blk.Stmts[:i:i], blk.Stmts[i+1:]...)
			return true
		}
	}
	return false
}

func (info *Info) candidate(a *ir.Assign) bool {
	if a.LV.Version == 0 || info.uses[a.LV] != 1 || info.inMerge[a.LV] {
		return false
	}
	if info.Filter != nil && !info.Filter(a.LV) {
		return false
	}
	_, caught := a.Value.(*ir.CaughtException)
	return !caught
}

// inert reports whether e only reads locals and constants and cannot throw
func inert(e ir.Expr) bool {
	return ir.IsStable(e) && !ir.MayThrow(e)
}

func slotsRead(e ir.Expr) map[int]bool {
	out := make(map[int]bool)
	ir.VisitExpr(e, func(x ir.Expr) {
		if r, ok := x.(*ir.LocalRef); ok {
			out[r.LV.Slot] = true
		}
	})
	return out
}

// interferes reports whether value may not be moved across s
func interferes(s ir.Stmt, value ir.Expr, reads map[int]bool) bool {
	if lv, ok := ir.CreatedLValue(s); ok && reads[lv.Slot] {
		return true
	}
	if inert(value) {
		return false
	}
	switch s := s.(type) {
	case *ir.Jump, *ir.Merge:
		return false
	case *ir.CondJump:
		return ir.HasSideEffects(s.Cond) || (ir.HasSideEffects(value) && ir.ReadsHeap(s.Cond))
	case *ir.SwitchJump:
		return ir.HasSideEffects(s.Key) || (ir.HasSideEffects(value) && ir.ReadsHeap(s.Key))
	}
	if ir.StmtHasSideEffects(s) {
		return true
	}
	return ir.HasSideEffects(value) && ir.ReadsHeap(ir.RValue(s))
}

// canMove applies the inlining guards to moving the definition at def
// into its single use at use
func canMove(g *cfg.Graph, info *Info, a *ir.Assign, def, use Site) bool {
	reads := slotsRead(a.Value)
	useStmt := g.Blocks[use.Block].Stmts[use.Index]

	var between []ir.Stmt
	if use.Block == def.Block {
		if use.Index <= def.Index {
			return false
		}
		between = g.Blocks[def.Block].Stmts[def.Index+1 : use.Index]
	} else {
		chain, ok := chainTo(g, def.Block, use.Block, inert(a.Value))
		if !ok {
			return false
		}
		between = append(between, g.Blocks[def.Block].Stmts[def.Index+1:]...)
		for _, b := range chain {
			between = append(between, g.Blocks[b].Stmts...)
		}
		between = append(between, g.Blocks[use.Block].Stmts[:use.Index]...)

		if !sameRegions(g.Regions(def.Block), g.Regions(use.Block)) {
			if ir.MayThrow(a.Value) || !info.Dom.Dominates(def.Block, use.Block) {
				return false
			}
		}
	}
	for _, s := range between {
		if interferes(s, a.Value, reads) {
			return false
		}
	}
	return useOrderOK(useStmt, a)
}

// chainTo walks back from to along single normal predecessors until it
// reaches from and returns the blocks strictly in between. Blocks with an
// exception predecessor stop the walk. Unless the value is inert every
// block left on the way must have a single normal successor, so that the
// value is still evaluated on every path.
func chainTo(g *cfg.Graph, from, to int, pure bool) ([]int, bool) {
	var chain []int
	x := to
	for steps := 0; steps <= len(g.Blocks); steps++ {
		var normal []int
		for _, e := range g.Blocks[x].Preds {
			if e.Kind == cfg.Exception {
				return nil, false
			}
			normal = append(normal, e.From)
		}
		if len(normal) != 1 {
			return nil, false
		}
		p := normal[0]
		if !pure && normalSuccs(g.Blocks[p]) != 1 {
			return nil, false
		}
		if p == from {
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, true
		}
		chain = append(chain, p)
		x = p
	}
	return nil, false
}

func normalSuccs(b *cfg.Block) int {
	n := 0
	for _, e := range b.Succs {
		if e.Kind != cfg.Exception {
			n++
		}
	}
	return n
}

func sameRegions(a, b []*cfg.ExceptionGroup) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// useOrderOK checks the evaluation order inside the use statement: nothing
// evaluated before the use may have side effects when the value is not
// stable, and nothing before it may read the heap when the value has side
// effects. The value must not land in a conditionally evaluated branch.
func useOrderOK(s ir.Stmt, a *ir.Assign) bool {
	valueSide := ir.HasSideEffects(a.Value)
	stable := ir.IsStable(a.Value)
	ok, done := true, false
	ir.VisitStmtExprs(s, func(e ir.Expr) {
		if done || !ok {
			return
		}
		if r, isRef := e.(*ir.LocalRef); isRef && r.LV == a.LV {
			done = true
			return
		}
		if !stable && ir.HasSideEffects(e) && isLeafCall(e) {
			ok = false
		}
		if valueSide && readsHeapNode(e) {
			ok = false
		}
	})
	if !ok {
		return false
	}
	if !inert(a.Value) && underBranch(s, a.LV) {
		return false
	}
	return true
}

// isLeafCall reports whether e itself is a call or construction. Parents of
// the use are visited after it, so only nodes completed before the use
// count.
func isLeafCall(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Invoke, *ir.New:
		return true
	}
	return false
}

func readsHeapNode(e ir.Expr) bool {
	switch e.(type) {
	case *ir.FieldAccess, *ir.ArrayIndex, *ir.Invoke:
		return true
	}
	return false
}

// underBranch reports whether lv is read inside a ternary arm of s
func underBranch(s ir.Stmt, lv ir.LValue) bool {
	found := false
	ir.VisitStmtExprs(s, func(e ir.Expr) {
		t, ok := e.(*ir.Ternary)
		if !ok {
			return
		}
		for _, arm := range []ir.Expr{t.Then, t.Else} {
			ir.VisitExpr(arm, func(x ir.Expr) {
				if r, ok := x.(*ir.LocalRef); ok && r.LV == lv {
					found = true
				}
			})
		}
	})
	return found
}
