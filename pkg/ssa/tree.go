package ssa

import (
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// InlineTree repeats single-use inlining on a structured tree, where
// collapsed ternaries expose new candidates. A definition moves only into a
// later statement of the same block, or into the condition of an if or
// the key of a switch there, under the same guards as InlineSingleUse.
func InlineTree(root *structured.Block, filter func(ir.LValue) bool) int {
	total := 0
	for inlineTreeOne(root, filter) {
		total++
	}
	return total
}

func inlineTreeOne(root *structured.Block, filter func(ir.LValue) bool) bool {
	uses := treeUses(root)
	var blocks []*structured.Block
	structured.Walk(root, func(s structured.Stmt) bool {
		if b, ok := s.(*structured.Block); ok {
			blocks = append(blocks, b)
		}
		return true
	})
	for _, b := range blocks {
		for i := len(b.Stmts) - 1; i >= 0; i-- {
			atom, ok := b.Stmts[i].(*structured.Atom)
			if !ok {
				continue
			}
			a, ok := atom.S.(*ir.Assign)
			if !ok || a.LV.Version == 0 || uses[a.LV] != 1 {
				continue
			}
			if _, caught := a.Value.(*ir.CaughtException); caught {
				continue
			}
			if filter != nil && !filter(a.LV) {
				continue
			}
			if moveInto(b, i, a) {
				return true
			}
		}
	}
	return false
}

// moveInto substitutes the definition at b.Stmts[i] into the next statement
// of b that reads it and deletes the definition
func moveInto(b *structured.Block, i int, a *ir.Assign) bool {
	reads := slotsRead(a.Value)
	for j := i + 1; j < len(b.Stmts); j++ {
		s := b.Stmts[j]
		if !treeReads(s, a.LV) {
			atom, ok := s.(*structured.Atom)
			if !ok || interferes(atom.S, a.Value, reads) {
				return false
			}
			continue
		}
		proxy, commit := useProxy(s)
		if proxy == nil || !lvIn(ir.RValue(proxy), a.LV) || !useOrderOK(proxy, a) {
			return false
		}
		ir.ReplaceLocal(proxy, a.LV, a.Value)
		commit()
		b.Stmts = append(b.Stmts[:i:i], b.Stmts[i+1:]...)
		return true
	}
	return false
}

// useProxy returns a flat statement standing for the part of s evaluated
// first, and a function writing changes to it back into s
func useProxy(s structured.Stmt) (ir.Stmt, func()) {
	switch s := s.(type) {
	case *structured.Atom:
		return s.S, func() {}
	case *structured.If:
		p := &ir.CondJump{Cond: s.Cond}
		return p, func() { s.Cond = p.Cond }
	case *structured.Switch:
		p := &ir.SwitchJump{Key: s.Key}
		return p, func() { s.Key = p.Key }
	}
	return nil, nil
}

func lvIn(e ir.Expr, lv ir.LValue) bool {
	found := false
	ir.VisitExpr(e, func(x ir.Expr) {
		if r, ok := x.(*ir.LocalRef); ok && r.LV == lv {
			found = true
		}
	})
	return found
}

func treeReads(s structured.Stmt, lv ir.LValue) bool {
	found := false
	structured.Walk(s, func(x structured.Stmt) bool {
		if a, ok := x.(*structured.Atom); ok {
			if m, ok := a.S.(*ir.Merge); ok {
				for _, src := range m.Sources {
					if src == lv {
						found = true
					}
				}
			}
		}
		return !found
	})
	if !found {
		structured.VisitExprs(s, func(e ir.Expr) {
			if r, ok := e.(*ir.LocalRef); ok && r.LV == lv {
				found = true
			}
		})
	}
	return found
}

// treeUses counts reads of every LValue. Merge sources count twice so
// they are never candidates.
func treeUses(root structured.Stmt) map[ir.LValue]int {
	uses := make(map[ir.LValue]int)
	structured.Walk(root, func(s structured.Stmt) bool {
		if a, ok := s.(*structured.Atom); ok {
			if m, ok := a.S.(*ir.Merge); ok {
				for _, src := range m.Sources {
					uses[src] += 2
				}
			}
		}
		return true
	})
	structured.VisitExprs(root, func(e ir.Expr) {
		if r, ok := e.(*ir.LocalRef); ok {
			uses[r.LV]++
		}
	})
	return uses
}
