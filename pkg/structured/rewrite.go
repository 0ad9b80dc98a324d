package structured

import (
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// forBlocks calls fn on every Block of the tree, innermost first
func forBlocks(root Stmt, fn func(*Block)) {
	if root == nil {
		return
	}
	for _, c := range Children(root) {
		forBlocks(c, fn)
	}
	if b, ok := root.(*Block); ok {
		fn(b)
	}
}

// CollapseTernaries rewrites
//
//	if (c) { s = a } else { s = b }  m = merge(s1, s2)
//
// into m = c ? a : b when s is a slot accepted by spill. Inner
// conditionals collapse first so nested ternaries compose. It returns the
// number of rewrites.
func CollapseTernaries(root Stmt, spill func(slot int) bool) int {
	n := 0
	forBlocks(root, func(b *Block) {
		for i := 0; i < len(b.Stmts); i++ {
			s, ok := b.Stmts[i].(*If)
			if !ok || s.Else == nil {
				continue
			}
			ta, ea := soleAssign(s.Then), soleAssign(s.Else)
			if ta == nil || ea == nil || ta.LV.Slot != ea.LV.Slot || ta.LV == ea.LV {
				continue
			}
			if spill != nil && !spill(ta.LV.Slot) {
				continue
			}
			j := findJoin(b.Stmts, i+1, ta.LV, ea.LV)
			if j < 0 {
				continue
			}
			m := b.Stmts[j].(*Atom).S.(*ir.Merge)
			b.Stmts[i] = &Atom{S: &ir.Assign{LV: m.LV, Value: ternary(s.Cond, ta.Value, ea.Value)}}
			b.Stmts = append(b.Stmts[:j:j], b.Stmts[j+1:]...)
			n++
		}
	})
	return n
}

func soleAssign(s Stmt) *ir.Assign {
	for {
		b, ok := s.(*Block)
		if !ok {
			break
		}
		if len(b.Stmts) != 1 {
			return nil
		}
		s = b.Stmts[0]
	}
	a, ok := s.(*Atom)
	if !ok {
		return nil
	}
	as, _ := a.S.(*ir.Assign)
	return as
}

// findJoin looks through the merges directly after an if for the one
// joining exactly x and y
func findJoin(stmts []Stmt, from int, x, y ir.LValue) int {
	for j := from; j < len(stmts); j++ {
		a, ok := stmts[j].(*Atom)
		if !ok {
			return -1
		}
		m, ok := a.S.(*ir.Merge)
		if !ok {
			return -1
		}
		if m.LV.Slot != x.Slot || len(m.Sources) != 2 {
			continue
		}
		if (m.Sources[0] == x && m.Sources[1] == y) || (m.Sources[0] == y && m.Sources[1] == x) {
			return j
		}
	}
	return -1
}

func ternary(c, a, b ir.Expr) ir.Expr {
	if boolConst(a, 1) && boolConst(b, 0) {
		return c
	}
	if boolConst(a, 0) && boolConst(b, 1) {
		return ir.Negate(c)
	}
	return &ir.Ternary{Cond: c, Then: a, Else: b}
}

func boolConst(e ir.Expr, v int32) bool {
	c, ok := e.(*ir.Const)
	if !ok || !jtypes.Equal(c.Type, jtypes.Bool()) {
		return false
	}
	x, ok := c.Value.(int32)
	return ok && x == v
}

// DropMerges removes every merge statement and returns how many it removed
func DropMerges(root Stmt) int {
	n := 0
	forBlocks(root, func(b *Block) {
		out := b.Stmts[:0]
		for _, s := range b.Stmts {
			if a, ok := s.(*Atom); ok {
				if _, ok := a.S.(*ir.Merge); ok {
					n++
					continue
				}
			}
			out = append(out, s)
		}
		b.Stmts = out
	})
	return n
}

// Tidy removes empty else branches, flips ifs with an empty then branch
// and flattens nested blocks that carry no scope of their own
func Tidy(root Stmt) {
	Walk(root, func(s Stmt) bool {
		if i, ok := s.(*If); ok {
			if isEmpty(i.Else) {
				i.Else = nil
			}
			if i.Else != nil && isEmpty(i.Then) {
				i.Cond, i.Then, i.Else = ir.Negate(i.Cond), i.Else, nil
			}
		}
		return true
	})
	forBlocks(root, func(b *Block) {
		var out []Stmt
		for _, s := range b.Stmts {
			if inner, ok := s.(*Block); ok {
				out = append(out, inner.Stmts...)
				continue
			}
			out = append(out, s)
		}
		b.Stmts = out
	})
}

// TrimReturn drops a bare return that ends a method body, as falling off
// the end of a void method returns anyway
func TrimReturn(b *Block) {
	n := len(b.Stmts)
	if n == 0 {
		return
	}
	if a, ok := b.Stmts[n-1].(*Atom); ok {
		if r, ok := a.S.(*ir.Return); ok && r.Value == nil {
			b.Stmts = b.Stmts[:n-1]
		}
	}
}

func isEmpty(s Stmt) bool {
	if s == nil {
		return true
	}
	b, ok := s.(*Block)
	if !ok {
		return false
	}
	for _, c := range b.Stmts {
		if !isEmpty(c) {
			return false
		}
	}
	return true
}
