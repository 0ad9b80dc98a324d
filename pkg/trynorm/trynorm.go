// Package trynorm simplifies try statements after structuring: it removes
// tries that protect nothing, drops handlers that only rethrow, and turns
// the catch-any handler of a compiled finally clause back into a finally
// block by folding the copies the compiler inlined at every exit.
package trynorm

import (
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// Normalizer holds the statement equivalence used to recognize finally
// copies
type Normalizer struct {
	Eq ir.Equivalence
}

// NormalizeTry simplifies one newly built try with slot equivalence
func NormalizeTry(t *structured.Try) []structured.Stmt {
	return Normalizer{}.Try(t)
}

// Normalize simplifies every try in root with slot equivalence
func Normalize(root structured.Stmt) (structured.Stmt, bool) {
	return Normalizer{}.Normalize(root)
}

// Try simplifies t as far as possible without seeing the statements that
// follow it, and returns its replacement
func (n Normalizer) Try(t *structured.Try) []structured.Stmt {
	n.FoldFinally(t, nil)
	if IsPointless(t) || IsTrivialRethrow(t) {
		return Inline(t)
	}
	return []structured.Stmt{t}
}

// Normalize applies the try simplifications bottom-up until nothing
// changes. The returned statement replaces root.
func (n Normalizer) Normalize(root structured.Stmt) (structured.Stmt, bool) {
	changed := false
	for {
		c := n.visit(root)
		if t, ok := root.(*structured.Try); ok && (IsPointless(t) || IsTrivialRethrow(t)) {
			root = &structured.Block{Stmts: Inline(t)}
			c = true
		}
		if !c {
			return root, changed
		}
		changed = true
	}
}

func (n Normalizer) visit(s structured.Stmt) bool {
	changed := false
	for _, c := range structured.Children(s) {
		if n.visit(c) {
			changed = true
		}
	}
	b, ok := s.(*structured.Block)
	if !ok {
		return changed
	}
	out := make([]structured.Stmt, 0, len(b.Stmts))
	for i := 0; i < len(b.Stmts); i++ {
		t, ok := b.Stmts[i].(*structured.Try)
		if !ok {
			out = append(out, b.Stmts[i])
			continue
		}
		if k, ok := n.FoldFinally(t, b.Stmts[i+1:]); ok {
			i += k
			changed = true
		}
		if i+1 < len(b.Stmts) && RemoveFinalJumps(t, b.Stmts[i+1]) {
			changed = true
		}
		if IsPointless(t) || IsTrivialRethrow(t) {
			out = append(out, Inline(t)...)
			changed = true
			continue
		}
		out = append(out, t)
	}
	b.Stmts = out
	return changed
}

// IsPointless reports whether t has no handlers and no finally work
func IsPointless(t *structured.Try) bool {
	return len(t.Catches) == 0 && (t.Finally == nil || len(t.Finally.Stmts) == 0)
}

// IsTrivialRethrow reports whether t has one handler that throws the
// caught exception again and nothing else
func IsTrivialRethrow(t *structured.Try) bool {
	if len(t.Catches) != 1 || t.Finally != nil {
		return false
	}
	fin, ok := rethrowing(t.Catches[0].Body)
	return ok && len(fin) == 0
}

// Inline returns the statements that replace a pointless try
func Inline(t *structured.Try) []structured.Stmt {
	out := append([]structured.Stmt(nil), t.Body.Stmts...)
	if t.Finally != nil {
		out = append(out, t.Finally.Stmts...)
	}
	return out
}

// RemoveFinalJumps drops a jump at the end of the try body to the label of
// next, the statement that follows t
func RemoveFinalJumps(t *structured.Try, next structured.Stmt) bool {
	l, ok := next.(*structured.Labeled)
	if !ok || len(t.Body.Stmts) == 0 {
		return false
	}
	last := len(t.Body.Stmts) - 1
	g, ok := t.Body.Stmts[last].(*structured.Goto)
	if !ok || g.Target != l.Label {
		return false
	}
	t.Body.Stmts = t.Body.Stmts[:last]
	return true
}

// rethrowing splits a handler body of the form
//
//	e = caught; F...; throw e
//
// and returns F. A handler that throws the caught exception directly is
// accepted too.
func rethrowing(b *structured.Block) ([]structured.Stmt, bool) {
	stmts := b.Stmts
	for len(stmts) > 0 && isMerge(stmts[0]) {
		stmts = stmts[1:]
	}
	if len(stmts) == 0 {
		return nil, false
	}
	last, ok := stmts[len(stmts)-1].(*structured.Atom)
	if !ok {
		return nil, false
	}
	th, ok := last.S.(*ir.Throw)
	if !ok {
		return nil, false
	}
	if _, ok := th.X.(*ir.CaughtException); ok {
		return stmts[:len(stmts)-1], true
	}
	ref, ok := th.X.(*ir.LocalRef)
	if !ok || len(stmts) < 2 {
		return nil, false
	}
	first, ok := stmts[0].(*structured.Atom)
	if !ok {
		return nil, false
	}
	capture, ok := first.S.(*ir.Assign)
	if !ok || capture.LV != ref.LV {
		return nil, false
	}
	if _, ok := capture.Value.(*ir.CaughtException); !ok {
		return nil, false
	}
	fin := stmts[1 : len(stmts)-1]
	for _, s := range fin {
		if mentionsSlot(s, capture.LV.Slot) {
			return nil, false
		}
	}
	return fin, true
}

func isMerge(s structured.Stmt) bool {
	a, ok := s.(*structured.Atom)
	if !ok {
		return false
	}
	_, ok = a.S.(*ir.Merge)
	return ok
}

func mentionsSlot(s structured.Stmt, slot int) bool {
	found := false
	structured.VisitExprs(s, func(e ir.Expr) {
		if r, ok := e.(*ir.LocalRef); ok && r.LV.Slot == slot {
			found = true
		}
	})
	structured.Walk(s, func(x structured.Stmt) bool {
		if a, ok := x.(*structured.Atom); ok {
			if lv, ok := ir.CreatedLValue(a.S); ok && lv.Slot == slot {
				found = true
			}
		}
		return !found
	})
	return found
}
