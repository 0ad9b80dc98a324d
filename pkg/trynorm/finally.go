package trynorm

import (
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// FoldFinally turns the catch-any handler of t into a finally block when
// every way out of the try and catch bodies carries a copy of the
// handler's work: after t in rest, at the end of each catch body, and
// right before each return, break or continue leaving t. The copies are
// removed. It returns how many statements of rest were consumed.
//
// A throw needs no copy, since the catch-any handler runs for it.
func (n Normalizer) FoldFinally(t *structured.Try, rest []structured.Stmt) (int, bool) {
	if t.Finally != nil {
		return 0, false
	}
	idx := -1
	for i, c := range t.Catches {
		if len(c.Types) == 0 {
			idx = i
		}
	}
	if idx < 0 {
		return 0, false
	}
	fin, ok := rethrowing(t.Catches[idx].Body)
	if !ok {
		return 0, false
	}

	f := &folder{eq: n.Eq, fin: fin}
	consumed := 0
	if !structured.IsAbrupt(t.Body) {
		if !f.matches(rest, 0) {
			return 0, false
		}
		consumed = len(fin)
	}
	if !f.walk(t.Body, nil) {
		return 0, false
	}
	for i, c := range t.Catches {
		if i == idx {
			continue
		}
		if !structured.IsAbrupt(c.Body) {
			at := len(c.Body.Stmts) - len(fin)
			if !f.matches(c.Body.Stmts, at) {
				return 0, false
			}
			f.cut(c.Body, at)
		}
		if !f.walk(c.Body, nil) {
			return 0, false
		}
	}

	f.apply()
	t.Catches = append(t.Catches[:idx:idx], t.Catches[idx+1:]...)
	if len(fin) > 0 {
		t.Finally = &structured.Block{Stmts: append([]structured.Stmt(nil), fin...)}
	}
	return consumed, true
}

// edit is a finally copy to remove from b
type edit struct {
	b  *structured.Block
	at int
}

type folder struct {
	eq    ir.Equivalence
	fin   []structured.Stmt
	edits []edit
}

func (f *folder) matches(stmts []structured.Stmt, at int) bool {
	if at < 0 || at+len(f.fin) > len(stmts) {
		return false
	}
	return newMatcher(f.eq).list(stmts[at:at+len(f.fin)], f.fin)
}

func (f *folder) cut(b *structured.Block, at int) {
	if len(f.fin) > 0 {
		f.edits = append(f.edits, edit{b: b, at: at})
	}
}

// walk checks that every exit below s is preceded by a copy. inner holds
// the loops and switches declared below the try, whose breaks stay inside.
func (f *folder) walk(s structured.Stmt, inner map[*ir.BlockID]bool) bool {
	switch s := s.(type) {
	case *structured.Block:
		for i, c := range s.Stmts {
			if leaves(c, inner) {
				at := i - len(f.fin)
				if !f.matches(s.Stmts, at) {
					return false
				}
				f.cut(s, at)
			}
			if !f.walk(c, inner) {
				return false
			}
		}
		return true
	case *structured.While:
		inner = with(inner, s.ID)
	case *structured.DoWhile:
		inner = with(inner, s.ID)
	case *structured.Switch:
		inner = with(inner, s.ID)
	}
	for _, c := range structured.Children(s) {
		if !f.walk(c, inner) {
			return false
		}
	}
	return true
}

func (f *folder) apply() {
	sort.SliceStable(f.edits, func(i, j int) bool { return f.edits[i].at > f.edits[j].at })
	for _, e := range f.edits {
		e.b.Stmts = append(e.b.Stmts[:e.at:e.at], e.b.Stmts[e.at+len(f.fin):]...)
	}
}

func with(ids map[*ir.BlockID]bool, id *ir.BlockID) map[*ir.BlockID]bool {
	out := make(map[*ir.BlockID]bool, len(ids)+1)
	for k := range ids {
		out[k] = true
	}
	out[id] = true
	return out
}

// leaves reports whether s transfers control out of the try without
// throwing
func leaves(s structured.Stmt, inner map[*ir.BlockID]bool) bool {
	switch s := s.(type) {
	case *structured.Atom:
		_, ok := s.S.(*ir.Return)
		return ok
	case *structured.Break:
		return !inner[s.Target]
	case *structured.Continue:
		return !inner[s.Target]
	}
	return false
}
