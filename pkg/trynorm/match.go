package trynorm

import (
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// matcher compares statement trees. Copies of a finally block allocate
// their own loop and switch identifiers, so identifiers only need to
// correspond one to one.
type matcher struct {
	eq  ir.Equivalence
	ids map[*ir.BlockID]*ir.BlockID
}

func newMatcher(eq ir.Equivalence) *matcher {
	return &matcher{eq: eq, ids: make(map[*ir.BlockID]*ir.BlockID)}
}

func (m *matcher) id(a, b *ir.BlockID) bool {
	if a == nil || b == nil {
		return a == b
	}
	if x, ok := m.ids[a]; ok {
		return x == b
	}
	m.ids[a] = b
	return true
}

func (m *matcher) list(a, b []structured.Stmt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !m.stmt(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (m *matcher) block(a, b *structured.Block) bool {
	if a == nil || b == nil {
		return a == b
	}
	return m.list(a.Stmts, b.Stmts)
}

func (m *matcher) stmt(a, b structured.Stmt) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *structured.Block:
		y, ok := b.(*structured.Block)
		return ok && m.list(x.Stmts, y.Stmts)
	case *structured.Atom:
		y, ok := b.(*structured.Atom)
		return ok && ir.EqualStmt(x.S, y.S, m.eq)
	case *structured.If:
		y, ok := b.(*structured.If)
		return ok && ir.Equal(x.Cond, y.Cond, m.eq) && m.stmt(x.Then, y.Then) && m.stmt(x.Else, y.Else)
	case *structured.While:
		y, ok := b.(*structured.While)
		return ok && m.id(x.ID, y.ID) && ir.Equal(x.Cond, y.Cond, m.eq) && m.stmt(x.Body, y.Body)
	case *structured.DoWhile:
		y, ok := b.(*structured.DoWhile)
		return ok && m.id(x.ID, y.ID) && ir.Equal(x.Cond, y.Cond, m.eq) && m.stmt(x.Body, y.Body)
	case *structured.Switch:
		y, ok := b.(*structured.Switch)
		if !ok || !m.id(x.ID, y.ID) || !ir.Equal(x.Key, y.Key, m.eq) || len(x.Cases) != len(y.Cases) {
			return false
		}
		for i, c := range x.Cases {
			d := y.Cases[i]
			if c.Default != d.Default || !sameValues(c.Values, d.Values) || !m.block(c.Body, d.Body) {
				return false
			}
		}
		return true
	case *structured.Try:
		y, ok := b.(*structured.Try)
		if !ok || !m.id(x.ID, y.ID) || !m.block(x.Body, y.Body) || !m.block(x.Finally, y.Finally) ||
			len(x.Catches) != len(y.Catches) {
			return false
		}
		for i, c := range x.Catches {
			d := y.Catches[i]
			if !sameTypes(c.Types, d.Types) || !m.block(c.Body, d.Body) {
				return false
			}
		}
		return true
	case *structured.Break:
		y, ok := b.(*structured.Break)
		return ok && m.id(x.Target, y.Target)
	case *structured.Continue:
		y, ok := b.(*structured.Continue)
		return ok && m.id(x.Target, y.Target)
	case *structured.Comment:
		y, ok := b.(*structured.Comment)
		return ok && x.Text == y.Text
	case *structured.Labeled, *structured.Goto, *structured.CondGoto:
		// offsets of two copies never agree
		return false
	}
	panic(ir.ContractViolation{Op: "trynorm.match", What: "unknown structured statement"})
}

func sameValues(a, b []int32) bool {
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

func sameTypes(a, b []jtypes.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !jtypes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
