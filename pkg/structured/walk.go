package structured

import (
	"errors"
	"fmt"
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// ErrScoping is returned when a break, continue or catch refers to a
// BlockID that does not enclose it
var ErrScoping = errors.New("block identifier out of scope")

// Walk visits root and its descendants in pre-order. Children of a node
// are skipped when fn returns false.
func Walk(root Stmt, fn func(Stmt) bool) {
	if root == nil || !fn(root) {
		return
	}
	for _, c := range Children(root) {
		Walk(c, fn)
	}
}

// VisitExprs calls fn on every expression node in the tree, in source order
func VisitExprs(root Stmt, fn func(ir.Expr)) {
	Walk(root, func(s Stmt) bool {
		if a, ok := s.(*Atom); ok {
			ir.VisitStmtExprs(a.S, fn)
			return true
		}
		for _, r := range exprRoots(s) {
			ir.VisitExpr(*r, fn)
		}
		return true
	})
}

// RewriteExprs rebuilds every expression in the tree bottom-up with fn
func RewriteExprs(root Stmt, fn func(ir.Expr) ir.Expr) {
	Walk(root, func(s Stmt) bool {
		if a, ok := s.(*Atom); ok {
			ir.RewriteStmtExprs(a.S, fn)
			return true
		}
		for _, r := range exprRoots(s) {
			*r = ir.RewriteExpr(*r, fn)
		}
		return true
	})
}

// IsFullyStructured reports whether the tree is free of raw jumps and
// labeled fallback regions
func IsFullyStructured(root Stmt) bool {
	ok := true
	Walk(root, func(s Stmt) bool {
		switch s := s.(type) {
		case *Goto, *CondGoto, *Labeled:
			ok = false
		case *Atom:
			switch s.S.(type) {
			case *ir.Jump, *ir.CondJump, *ir.SwitchJump:
				ok = false
			}
		}
		return ok
	})
	return ok
}

// CheckScoping verifies that every Break and Continue names an enclosing
// loop (or, for Break, switch) and that every Catch names its own Try.
func CheckScoping(root Stmt) error {
	var enclosing []Stmt
	var check func(s Stmt) error
	check = func(s Stmt) error {
		switch s := s.(type) {
		case *Break:
			for _, e := range enclosing {
				switch e := e.(type) {
				case *While:
					if e.ID == s.Target {
						return nil
					}
				case *DoWhile:
					if e.ID == s.Target {
						return nil
					}
				case *Switch:
					if e.ID == s.Target {
						return nil
					}
				}
			}
			return fmt.Errorf("%w: break %s", ErrScoping, s.Target)
		case *Continue:
			for _, e := range enclosing {
				switch e := e.(type) {
				case *While:
					if e.ID == s.Target {
						return nil
					}
				case *DoWhile:
					if e.ID == s.Target {
						return nil
					}
				}
			}
			return fmt.Errorf("%w: continue %s", ErrScoping, s.Target)
		case *Try:
			for _, c := range s.Catches {
				if c.Try != s.ID {
					return fmt.Errorf("%w: catch of %s inside %s", ErrScoping, c.Try, s.ID)
				}
			}
		}
		enclosing = append(enclosing, s)
		defer func() { enclosing = enclosing[:len(enclosing)-1] }()
		for _, c := range Children(s) {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	}
	if root == nil {
		return nil
	}
	return check(root)
}

// CollectTypes returns every class type the tree refers to, innermost
// element types of arrays included, sorted by name
func CollectTypes(root Stmt) []jtypes.Type {
	seen := make(map[string]jtypes.Type)
	add := func(t jtypes.Type) {
		t, _ = jtypes.Innermost(t)
		if c, ok := t.(jtypes.Class); ok {
			seen[c.Name] = c
		}
	}
	addClass := func(name string) {
		if name == "" {
			return
		}
		if t, err := jtypes.ParseClassOrArray(name); err == nil {
			add(t)
		}
	}
	VisitExprs(root, func(e ir.Expr) {
		switch e := e.(type) {
		case *ir.LocalRef:
			add(e.Type)
		case *ir.Const:
			if t, ok := e.Value.(jtypes.Type); ok {
				add(t)
			} else {
				add(e.Type)
			}
		case *ir.FieldAccess:
			if e.Object == nil {
				addClass(e.Owner)
			}
			add(e.Type)
		case *ir.Invoke:
			if e.Object == nil && e.Kind != ir.InvokeDynamic {
				addClass(e.Owner)
			}
		case *ir.New:
			addClass(e.Class)
		case *ir.NewArray:
			add(e.Elem)
		case *ir.Cast:
			add(e.To)
		case *ir.InstanceOf:
			add(e.Type)
		case *ir.CaughtException:
			add(ir.TypeOf(e))
		}
	})
	Walk(root, func(s Stmt) bool {
		if t, ok := s.(*Try); ok {
			for _, c := range t.Catches {
				for _, ct := range c.Types {
					add(ct)
				}
			}
		}
		return true
	})

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]jtypes.Type, len(names))
	for i, n := range names {
		out[i] = seen[n]
	}
	return out
}

// DiscoverScopes returns, for every variable of vars, the innermost Block
// that lexically encloses all of its occurrences. Variables are keyed by
// their representative value.
func DiscoverScopes(root Stmt, vars *Vars) map[ir.LValue]*Block {
	common := make(map[ir.LValue][]*Block)
	var path []*Block

	note := func(lv ir.LValue) {
		v := vars.Of(lv)
		prev, ok := common[v]
		if !ok {
			common[v] = append([]*Block(nil), path...)
			return
		}
		n := 0
		for n < len(prev) && n < len(path) && prev[n] == path[n] {
			n++
		}
		common[v] = prev[:n]
	}
	noteExpr := func(e ir.Expr) {
		ir.VisitExpr(e, func(x ir.Expr) {
			if r, ok := x.(*ir.LocalRef); ok {
				note(r.LV)
			}
		})
	}

	var walk func(s Stmt)
	walk = func(s Stmt) {
		switch s := s.(type) {
		case *Block:
			path = append(path, s)
			defer func() { path = path[:len(path)-1] }()
		case *Atom:
			if lv, ok := ir.CreatedLValue(s.S); ok {
				note(lv)
			}
			if m, ok := s.S.(*ir.Merge); ok {
				for _, src := range m.Sources {
					note(src)
				}
				return
			}
			ir.VisitStmtExprs(s.S, noteExpr)
			return
		}
		for _, r := range exprRoots(s) {
			noteExpr(*r)
		}
		for _, c := range Children(s) {
			walk(c)
		}
	}
	walk(root)

	out := make(map[ir.LValue]*Block)
	for v, p := range common {
		if len(p) > 0 {
			out[v] = p[len(p)-1]
		}
	}
	return out
}
