package ir

import "github.com/raymyers/ralph-decomp/pkg/jtypes"

// children returns pointers to the child slots of e in evaluation order
func children(e Expr) []*Expr {
	switch e := e.(type) {
	case *LocalRef, *Const, *Uninit, *CaughtException:
		return nil
	case *FieldAccess:
		if e.Object == nil {
			return nil
		}
		return []*Expr{&e.Object}
	case *Unary:
		return []*Expr{&e.X}
	case *Binary:
		return []*Expr{&e.X, &e.Y}
	case *Compare:
		return []*Expr{&e.X, &e.Y}
	case *Not:
		return []*Expr{&e.X}
	case *Invoke:
		var out []*Expr
		if e.Object != nil {
			out = append(out, &e.Object)
		}
		for i := range e.Args {
			out = append(out, &e.Args[i])
		}
		return out
	case *New:
		out := make([]*Expr, len(e.Args))
		for i := range e.Args {
			out[i] = &e.Args[i]
		}
		return out
	case *NewArray:
		out := make([]*Expr, len(e.Sizes))
		for i := range e.Sizes {
			out[i] = &e.Sizes[i]
		}
		return out
	case *Cast:
		return []*Expr{&e.X}
	case *Ternary:
		return []*Expr{&e.Cond, &e.Then, &e.Else}
	case *Comma:
		out := make([]*Expr, len(e.Exprs))
		for i := range e.Exprs {
			out[i] = &e.Exprs[i]
		}
		return out
	case *ArrayIndex:
		return []*Expr{&e.Array, &e.Index}
	case *ArrayLength:
		return []*Expr{&e.Array}
	case *InstanceOf:
		return []*Expr{&e.X}
	}
	panic(ContractViolation{Op: "children", What: "unknown expression"})
}

// VisitExpr calls fn on every node of e in evaluation order (children
// before their parent).
func VisitExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	for _, c := range children(e) {
		VisitExpr(*c, fn)
	}
	fn(e)
}

// stmtRoots returns pointers to the root expressions of s in evaluation
// order. For a Store the target's operands come before the value.
func stmtRoots(s Stmt) []*Expr {
	switch s := s.(type) {
	case *Assign:
		return []*Expr{&s.Value}
	case *Store:
		roots := children(s.Target)
		return append(roots, &s.Value)
	case *ExprStmt:
		return []*Expr{&s.X}
	case *CondJump:
		return []*Expr{&s.Cond}
	case *SwitchJump:
		return []*Expr{&s.Key}
	case *Return:
		if s.Value == nil {
			return nil
		}
		return []*Expr{&s.Value}
	case *Throw:
		return []*Expr{&s.X}
	case *Monitor:
		return []*Expr{&s.X}
	case *Jump, *Merge:
		return nil
	case *Compound:
		panic(ContractViolation{Op: "stmtRoots", What: "compound statement"})
	}
	panic(ContractViolation{Op: "stmtRoots", What: "unknown statement"})
}

// VisitStmtExprs calls fn on every expression node of s in evaluation order
func VisitStmtExprs(s Stmt, fn func(Expr)) {
	for _, r := range stmtRoots(s) {
		VisitExpr(*r, fn)
	}
}

// RewriteExpr rebuilds e bottom-up, replacing each node with fn(node)
func RewriteExpr(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	for _, c := range children(e) {
		*c = RewriteExpr(*c, fn)
	}
	return fn(e)
}

// RewriteStmtExprs applies RewriteExpr to every root expression of s
func RewriteStmtExprs(s Stmt, fn func(Expr) Expr) {
	for _, r := range stmtRoots(s) {
		*r = RewriteExpr(*r, fn)
	}
}

// ReplaceLocal substitutes with for every read of lv in s and reports how
// many reads were replaced.
func ReplaceLocal(s Stmt, lv LValue, with Expr) int {
	n := 0
	RewriteStmtExprs(s, func(e Expr) Expr {
		if r, ok := e.(*LocalRef); ok && r.LV == lv {
			n++
			return with
		}
		return e
	})
	return n
}

// HasSideEffects reports whether evaluating e can change observable state
func HasSideEffects(e Expr) bool {
	found := false
	VisitExpr(e, func(x Expr) {
		switch x.(type) {
		case *Invoke, *New:
			found = true
		}
	})
	return found
}

// MayThrow reports whether evaluating e can raise an exception
func MayThrow(e Expr) bool {
	found := false
	VisitExpr(e, func(x Expr) {
		switch x := x.(type) {
		case *Invoke, *New, *NewArray, *ArrayIndex, *ArrayLength, *Cast:
			found = true
		case *FieldAccess:
			if x.Object != nil {
				found = true
			}
		case *Binary:
			if x.Op.MayThrow() && !isFloatingType(x.Type) {
				found = true
			}
		}
	})
	return found
}

func isFloatingType(t jtypes.Type) bool {
	switch jtypes.StackTypeOf(t) {
	case jtypes.StackFloat, jtypes.StackDouble:
		return t != nil
	}
	return false
}

// ReadsHeap reports whether e reads mutable state other than locals
func ReadsHeap(e Expr) bool {
	found := false
	VisitExpr(e, func(x Expr) {
		switch x.(type) {
		case *FieldAccess, *ArrayIndex, *Invoke:
			found = true
		}
	})
	return found
}

// IsStable reports whether e reads only locals and constants, so its value
// cannot be changed by an intervening call or store.
func IsStable(e Expr) bool {
	return !HasSideEffects(e) && !ReadsHeap(e)
}

// ReadsSlot reports whether e reads local slot
func ReadsSlot(e Expr, slot int) bool {
	found := false
	VisitExpr(e, func(x Expr) {
		if r, ok := x.(*LocalRef); ok && r.LV.Slot == slot {
			found = true
		}
	})
	return found
}

// StmtHasSideEffects reports whether s does more than bind a pure value to a local
func StmtHasSideEffects(s Stmt) bool {
	switch s := s.(type) {
	case *Assign:
		return HasSideEffects(s.Value)
	case *Merge:
		return false
	case *CondJump:
		return HasSideEffects(s.Cond)
	case *Compound:
		panic(ContractViolation{Op: "StmtHasSideEffects", What: "compound statement"})
	}
	return true
}

// Clone returns a deep copy of e
func Clone(e Expr) Expr {
	if e == nil {
		return nil
	}
	var c Expr
	switch e := e.(type) {
	case *LocalRef:
		x := *e
		return &x
	case *Const:
		x := *e
		return &x
	case *Uninit:
		x := *e
		return &x
	case *CaughtException:
		x := *e
		return &x
	case *FieldAccess:
		x := *e
		c = &x
	case *Unary:
		x := *e
		c = &x
	case *Binary:
		x := *e
		c = &x
	case *Compare:
		x := *e
		c = &x
	case *Not:
		x := *e
		c = &x
	case *Invoke:
		x := *e
		x.Args = append([]Expr(nil), e.Args...)
		c = &x
	case *New:
		x := *e
		x.Args = append([]Expr(nil), e.Args...)
		c = &x
	case *NewArray:
		x := *e
		x.Sizes = append([]Expr(nil), e.Sizes...)
		c = &x
	case *Cast:
		x := *e
		c = &x
	case *Ternary:
		x := *e
		c = &x
	case *Comma:
		x := *e
		x.Exprs = append([]Expr(nil), e.Exprs...)
		c = &x
	case *ArrayIndex:
		x := *e
		c = &x
	case *ArrayLength:
		x := *e
		c = &x
	case *InstanceOf:
		x := *e
		c = &x
	default:
		panic(ContractViolation{Op: "Clone", What: "unknown expression"})
	}
	for _, ch := range children(c) {
		*ch = Clone(*ch)
	}
	return c
}
