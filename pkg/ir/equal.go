package ir

import (
	"fmt"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// Equivalence selects how locals are compared when matching statements
// structurally.
type Equivalence int

const (
	// SlotEquivalence compares locals by slot and ignores SSA versions, so
	// copies of the same source code compare equal.
	SlotEquivalence Equivalence = iota
	// ExactEquivalence also requires identical versions
	ExactEquivalence
)

func (q Equivalence) String() string {
	if q == ExactEquivalence {
		return "exact"
	}
	return "slot"
}

// ParseEquivalence parses "slot" or "exact"
func ParseEquivalence(s string) (Equivalence, error) {
	switch s {
	case "slot", "":
		return SlotEquivalence, nil
	case "exact":
		return ExactEquivalence, nil
	}
	return SlotEquivalence, fmt.Errorf("unknown equivalence %q", s)
}

func (q Equivalence) lvalues(a, b LValue) bool {
	if q == ExactEquivalence {
		return a == b
	}
	return a.Slot == b.Slot
}

// Equal reports whether two expressions are structurally equal
func Equal(a, b Expr, q Equivalence) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *LocalRef:
		y, ok := b.(*LocalRef)
		return ok && q.lvalues(x.LV, y.LV)
	case *Const:
		y, ok := b.(*Const)
		if !ok {
			return false
		}
		if xt, ok := x.Value.(jtypes.Type); ok {
			yt, ok := y.Value.(jtypes.Type)
			return ok && jtypes.Equal(xt, yt)
		}
		return x.Value == y.Value && jtypes.Equal(x.Type, y.Type)
	case *FieldAccess:
		y, ok := b.(*FieldAccess)
		return ok && x.Owner == y.Owner && x.Name == y.Name && Equal(x.Object, y.Object, q)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && Equal(x.X, y.X, q)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && Equal(x.X, y.X, q) && Equal(x.Y, y.Y, q)
	case *Compare:
		y, ok := b.(*Compare)
		return ok && x.Op == y.Op && Equal(x.X, y.X, q) && Equal(x.Y, y.Y, q)
	case *Not:
		y, ok := b.(*Not)
		return ok && Equal(x.X, y.X, q)
	case *Invoke:
		y, ok := b.(*Invoke)
		return ok && x.Kind == y.Kind && x.Owner == y.Owner && x.Name == y.Name &&
			x.Desc == y.Desc && Equal(x.Object, y.Object, q) && equalList(x.Args, y.Args, q)
	case *New:
		y, ok := b.(*New)
		return ok && x.Class == y.Class && x.Desc == y.Desc && equalList(x.Args, y.Args, q)
	case *Uninit:
		y, ok := b.(*Uninit)
		return ok && x.Class == y.Class
	case *NewArray:
		y, ok := b.(*NewArray)
		return ok && x.Dims == y.Dims && jtypes.Equal(x.Elem, y.Elem) && equalList(x.Sizes, y.Sizes, q)
	case *Cast:
		y, ok := b.(*Cast)
		return ok && jtypes.Equal(x.To, y.To) && Equal(x.X, y.X, q)
	case *Ternary:
		y, ok := b.(*Ternary)
		return ok && Equal(x.Cond, y.Cond, q) && Equal(x.Then, y.Then, q) && Equal(x.Else, y.Else, q)
	case *Comma:
		y, ok := b.(*Comma)
		return ok && equalList(x.Exprs, y.Exprs, q)
	case *ArrayIndex:
		y, ok := b.(*ArrayIndex)
		return ok && Equal(x.Array, y.Array, q) && Equal(x.Index, y.Index, q)
	case *ArrayLength:
		y, ok := b.(*ArrayLength)
		return ok && Equal(x.Array, y.Array, q)
	case *InstanceOf:
		y, ok := b.(*InstanceOf)
		return ok && jtypes.Equal(x.Type, y.Type) && Equal(x.X, y.X, q)
	case *CaughtException:
		y, ok := b.(*CaughtException)
		return ok && jtypes.Equal(x.Type, y.Type)
	}
	panic(ContractViolation{Op: "Equal", What: "unknown expression"})
}

func equalList(a, b []Expr, q Equivalence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i], q) {
			return false
		}
	}
	return true
}

// EqualStmt reports whether two statements are structurally equal
func EqualStmt(a, b Stmt, q Equivalence) bool {
	switch x := a.(type) {
	case *Assign:
		y, ok := b.(*Assign)
		return ok && q.lvalues(x.LV, y.LV) && Equal(x.Value, y.Value, q)
	case *Store:
		y, ok := b.(*Store)
		return ok && Equal(x.Target, y.Target, q) && Equal(x.Value, y.Value, q)
	case *ExprStmt:
		y, ok := b.(*ExprStmt)
		return ok && Equal(x.X, y.X, q)
	case *CondJump:
		y, ok := b.(*CondJump)
		return ok && x.Target == y.Target && Equal(x.Cond, y.Cond, q)
	case *Jump:
		y, ok := b.(*Jump)
		return ok && x.Target == y.Target
	case *SwitchJump:
		y, ok := b.(*SwitchJump)
		if !ok || x.Default != y.Default || len(x.Cases) != len(y.Cases) || !Equal(x.Key, y.Key, q) {
			return false
		}
		for i := range x.Cases {
			if x.Cases[i].Target != y.Cases[i].Target || len(x.Cases[i].Values) != len(y.Cases[i].Values) {
				return false
			}
			for j := range x.Cases[i].Values {
				if x.Cases[i].Values[j] != y.Cases[i].Values[j] {
					return false
				}
			}
		}
		return true
	case *Return:
		y, ok := b.(*Return)
		return ok && Equal(x.Value, y.Value, q)
	case *Throw:
		y, ok := b.(*Throw)
		return ok && Equal(x.X, y.X, q)
	case *Monitor:
		y, ok := b.(*Monitor)
		return ok && x.Enter == y.Enter && Equal(x.X, y.X, q)
	case *Merge:
		y, ok := b.(*Merge)
		return ok && q.lvalues(x.LV, y.LV)
	case *Compound:
		panic(ContractViolation{Op: "EqualStmt", What: "compound statement"})
	}
	panic(ContractViolation{Op: "EqualStmt", What: "unknown statement"})
}
