package ir

// Stmt is the interface for all flat statements
type Stmt interface {
	implStmt()
}

// Assign binds a value to a local variable or stack spill slot
type Assign struct {
	LV    LValue
	Value Expr
}

// Store writes a field or an array element. Target is a *FieldAccess or
// an *ArrayIndex.
type Store struct {
	Target Expr
	Value  Expr
}

// ExprStmt evaluates an expression for its side effects
type ExprStmt struct {
	X Expr
}

// CondJump transfers control to Target when Cond holds
type CondJump struct {
	Cond   Expr
	Target int
}

// Jump transfers control to Target
type Jump struct {
	Target int
}

// SwitchCase maps a set of keys to a target offset
type SwitchCase struct {
	Values []int32
	Target int
}

// SwitchJump is a multi-way jump on Key
type SwitchJump struct {
	Key     Expr
	Cases   []SwitchCase
	Default int
}

// Return leaves the method; Value is nil for void returns
type Return struct {
	Value Expr
}

// Throw raises X
type Throw struct {
	X Expr
}

// Monitor enters or exits the monitor of X
type Monitor struct {
	Enter bool
	X     Expr
}

// Merge is the synthetic join definition inserted where incoming versions
// of a slot differ.
type Merge struct {
	LV      LValue
	Sources []LValue
}

// Compound lets one instruction yield several statements before the
// block's list is flattened. It never escapes the builder.
type Compound struct {
	Stmts []Stmt
}

// Marker methods for Stmt interface
func (*Assign) implStmt()     {}
func (*Store) implStmt()      {}
func (*ExprStmt) implStmt()   {}
func (*CondJump) implStmt()   {}
func (*Jump) implStmt()       {}
func (*SwitchJump) implStmt() {}
func (*Return) implStmt()     {}
func (*Throw) implStmt()      {}
func (*Monitor) implStmt()    {}
func (*Merge) implStmt()      {}
func (*Compound) implStmt()   {}

// Flatten expands Compound statements in place of their wrapper
func Flatten(stmts []Stmt) []Stmt {
	out := make([]Stmt, 0, len(stmts))
	for _, s := range stmts {
		if c, ok := s.(*Compound); ok {
			out = append(out, Flatten(c.Stmts)...)
			continue
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// CreatedLValue returns the local defined by s
func CreatedLValue(s Stmt) (LValue, bool) {
	switch s := s.(type) {
	case *Assign:
		return s.LV, true
	case *Merge:
		return s.LV, true
	case *Compound:
		panic(ContractViolation{Op: "CreatedLValue", What: "compound statement"})
	}
	return LValue{}, false
}

// RValue returns the expression evaluated by s, or nil
func RValue(s Stmt) Expr {
	switch s := s.(type) {
	case *Assign:
		return s.Value
	case *Store:
		return s.Value
	case *ExprStmt:
		return s.X
	case *CondJump:
		return s.Cond
	case *SwitchJump:
		return s.Key
	case *Return:
		return s.Value
	case *Throw:
		return s.X
	case *Monitor:
		return s.X
	case *Compound:
		panic(ContractViolation{Op: "RValue", What: "compound statement"})
	}
	return nil
}

// UsedLValues returns every local read by s, in evaluation order
func UsedLValues(s Stmt) []LValue {
	var out []LValue
	switch s := s.(type) {
	case *Merge:
		return append(out, s.Sources...)
	case *Compound:
		panic(ContractViolation{Op: "UsedLValues", What: "compound statement"})
	}
	VisitStmtExprs(s, func(e Expr) {
		if r, ok := e.(*LocalRef); ok {
			out = append(out, r.LV)
		}
	})
	return out
}

// IsTerminal reports whether control never falls out of s
func IsTerminal(s Stmt) bool {
	switch s.(type) {
	case *Jump, *SwitchJump, *Return, *Throw:
		return true
	}
	return false
}
