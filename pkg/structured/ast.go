// Package structured defines the nested statement tree produced by the
// structuring engine: blocks, conditionals, loops, switches and try
// statements over flat IR statements, plus the raw jumps that remain in
// fallback output.
package structured

import (
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// Stmt is the interface for structured statements
type Stmt interface {
	implStructuredStmt()
}

// Block is a statement sequence and the unit of variable scope
type Block struct {
	Stmts []Stmt
}

// Atom wraps a flat statement
type Atom struct {
	S ir.Stmt
}

// If is a conditional; Else is nil when absent
type If struct {
	Cond ir.Expr
	Then Stmt
	Else Stmt
}

// While is a pre-tested loop. A nil Cond loops forever.
type While struct {
	ID   *ir.BlockID
	Cond ir.Expr
	Body Stmt
}

// DoWhile is a post-tested loop
type DoWhile struct {
	ID   *ir.BlockID
	Body Stmt
	Cond ir.Expr
}

// Case is one arm of a switch. Bodies fall through to the next case
// unless they end in an abrupt statement.
type Case struct {
	Values  []int32
	Default bool
	Body    *Block
}

// Switch is a multi-way branch
type Switch struct {
	ID    *ir.BlockID
	Key   ir.Expr
	Cases []*Case
}

// Catch is one handler of a try; an empty Types catches everything
type Catch struct {
	Try   *ir.BlockID
	Types []jtypes.Type
	Body  *Block
}

// Try is a protected region with its handlers; Finally is nil when absent
type Try struct {
	ID      *ir.BlockID
	Body    *Block
	Catches []*Catch
	Finally *Block
}

// Break leaves the loop or switch named by Target
type Break struct {
	Target *ir.BlockID
}

// Continue starts the next iteration of the loop named by Target
type Continue struct {
	Target *ir.BlockID
}

// Labeled marks Body as the target of raw jumps to bytecode offset Label.
// Only fallback output contains it.
type Labeled struct {
	Label int
	Body  Stmt
}

// Goto is a raw jump left by the fallback
type Goto struct {
	Target int
}

// CondGoto is a raw conditional jump left by the fallback
type CondGoto struct {
	Cond   ir.Expr
	Target int
}

// Comment is a decompiler note rendered in the output
type Comment struct {
	Text string
}

// Marker methods for Stmt interface
func (*Block) implStructuredStmt()    {}
func (*Atom) implStructuredStmt()     {}
func (*If) implStructuredStmt()       {}
func (*While) implStructuredStmt()    {}
func (*DoWhile) implStructuredStmt()  {}
func (*Switch) implStructuredStmt()   {}
func (*Try) implStructuredStmt()      {}
func (*Break) implStructuredStmt()    {}
func (*Continue) implStructuredStmt() {}
func (*Labeled) implStructuredStmt()  {}
func (*Goto) implStructuredStmt()     {}
func (*CondGoto) implStructuredStmt() {}
func (*Comment) implStructuredStmt()  {}

// NewBlock wraps stmts in a Block, reusing s when it already is one
func NewBlock(stmts ...Stmt) *Block {
	if len(stmts) == 1 {
		if b, ok := stmts[0].(*Block); ok {
			return b
		}
	}
	return &Block{Stmts: stmts}
}

// IsAbrupt reports whether control never completes s normally
func IsAbrupt(s Stmt) bool {
	switch s := s.(type) {
	case *Break, *Continue, *Goto:
		return true
	case *Atom:
		switch s.S.(type) {
		case *ir.Return, *ir.Throw, *ir.Jump, *ir.SwitchJump:
			return true
		}
	case *Labeled:
		return IsAbrupt(s.Body)
	case *Block:
		return len(s.Stmts) > 0 && IsAbrupt(s.Stmts[len(s.Stmts)-1])
	case *If:
		return s.Else != nil && IsAbrupt(s.Then) && IsAbrupt(s.Else)
	case *Try:
		if s.Finally != nil && IsAbrupt(s.Finally) {
			return true
		}
		if !IsAbrupt(s.Body) {
			return false
		}
		for _, c := range s.Catches {
			if !IsAbrupt(c.Body) {
				return false
			}
		}
		return true
	}
	return false
}

// Children returns the direct sub-statements of s in source order
func Children(s Stmt) []Stmt {
	switch s := s.(type) {
	case *Block:
		return s.Stmts
	case *If:
		if s.Else == nil {
			return []Stmt{s.Then}
		}
		return []Stmt{s.Then, s.Else}
	case *While:
		return []Stmt{s.Body}
	case *DoWhile:
		return []Stmt{s.Body}
	case *Switch:
		out := make([]Stmt, len(s.Cases))
		for i, c := range s.Cases {
			out[i] = c.Body
		}
		return out
	case *Try:
		out := []Stmt{s.Body}
		for _, c := range s.Catches {
			out = append(out, c.Body)
		}
		if s.Finally != nil {
			out = append(out, s.Finally)
		}
		return out
	case *Labeled:
		return []Stmt{s.Body}
	case *Atom, *Break, *Continue, *Goto, *CondGoto, *Comment:
		return nil
	}
	panic(ir.ContractViolation{Op: "Children", What: "unknown structured statement"})
}

// exprRoots returns pointers to the expressions held directly by s
func exprRoots(s Stmt) []*ir.Expr {
	switch s := s.(type) {
	case *If:
		return []*ir.Expr{&s.Cond}
	case *While:
		if s.Cond == nil {
			return nil
		}
		return []*ir.Expr{&s.Cond}
	case *DoWhile:
		return []*ir.Expr{&s.Cond}
	case *Switch:
		return []*ir.Expr{&s.Key}
	case *CondGoto:
		return []*ir.Expr{&s.Cond}
	}
	return nil
}
