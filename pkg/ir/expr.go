package ir

import "github.com/raymyers/ralph-decomp/pkg/jtypes"

// Expr is the interface for all expressions. Expressions are trees: a
// parent exclusively owns its children.
type Expr interface {
	implExpr()
}

// ArithOp is an arithmetic operator
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpShl
	OpShr
	OpUshr
	OpAnd
	OpOr
	OpXor
)

// Symbol returns the display symbol of the operator
func (op ArithOp) Symbol() string {
	symbols := []string{"+", "-", "*", "/", "%", "-", "<<", ">>", ">>>", "&", "|", "^"}
	if int(op) < len(symbols) {
		return symbols[op]
	}
	return "?"
}

// MayThrow reports whether the operator can raise (integer division by zero)
func (op ArithOp) MayThrow() bool {
	return op == OpDiv || op == OpRem
}

// CmpOp is a comparison operator
type CmpOp int

const (
	CmpEq CmpOp = iota // equal
	CmpNe              // not equal
	CmpLt              // less than
	CmpGe              // greater than or equal
	CmpGt              // greater than
	CmpLe              // less than or equal
)

func (c CmpOp) String() string {
	names := []string{"==", "!=", "<", ">=", ">", "<="}
	if int(c) < len(names) {
		return names[c]
	}
	return "?"
}

// Negate returns the negated comparison
func (c CmpOp) Negate() CmpOp {
	switch c {
	case CmpEq:
		return CmpNe
	case CmpNe:
		return CmpEq
	case CmpLt:
		return CmpGe
	case CmpGe:
		return CmpLt
	case CmpGt:
		return CmpLe
	case CmpLe:
		return CmpGt
	}
	return c
}

// InvokeKind is the dispatch kind of a method invocation
type InvokeKind int

const (
	InvokeVirtual InvokeKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
	InvokeDynamic
)

// LocalRef reads a local variable or stack spill slot
type LocalRef struct {
	LV   LValue
	Type jtypes.Type // nil when unknown
}

// Const is a literal. Value is int32, int64, float32, float64, string,
// nil (the null literal) or jtypes.Type (a class literal).
type Const struct {
	Type  jtypes.Type
	Value any
}

// FieldAccess reads a field; Object is nil for static fields
type FieldAccess struct {
	Object Expr
	Owner  string
	Name   string
	Type   jtypes.Type
}

// Unary is a unary arithmetic operation
type Unary struct {
	Op   ArithOp
	X    Expr
	Type jtypes.Type
}

// Binary is a binary arithmetic operation
type Binary struct {
	Op   ArithOp
	X, Y Expr
	Type jtypes.Type
}

// Compare is a boolean comparison
type Compare struct {
	Op   CmpOp
	X, Y Expr
}

// Not is boolean negation
type Not struct {
	X Expr
}

// Invoke is a method invocation; Object is nil for static and dynamic calls
type Invoke struct {
	Kind   InvokeKind
	Object Expr
	Owner  string
	Name   string
	Desc   string
	Args   []Expr
}

// New constructs an object with its constructor arguments
type New struct {
	Class string
	Desc  string
	Args  []Expr
}

// Uninit is an allocated object whose constructor has not run
type Uninit struct {
	Class string
}

// NewArray allocates an array. Dims is the total number of dimensions of
// the result and Sizes holds the dimensions given explicit sizes.
type NewArray struct {
	Elem  jtypes.Type // innermost element type
	Dims  int
	Sizes []Expr
}

// NumDims returns the number of dimensions of the allocated array
func (n *NewArray) NumDims() int { return n.Dims }

// NumSizedDims returns how many dimensions carry an explicit size
func (n *NewArray) NumSizedDims() int { return len(n.Sizes) }

// Cast converts X to type To
type Cast struct {
	To jtypes.Type
	X  Expr
}

// Ternary is a conditional expression
type Ternary struct {
	Cond, Then, Else Expr
}

// Comma evaluates every expression in order and yields the last
type Comma struct {
	Exprs []Expr
}

// ArrayIndex reads an array element
type ArrayIndex struct {
	Array, Index Expr
	Type         jtypes.Type
}

// ArrayLength reads the length of an array
type ArrayLength struct {
	Array Expr
}

// InstanceOf tests the dynamic type of X
type InstanceOf struct {
	X    Expr
	Type jtypes.Type
}

// CaughtException is the exception object on entry to a handler
type CaughtException struct {
	Type jtypes.Type // nil for catch-any
}

// Marker methods for Expr interface
func (*LocalRef) implExpr()        {}
func (*Const) implExpr()           {}
func (*FieldAccess) implExpr()     {}
func (*Unary) implExpr()           {}
func (*Binary) implExpr()          {}
func (*Compare) implExpr()         {}
func (*Not) implExpr()             {}
func (*Invoke) implExpr()          {}
func (*New) implExpr()             {}
func (*Uninit) implExpr()          {}
func (*NewArray) implExpr()        {}
func (*Cast) implExpr()            {}
func (*Ternary) implExpr()         {}
func (*Comma) implExpr()           {}
func (*ArrayIndex) implExpr()      {}
func (*ArrayLength) implExpr()     {}
func (*InstanceOf) implExpr()      {}
func (*CaughtException) implExpr() {}

// Negate returns the logical negation of a boolean expression, flipping
// comparisons and removing double negation. Ordering tests of float and
// double operands are wrapped instead, as they are all false for NaN.
func Negate(e Expr) Expr {
	switch e := e.(type) {
	case *Compare:
		if e.Op != CmpEq && e.Op != CmpNe && (isFloating(e.X) || isFloating(e.Y)) {
			return &Not{X: e}
		}
		return &Compare{Op: e.Op.Negate(), X: e.X, Y: e.Y}
	case *Not:
		return e.X
	}
	return &Not{X: e}
}

func isFloating(e Expr) bool {
	p, ok := TypeOf(e).(jtypes.Prim)
	return ok && (p.Kind == jtypes.Float || p.Kind == jtypes.Double)
}

// TypeOf returns the static type of e, or nil when it is not known
func TypeOf(e Expr) jtypes.Type {
	switch e := e.(type) {
	case *LocalRef:
		return e.Type
	case *Const:
		return e.Type
	case *FieldAccess:
		return e.Type
	case *Unary:
		return e.Type
	case *Binary:
		return e.Type
	case *Compare, *Not, *InstanceOf:
		return jtypes.Bool()
	case *Invoke:
		if mt, err := jtypes.ParseMethod(e.Desc); err == nil {
			return mt.Return
		}
	case *New:
		return jtypes.ClassOf(e.Class)
	case *Uninit:
		return jtypes.ClassOf(e.Class)
	case *NewArray:
		return jtypes.ArrayOf(e.Elem, e.Dims)
	case *Cast:
		return e.To
	case *Ternary:
		if t := TypeOf(e.Then); t != nil {
			return t
		}
		return TypeOf(e.Else)
	case *Comma:
		if len(e.Exprs) > 0 {
			return TypeOf(e.Exprs[len(e.Exprs)-1])
		}
	case *ArrayIndex:
		return e.Type
	case *ArrayLength:
		return jtypes.IntT()
	case *CaughtException:
		if e.Type == nil {
			return jtypes.Throwable()
		}
		return e.Type
	case nil:
		return nil
	default:
		panic(ContractViolation{Op: "TypeOf", What: "unknown expression"})
	}
	return nil
}
