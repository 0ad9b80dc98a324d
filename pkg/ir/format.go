package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// Formatter renders expressions and flat statements as Java-like text
type Formatter struct {
	// Names maps locals to display names; nil prints raw SSA names
	Names func(LValue) string
	// Class is the internal name of the enclosing class, used to tell
	// this(...) from super(...) constructor calls
	Class string
}

// Java operator precedence, higher binds tighter
const (
	precTernary = 1
	precOrOr    = 3
	precOr      = 5
	precXor     = 6
	precAnd     = 7
	precEq      = 8
	precRel     = 9
	precShift   = 10
	precAdd     = 11
	precMul     = 12
	precUnary   = 13
	precPrimary = 15
)

func arithPrec(op ArithOp) int {
	switch op {
	case OpAdd, OpSub:
		return precAdd
	case OpMul, OpDiv, OpRem:
		return precMul
	case OpShl, OpShr, OpUshr:
		return precShift
	case OpAnd:
		return precAnd
	case OpOr:
		return precOr
	case OpXor:
		return precXor
	}
	return precUnary
}

func (f *Formatter) name(lv LValue) string {
	if f != nil && f.Names != nil {
		return f.Names(lv)
	}
	return lv.String()
}

// Expr formats e
func (f *Formatter) Expr(e Expr) string {
	s, _ := f.expr(e)
	return s
}

func (f *Formatter) sub(e Expr, min int) string {
	s, p := f.expr(e)
	if p < min {
		return "(" + s + ")"
	}
	return s
}

func (f *Formatter) list(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = f.Expr(e)
	}
	return strings.Join(parts, ", ")
}

// TypeName renders t as Java source, using short names for classes
func TypeName(t jtypes.Type) string { return typeName(t) }

func typeName(t jtypes.Type) string {
	if t == nil {
		return "Object"
	}
	if c, ok := t.(jtypes.Class); ok {
		return jtypes.ShortName(c)
	}
	if a, ok := t.(jtypes.Array); ok {
		return typeName(a.Elem) + "[]"
	}
	return t.String()
}

func (f *Formatter) expr(e Expr) (string, int) {
	switch e := e.(type) {
	case nil:
		return "", precPrimary
	case *LocalRef:
		return f.name(e.LV), precPrimary
	case *Const:
		return formatConst(e), precPrimary
	case *FieldAccess:
		if e.Object == nil {
			return jtypes.ShortName(jtypes.ClassOf(e.Owner)) + "." + e.Name, precPrimary
		}
		return f.sub(e.Object, precPrimary) + "." + e.Name, precPrimary
	case *Unary:
		return e.Op.Symbol() + f.sub(e.X, precUnary), precUnary
	case *Binary:
		p := arithPrec(e.Op)
		return f.sub(e.X, p) + " " + e.Op.Symbol() + " " + f.sub(e.Y, p+1), p
	case *Compare:
		p := precRel
		if e.Op == CmpEq || e.Op == CmpNe {
			p = precEq
		}
		return f.sub(e.X, p) + " " + e.Op.String() + " " + f.sub(e.Y, p+1), p
	case *Not:
		return "!" + f.sub(e.X, precUnary), precUnary
	case *Invoke:
		return f.invoke(e), precPrimary
	case *New:
		return "new " + jtypes.ShortName(jtypes.ClassOf(e.Class)) + "(" + f.list(e.Args) + ")", precPrimary
	case *Uninit:
		return "new " + jtypes.ShortName(jtypes.ClassOf(e.Class)), precPrimary
	case *NewArray:
		var sb strings.Builder
		sb.WriteString("new " + typeName(e.Elem))
		for _, s := range e.Sizes {
			sb.WriteString("[" + f.Expr(s) + "]")
		}
		for i := len(e.Sizes); i < e.Dims; i++ {
			sb.WriteString("[]")
		}
		return sb.String(), precPrimary
	case *Cast:
		return "(" + typeName(e.To) + ")" + f.sub(e.X, precUnary), precUnary
	case *Ternary:
		return f.sub(e.Cond, precOrOr) + " ? " + f.sub(e.Then, precOrOr) + " : " + f.sub(e.Else, precTernary), precTernary
	case *Comma:
		return "(" + f.list(e.Exprs) + ")", precPrimary
	case *ArrayIndex:
		return f.sub(e.Array, precPrimary) + "[" + f.Expr(e.Index) + "]", precPrimary
	case *ArrayLength:
		return f.sub(e.Array, precPrimary) + ".length", precPrimary
	case *InstanceOf:
		return f.sub(e.X, precRel) + " instanceof " + typeName(e.Type), precRel
	case *CaughtException:
		return "caught(" + typeName(TypeOf(e)) + ")", precPrimary
	}
	panic(ContractViolation{Op: "Formatter.Expr", What: "unknown expression"})
}

func (f *Formatter) invoke(e *Invoke) string {
	args := "(" + f.list(e.Args) + ")"
	switch {
	case e.Name == "<init>" && e.Kind == InvokeSpecial:
		if r, ok := e.Object.(*LocalRef); ok && r.LV.Slot == 0 {
			if f != nil && f.Class == e.Owner {
				return "this" + args
			}
			return "super" + args
		}
		return f.sub(e.Object, precPrimary) + ".<init>" + args
	case e.Object == nil && e.Kind == InvokeDynamic:
		return e.Name + args
	case e.Object == nil:
		return jtypes.ShortName(jtypes.ClassOf(e.Owner)) + "." + e.Name + args
	}
	return f.sub(e.Object, precPrimary) + "." + e.Name + args
}

func formatFloat(v float64, bits int) string {
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

func formatConst(c *Const) string {
	if p, ok := c.Type.(jtypes.Prim); ok && p.Kind == jtypes.Boolean {
		if v, ok := c.Value.(int32); ok {
			return strconv.FormatBool(v != 0)
		}
	}
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case int32:
		if p, ok := c.Type.(jtypes.Prim); ok && p.Kind == jtypes.Char && v >= 32 && v < 127 {
			return strconv.QuoteRune(rune(v))
		}
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10) + "L"
	case float32:
		return formatFloat(float64(v), 32) + "f"
	case float64:
		return formatFloat(v, 64)
	case string:
		return strconv.Quote(v)
	case jtypes.Type:
		return typeName(v) + ".class"
	}
	return fmt.Sprint(c.Value)
}

// Stmt formats a flat statement without a trailing semicolon
func (f *Formatter) Stmt(s Stmt) string {
	switch s := s.(type) {
	case *Assign:
		if b, ok := s.Value.(*Binary); ok {
			if r, ok := b.X.(*LocalRef); ok && r.LV.Slot == s.LV.Slot {
				if _, ok := b.Y.(*Const); ok && (b.Op == OpAdd || b.Op == OpSub) {
					return f.name(s.LV) + " " + b.Op.Symbol() + "= " + f.Expr(b.Y)
				}
			}
		}
		return f.name(s.LV) + " = " + f.Expr(s.Value)
	case *Store:
		return f.Expr(s.Target) + " = " + f.Expr(s.Value)
	case *ExprStmt:
		return f.Expr(s.X)
	case *CondJump:
		return fmt.Sprintf("if (%s) goto L%d", f.Expr(s.Cond), s.Target)
	case *Jump:
		return fmt.Sprintf("goto L%d", s.Target)
	case *SwitchJump:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch (%s) {", f.Expr(s.Key))
		for _, c := range s.Cases {
			for _, v := range c.Values {
				fmt.Fprintf(&sb, " %d: goto L%d;", v, c.Target)
			}
		}
		fmt.Fprintf(&sb, " default: goto L%d; }", s.Default)
		return sb.String()
	case *Return:
		if s.Value == nil {
			return "return"
		}
		return "return " + f.Expr(s.Value)
	case *Throw:
		return "throw " + f.Expr(s.X)
	case *Monitor:
		if s.Enter {
			return "monitorenter(" + f.Expr(s.X) + ")"
		}
		return "monitorexit(" + f.Expr(s.X) + ")"
	case *Merge:
		srcs := make([]string, len(s.Sources))
		for i, lv := range s.Sources {
			srcs[i] = f.name(lv)
		}
		return f.name(s.LV) + " = merge(" + strings.Join(srcs, ", ") + ")"
	case *Compound:
		panic(ContractViolation{Op: "Formatter.Stmt", What: "compound statement"})
	}
	panic(ContractViolation{Op: "Formatter.Stmt", What: "unknown statement"})
}
