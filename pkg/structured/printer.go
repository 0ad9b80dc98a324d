package structured

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// Decl is a local declared without an initializer
type Decl struct {
	Var  ir.LValue
	Type jtypes.Type
}

// Decls records where each local variable is declared
type Decls struct {
	// At holds assignments that double as declarations
	At map[*ir.Assign]jtypes.Type
	// Top holds locals declared at the start of a block
	Top map[*Block][]Decl
}

// Declarations places a declaration for every variable in its scope
// block. The first statement of the scope block that mentions the
// variable declares it when that statement is a plain assignment to it;
// otherwise the variable is declared at the top of the block. Variables
// rejected by keep are left undeclared.
func Declarations(scopes map[ir.LValue]*Block, vars *Vars, keep func(ir.LValue) bool, typeOf func(ir.LValue) jtypes.Type) *Decls {
	d := &Decls{At: make(map[*ir.Assign]jtypes.Type), Top: make(map[*Block][]Decl)}
	list := make([]ir.LValue, 0, len(scopes))
	for v := range scopes {
		if keep == nil || keep(v) {
			list = append(list, v)
		}
	}
	sortLValues(list)
	for _, v := range list {
		b := scopes[v]
		t := typeOf(v)
		if a := firstMention(b, vars, v); a != nil {
			d.At[a] = t
			continue
		}
		d.Top[b] = append(d.Top[b], Decl{Var: v, Type: t})
	}
	return d
}

func sortLValues(list []ir.LValue) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Slot != list[j].Slot {
			return list[i].Slot < list[j].Slot
		}
		return list[i].Version < list[j].Version
	})
}

// firstMention returns the assignment declaring v when it is the first
// statement of b to mention it and does not read it
func firstMention(b *Block, vars *Vars, v ir.LValue) *ir.Assign {
	for _, s := range b.Stmts {
		if !mentions(s, vars, v) {
			continue
		}
		a, ok := s.(*Atom)
		if !ok {
			return nil
		}
		as, ok := a.S.(*ir.Assign)
		if !ok || vars.Of(as.LV) != v || readsVar(as.Value, vars, v) {
			return nil
		}
		return as
	}
	return nil
}

func readsVar(e ir.Expr, vars *Vars, v ir.LValue) bool {
	found := false
	ir.VisitExpr(e, func(x ir.Expr) {
		if r, ok := x.(*ir.LocalRef); ok && vars.Of(r.LV) == v {
			found = true
		}
	})
	return found
}

func mentions(s Stmt, vars *Vars, v ir.LValue) bool {
	found := false
	Walk(s, func(x Stmt) bool {
		if a, ok := x.(*Atom); ok {
			if lv, ok := ir.CreatedLValue(a.S); ok && vars.Of(lv) == v {
				found = true
			}
			for _, lv := range ir.UsedLValues(a.S) {
				if vars.Of(lv) == v {
					found = true
				}
			}
		}
		return !found
	})
	if found {
		return true
	}
	VisitExprs(s, func(e ir.Expr) {
		if r, ok := e.(*ir.LocalRef); ok && vars.Of(r.LV) == v {
			found = true
		}
	})
	return found
}

// Printer renders a structured tree as Java-like source
type Printer struct {
	w      io.Writer
	indent int

	// Fmt formats expressions; nil prints raw SSA names
	Fmt *ir.Formatter
	// Decls places variable declarations; nil prints none
	Decls *Decls

	labels    map[*ir.BlockID]bool
	breakable []*ir.BlockID
	loops     []*ir.BlockID
}

// NewPrinter creates a new structured tree printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0}
}

// PrintBody prints the statements of a method body without braces
func (p *Printer) PrintBody(b *Block) {
	p.labels = usedLabels(b)
	p.printStmts(b)
}

// PrintStmt prints a single statement
func (p *Printer) PrintStmt(s Stmt) {
	p.labels = usedLabels(s)
	p.printStmt(s)
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		fmt.Fprint(p.w, "    ")
	}
}

func (p *Printer) line(format string, args ...any) {
	p.writeIndent()
	fmt.Fprintf(p.w, format, args...)
	fmt.Fprintln(p.w)
}

func (p *Printer) name(lv ir.LValue) string {
	if p.Fmt != nil && p.Fmt.Names != nil {
		return p.Fmt.Names(lv)
	}
	return fmt.Sprintf("v%d", lv.Slot)
}

// printStmts prints the contents of b, declarations first
func (p *Printer) printStmts(b *Block) {
	if p.Decls != nil {
		for _, d := range p.Decls.Top[b] {
			p.line("%s %s;", ir.TypeName(d.Type), p.name(d.Var))
		}
	}
	for _, s := range b.Stmts {
		p.printStmt(s)
	}
}

// printBody prints s as the inside of a braced construct
func (p *Printer) printBody(s Stmt) {
	p.indent++
	if b, ok := s.(*Block); ok {
		p.printStmts(b)
	} else if s != nil {
		p.printStmt(s)
	}
	p.indent--
}

func (p *Printer) labelPrefix(id *ir.BlockID) string {
	if p.labels[id] {
		return id.String() + ": "
	}
	return ""
}

func (p *Printer) printStmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		p.line("{")
		p.printBody(s)
		p.line("}")

	case *Atom:
		text := p.Fmt.Stmt(s.S)
		if a, ok := s.S.(*ir.Assign); ok && p.Decls != nil {
			if t, ok := p.Decls.At[a]; ok {
				text = ir.TypeName(t) + " " + text
			}
		}
		p.line("%s;", text)

	case *If:
		p.writeIndent()
		p.printIf(s)

	case *While:
		cond := "true"
		if s.Cond != nil {
			cond = p.Fmt.Expr(s.Cond)
		}
		p.line("%swhile (%s) {", p.labelPrefix(s.ID), cond)
		p.enterLoop(s.ID)
		p.printBody(s.Body)
		p.leave(true)
		p.line("}")

	case *DoWhile:
		p.line("%sdo {", p.labelPrefix(s.ID))
		p.enterLoop(s.ID)
		p.printBody(s.Body)
		p.leave(true)
		p.line("} while (%s);", p.Fmt.Expr(s.Cond))

	case *Switch:
		p.line("%sswitch (%s) {", p.labelPrefix(s.ID), p.Fmt.Expr(s.Key))
		p.breakable = append(p.breakable, s.ID)
		for _, c := range s.Cases {
			for _, v := range c.Values {
				p.line("case %d:", v)
			}
			if c.Default {
				p.line("default:")
			}
			p.printBody(c.Body)
		}
		p.leave(false)
		p.line("}")

	case *Try:
		p.line("try {")
		p.printBody(s.Body)
		for _, c := range s.Catches {
			p.printCatch(c)
		}
		if s.Finally != nil {
			p.line("} finally {")
			p.printBody(s.Finally)
		}
		p.line("}")

	case *Break:
		if len(p.breakable) > 0 && p.breakable[len(p.breakable)-1] == s.Target {
			p.line("break;")
		} else {
			p.line("break %s;", s.Target)
		}

	case *Continue:
		if len(p.loops) > 0 && p.loops[len(p.loops)-1] == s.Target {
			p.line("continue;")
		} else {
			p.line("continue %s;", s.Target)
		}

	case *Labeled:
		p.indent--
		p.line("L%d:", s.Label)
		p.indent++
		if b, ok := s.Body.(*Block); ok {
			p.printStmts(b)
		} else {
			p.printStmt(s.Body)
		}

	case *Goto:
		p.line("goto L%d;", s.Target)

	case *CondGoto:
		p.line("if (%s) goto L%d;", p.Fmt.Expr(s.Cond), s.Target)

	case *Comment:
		p.line("// %s", s.Text)

	default:
		panic(ir.ContractViolation{Op: "Printer.printStmt", What: fmt.Sprintf("%T", s)})
	}
}

// printIf prints an if statement whose indentation is already written,
// chaining else-if branches
func (p *Printer) printIf(s *If) {
	fmt.Fprintf(p.w, "if (%s) {\n", p.Fmt.Expr(s.Cond))
	p.printBody(s.Then)
	if s.Else == nil {
		p.line("}")
		return
	}
	if next := elseIf(s.Else); next != nil {
		p.writeIndent()
		fmt.Fprint(p.w, "} else ")
		p.printIf(next)
		return
	}
	p.line("} else {")
	p.printBody(s.Else)
	p.line("}")
}

func elseIf(s Stmt) *If {
	if b, ok := s.(*Block); ok && len(b.Stmts) == 1 {
		s = b.Stmts[0]
	}
	i, _ := s.(*If)
	return i
}

func (p *Printer) printCatch(c *Catch) {
	types := make([]string, len(c.Types))
	for i, t := range c.Types {
		types[i] = ir.TypeName(t)
	}
	if len(types) == 0 {
		types = []string{"Throwable"}
	}
	body := c.Body
	name := "ex"
	if len(body.Stmts) > 0 {
		if a, ok := body.Stmts[0].(*Atom); ok {
			if as, ok := a.S.(*ir.Assign); ok {
				if _, ok := as.Value.(*ir.CaughtException); ok {
					name = p.Fmt.Expr(&ir.LocalRef{LV: as.LV})
					body = &Block{Stmts: body.Stmts[1:]}
				}
			}
		}
	}
	p.line("} catch (%s %s) {", strings.Join(types, " | "), name)
	p.printBody(body)
}

func (p *Printer) enterLoop(id *ir.BlockID) {
	p.breakable = append(p.breakable, id)
	p.loops = append(p.loops, id)
}

func (p *Printer) leave(loop bool) {
	p.breakable = p.breakable[:len(p.breakable)-1]
	if loop {
		p.loops = p.loops[:len(p.loops)-1]
	}
}

// usedLabels finds the loops and switches that are the target of a break
// or continue from inside a nested breakable statement
func usedLabels(root Stmt) map[*ir.BlockID]bool {
	used := make(map[*ir.BlockID]bool)
	var breakable, loops []*ir.BlockID
	var walk func(s Stmt)
	walk = func(s Stmt) {
		switch s := s.(type) {
		case *Break:
			if len(breakable) == 0 || breakable[len(breakable)-1] != s.Target {
				used[s.Target] = true
			}
			return
		case *Continue:
			if len(loops) == 0 || loops[len(loops)-1] != s.Target {
				used[s.Target] = true
			}
			return
		case *While:
			breakable, loops = append(breakable, s.ID), append(loops, s.ID)
			defer func() { breakable, loops = breakable[:len(breakable)-1], loops[:len(loops)-1] }()
		case *DoWhile:
			breakable, loops = append(breakable, s.ID), append(loops, s.ID)
			defer func() { breakable, loops = breakable[:len(breakable)-1], loops[:len(loops)-1] }()
		case *Switch:
			breakable = append(breakable, s.ID)
			defer func() { breakable = breakable[:len(breakable)-1] }()
		}
		for _, c := range Children(s) {
			walk(c)
		}
	}
	walk(root)
	return used
}
