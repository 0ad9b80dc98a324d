package cfg

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/ir"
)

// Printer outputs a control-flow graph for the -dcfg and -dflat dumps
type Printer struct {
	w io.Writer
	// Stmts prints the simulated statements instead of the instructions
	Stmts bool
	// Fmt renders statements; the zero value prints raw SSA names
	Fmt *ir.Formatter
}

// NewPrinter creates a new CFG printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintGraph prints every block followed by the exception groups and loops
func (p *Printer) PrintGraph(g *Graph) {
	m := g.Method
	fmt.Fprintf(p.w, "method %s%s\n", m.Name, m.Descriptor)
	for _, b := range g.Blocks {
		p.printBlock(g, b)
	}
	if len(g.Groups) > 0 {
		fmt.Fprintln(p.w, "groups:")
		for _, eg := range g.Groups {
			p.printGroup(eg)
		}
	}
	if len(g.Loops) > 0 {
		fmt.Fprintln(p.w, "loops:")
		for _, l := range g.Loops {
			latches := make([]string, len(l.Latches))
			for i, u := range l.Latches {
				latches[i] = fmt.Sprintf("B%d", u)
			}
			fmt.Fprintf(p.w, "  %s header B%d latches %s\n", l.ID, l.Header, strings.Join(latches, " "))
		}
	}
	if g.Irreducible {
		fmt.Fprintln(p.w, "irreducible")
	}
}

func (p *Printer) printBlock(g *Graph, b *Block) {
	fmt.Fprintf(p.w, "B%d @%d depth %d->%d", b.Index, b.Offset, b.EntryDepth, b.ExitDepth)
	if !b.Reachable {
		fmt.Fprint(p.w, " unreachable")
	}
	if b.Handler {
		if b.HandlerType != nil {
			fmt.Fprintf(p.w, " handler %s", b.HandlerType)
		} else {
			fmt.Fprint(p.w, " handler any")
		}
	}
	if b.Loop != nil {
		fmt.Fprintf(p.w, " header %s", b.Loop)
	}
	fmt.Fprintln(p.w)

	if p.Stmts {
		for _, s := range b.Stmts {
			fmt.Fprintf(p.w, "  %s\n", p.Fmt.Stmt(s))
		}
	} else {
		for _, ins := range g.Instructions(b.Index) {
			fmt.Fprintf(p.w, "  %s\n", ins.String())
		}
	}

	if len(b.Succs) > 0 {
		succs := make([]string, len(b.Succs))
		for i, e := range b.Succs {
			succs[i] = fmt.Sprintf("B%d (%s)", e.To, e.Kind)
		}
		fmt.Fprintf(p.w, "  succs: %s\n", strings.Join(succs, ", "))
	}
}

func (p *Printer) printGroup(eg *ExceptionGroup) {
	fmt.Fprintf(p.w, "  %s", eg.ID)
	for _, r := range eg.Ranges {
		fmt.Fprintf(p.w, " [%d, %d)", r.Start, r.End)
	}
	for _, c := range eg.Catches {
		fmt.Fprintf(p.w, " catch %s -> B%d", c.Type, c.Handler)
	}
	if eg.Finally >= 0 {
		fmt.Fprintf(p.w, " finally B%d", eg.Finally)
	}
	for _, r := range eg.Covers {
		fmt.Fprintf(p.w, " covers [%d, %d)", r.Start, r.End)
	}
	fmt.Fprintln(p.w)
}
