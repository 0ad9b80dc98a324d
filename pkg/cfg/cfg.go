// Package cfg builds the control-flow graph of a method: basic blocks
// split at every jump source and target, tagged fallthrough, jump and
// exception edges, exception groups from the exception table, and the
// BlockIDs naming loop and try regions.
package cfg

import (
	"fmt"
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/graph"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// EdgeKind tags a control-flow edge
type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	Jump
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "fall"
	case Jump:
		return "jump"
	}
	return "exc"
}

// Edge connects two blocks by index
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Block is a basic block: the instructions m.Code[Start:End]
type Block struct {
	Index  int
	Start  int
	End    int
	Offset int // offset of the first instruction
	Succs  []Edge
	Preds  []Edge

	Reachable bool
	// Handler is set on exception handler entries; HandlerType is nil for
	// catch-any handlers.
	Handler     bool
	HandlerType jtypes.Type

	// Loop names the loop headed by this block, nil otherwise
	Loop *ir.BlockID
	// Regions are the exception groups protecting this block, outermost first
	Regions []*ExceptionGroup

	// Filled in by the stack simulator. Depths are in JVM stack slots.
	EntryDepth int
	ExitDepth  int
	// EntryTypes holds the exit stack types of each simulated predecessor
	EntryTypes [][]jtypes.Type
	Stmts      []ir.Stmt
}

// Range is a half-open range of byte offsets
type Range struct {
	Start, End int
}

// Contains reports whether off lies inside r
func (r Range) Contains(off int) bool { return off >= r.Start && off < r.End }

// Encloses reports whether o is a subrange of r
func (r Range) Encloses(o Range) bool { return o.Start >= r.Start && o.End <= r.End }

func (r Range) overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

// Catch is one typed handler of an exception group
type Catch struct {
	Type    string // internal class name
	Handler int    // block index
}

// ExceptionGroup is the set of handlers sharing one try region
type ExceptionGroup struct {
	ID      *ir.BlockID
	Ranges  []Range
	Catches []Catch
	// Finally is the catch-any handler block, or -1
	Finally int
	// Covers are the extra catch-any ranges that protect the catch bodies
	// with the same finally handler
	Covers []Range
}

// Handlers returns every handler block of the group, catches first
func (eg *ExceptionGroup) Handlers() []int {
	var out []int
	for _, c := range eg.Catches {
		out = append(out, c.Handler)
	}
	if eg.Finally >= 0 {
		out = append(out, eg.Finally)
	}
	return out
}

// Loop is a natural loop found from its back edges
type Loop struct {
	Header  int
	ID      *ir.BlockID
	Latches []int
}

// Graph is the control-flow graph of one method
type Graph struct {
	Method *bytecode.Method
	Blocks []*Block
	Groups []*ExceptionGroup
	Loops  []*Loop
	// Irreducible is set when a retreating edge targets a block that does
	// not dominate its source
	Irreducible bool
	// IDs allocates every BlockID of the method
	IDs *ir.IDAllocator

	byOffset map[int]int
}

// Len implements graph.Graph
func (g *Graph) Len() int { return len(g.Blocks) }

// Succs implements graph.Graph over every edge kind
func (g *Graph) Succs(n int) []int {
	out := make([]int, len(g.Blocks[n].Succs))
	for i, e := range g.Blocks[n].Succs {
		out[i] = e.To
	}
	return out
}

// BlockAt returns the index of the block starting at offset
func (g *Graph) BlockAt(offset int) (int, bool) {
	b, ok := g.byOffset[offset]
	return b, ok
}

// Instructions returns the instructions of block b
func (g *Graph) Instructions(b int) []bytecode.Instruction {
	blk := g.Blocks[b]
	return g.Method.Code[blk.Start:blk.End]
}

// ReversePostorder returns the reachable blocks in reverse postorder
func (g *Graph) ReversePostorder() []int {
	return graph.ReversePostorder(g, 0)
}

// Regions returns the exception groups protecting block b, outermost first
func (g *Graph) Regions(b int) []*ExceptionGroup {
	return g.Blocks[b].Regions
}

// NormalView is the graph without exception edges
type NormalView struct{ G *Graph }

func (v NormalView) Len() int { return len(v.G.Blocks) }

func (v NormalView) Succs(n int) []int {
	var out []int
	for _, e := range v.G.Blocks[n].Succs {
		if e.Kind != Exception {
			out = append(out, e.To)
		}
	}
	return out
}

func inconsistency(kind ir.InconsistencyKind, off int, format string, args ...any) error {
	return &ir.InconsistencyError{Kind: kind, Offset: off, Detail: fmt.Sprintf(format, args...)}
}

// Build partitions m into basic blocks and links them
func Build(m *bytecode.Method) (*Graph, error) {
	code := m.Code
	n := len(code)
	if n == 0 {
		return nil, inconsistency(ir.KindUnsupported, 0, "empty code")
	}
	index := make(map[int]int, n)
	for i := range code {
		index[code[i].Offset] = i
	}
	atOrAfter := func(off int) int {
		return sort.Search(n, func(i int) bool { return code[i].Offset >= off })
	}

	leader := make([]bool, n)
	leader[0] = true
	for i := range code {
		ins := &code[i]
		info, ok := ins.Op.Info()
		if !ok {
			return nil, inconsistency(ir.KindUnsupported, ins.Offset, "unknown opcode 0x%02x", uint8(ins.Op))
		}
		if ins.Op == bytecode.Jsr || ins.Op == bytecode.Ret {
			return nil, inconsistency(ir.KindUnsupported, ins.Offset, "%s subroutines", ins.Op)
		}
		for _, t := range ins.Targets() {
			idx, ok := index[t]
			if !ok {
				return nil, inconsistency(ir.KindBadTarget, ins.Offset, "no instruction at %d", t)
			}
			leader[idx] = true
		}
		if info.Flow != bytecode.FlowNext && i+1 < n {
			leader[i+1] = true
		}
	}
	for _, e := range m.Exceptions {
		s, ok := index[e.Start]
		if !ok || e.End <= e.Start {
			return nil, inconsistency(ir.KindBadOperand, e.Start, "bad protected range [%d, %d)", e.Start, e.End)
		}
		h, ok := index[e.Handler]
		if !ok {
			return nil, inconsistency(ir.KindBadTarget, e.Start, "no handler instruction at %d", e.Handler)
		}
		leader[s] = true
		leader[h] = true
		if end := atOrAfter(e.End); end < n {
			leader[end] = true
		}
	}

	g := &Graph{Method: m, IDs: &ir.IDAllocator{}, byOffset: make(map[int]int)}
	blockOf := make([]int, n)
	for i := 0; i < n; i++ {
		if leader[i] {
			g.Blocks = append(g.Blocks, &Block{Index: len(g.Blocks), Start: i, Offset: code[i].Offset})
			g.byOffset[code[i].Offset] = len(g.Blocks) - 1
		}
		blockOf[i] = len(g.Blocks) - 1
		g.Blocks[len(g.Blocks)-1].End = i + 1
	}

	addEdge := func(from, to int, kind EdgeKind) {
		e := Edge{From: from, To: to, Kind: kind}
		g.Blocks[from].Succs = append(g.Blocks[from].Succs, e)
		g.Blocks[to].Preds = append(g.Blocks[to].Preds, e)
	}
	for _, b := range g.Blocks {
		last := &code[b.End-1]
		info, _ := last.Op.Info()
		fall := func() error {
			if b.End >= n {
				return inconsistency(ir.KindBadTarget, last.Offset, "control falls off the end of the code")
			}
			addEdge(b.Index, blockOf[b.End], Fallthrough)
			return nil
		}
		switch info.Flow {
		case bytecode.FlowNext:
			if err := fall(); err != nil {
				return nil, err
			}
		case bytecode.FlowBranch:
			addEdge(b.Index, blockOf[index[last.Targets()[0]]], Jump)
			if err := fall(); err != nil {
				return nil, err
			}
		case bytecode.FlowGoto:
			addEdge(b.Index, blockOf[index[last.Targets()[0]]], Jump)
		case bytecode.FlowSwitch:
			seen := make(map[int]bool)
			for _, t := range last.Targets() {
				to := blockOf[index[t]]
				if !seen[to] {
					seen[to] = true
					addEdge(b.Index, to, Jump)
				}
			}
		}
	}

	// one exception edge per (block, handler), in table order
	for _, e := range m.Exceptions {
		h := blockOf[index[e.Handler]]
		hb := g.Blocks[h]
		if !hb.Handler {
			hb.Handler = true
			if e.CatchType != "" {
				hb.HandlerType = jtypes.ClassOf(e.CatchType)
			}
		}
		for _, b := range g.Blocks {
			if b.Offset < e.Start || b.Offset >= e.End || hasEdge(b, h, Exception) {
				continue
			}
			addEdge(b.Index, h, Exception)
		}
	}

	for _, b := range g.ReversePostorder() {
		g.Blocks[b].Reachable = true
	}
	if err := g.groupExceptions(); err != nil {
		return nil, err
	}
	g.FindLoops()
	return g, nil
}

func hasEdge(b *Block, to int, kind EdgeKind) bool {
	for _, e := range b.Succs {
		if e.To == to && e.Kind == kind {
			return true
		}
	}
	return false
}

// groupExceptions builds the exception groups and checks that their
// protected ranges nest.
func (g *Graph) groupExceptions() error {
	type key struct{ start, end int }
	byRange := make(map[key]*ExceptionGroup)
	var groups []*ExceptionGroup
	for _, e := range g.Method.Exceptions {
		k := key{e.Start, e.End}
		eg, ok := byRange[k]
		if !ok {
			eg = &ExceptionGroup{Ranges: []Range{{e.Start, e.End}}, Finally: -1}
			byRange[k] = eg
			groups = append(groups, eg)
		}
		h := g.byOffset[e.Handler]
		switch {
		case e.CatchType == "":
			if eg.Finally < 0 {
				eg.Finally = h
			}
		case !hasCatch(eg, e.CatchType, h):
			eg.Catches = append(eg.Catches, Catch{Type: e.CatchType, Handler: h})
		}
	}

	// ranges split around inner exits share one handler set
	var merged []*ExceptionGroup
	for _, eg := range groups {
		var into *ExceptionGroup
		for _, m := range merged {
			if sameHandlers(m, eg) {
				into = m
				break
			}
		}
		if into == nil {
			merged = append(merged, eg)
			continue
		}
		into.Ranges = append(into.Ranges, eg.Ranges...)
	}

	// catch-any entries protecting the catch bodies of another group
	var out []*ExceptionGroup
	for _, eg := range merged {
		if len(eg.Catches) == 0 && eg.Finally >= 0 {
			if owner := finallyOwner(merged, eg); owner != nil {
				owner.Covers = append(owner.Covers, eg.Ranges...)
				continue
			}
		}
		out = append(out, eg)
	}

	for _, eg := range out {
		sort.Slice(eg.Ranges, func(i, j int) bool { return eg.Ranges[i].Start < eg.Ranges[j].Start })
	}
	for i, a := range out {
		for _, b := range out[i+1:] {
			for _, ra := range a.Ranges {
				for _, rb := range b.Ranges {
					if ra.overlaps(rb) && !ra.Encloses(rb) && !rb.Encloses(ra) {
						return inconsistency(ir.KindOverlappingRanges, rb.Start,
							"[%d, %d) and [%d, %d) overlap without nesting", ra.Start, ra.End, rb.Start, rb.End)
					}
				}
			}
		}
	}

	for _, eg := range out {
		eg.ID = g.IDs.New(ir.KindTry)
	}
	g.Groups = out

	for _, b := range g.Blocks {
		var regions []*ExceptionGroup
		var sizes []int
		for _, eg := range out {
			for _, r := range eg.Ranges {
				if r.Contains(b.Offset) {
					regions = append(regions, eg)
					sizes = append(sizes, r.End-r.Start)
					break
				}
			}
		}
		idx := make([]int, len(regions))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return sizes[idx[i]] > sizes[idx[j]] })
		b.Regions = make([]*ExceptionGroup, len(regions))
		for i, k := range idx {
			b.Regions[i] = regions[k]
		}
	}
	return nil
}

func hasCatch(eg *ExceptionGroup, typ string, h int) bool {
	for _, c := range eg.Catches {
		if c.Type == typ && c.Handler == h {
			return true
		}
	}
	return false
}

func sameHandlers(a, b *ExceptionGroup) bool {
	if a.Finally != b.Finally || len(a.Catches) != len(b.Catches) {
		return false
	}
	for i := range a.Catches {
		if a.Catches[i] != b.Catches[i] {
			return false
		}
	}
	return true
}

// finallyOwner finds the group with catches whose finally handler is the
// catch-any handler of eg
func finallyOwner(groups []*ExceptionGroup, eg *ExceptionGroup) *ExceptionGroup {
	for _, o := range groups {
		if o != eg && len(o.Catches) > 0 && o.Finally == eg.Finally {
			return o
		}
	}
	return nil
}

// FindLoops marks loop headers. An edge u->h is a back edge when h
// dominates u; a retreating edge that is not a back edge makes the graph
// irreducible.
func (g *Graph) FindLoops() {
	dom := graph.Dominators(g, 0)
	g.Loops = nil
	g.Irreducible = false
	loops := make(map[int]*Loop)
	for _, u := range dom.RPO {
		for _, e := range g.Blocks[u].Succs {
			if e.Kind == Exception {
				continue
			}
			h := e.To
			if dom.Order(h) > dom.Order(u) {
				continue
			}
			if !dom.Dominates(h, u) {
				g.Irreducible = true
				continue
			}
			l, ok := loops[h]
			if !ok {
				l = &Loop{Header: h, ID: g.IDs.New(ir.KindLoop)}
				loops[h] = l
				g.Blocks[h].Loop = l.ID
				g.Loops = append(g.Loops, l)
			}
			l.Latches = append(l.Latches, u)
		}
	}
	sort.Slice(g.Loops, func(i, j int) bool { return dom.Order(g.Loops[i].Header) < dom.Order(g.Loops[j].Header) })
}
