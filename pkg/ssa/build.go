package ssa

import (
	"errors"
	"fmt"
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
)

// ErrInvalid is returned when a graph violates the SSA invariants
var ErrInvalid = errors.New("invalid ssa form")

// Site locates a statement: block index and statement index
type Site struct {
	Block int
	Index int
}

// Info holds the SSA identities of one method
type Info struct {
	Dom *Dominators
	// Filter restricts inlining to the LValues it accepts; nil accepts all
	Filter func(ir.LValue) bool

	versions map[int]int
	defs     map[ir.LValue]Site
	uses     map[ir.LValue]int
	useSite  map[ir.LValue]Site
	inMerge  map[ir.LValue]bool
}

// Def returns the site of the statement defining lv
func (info *Info) Def(lv ir.LValue) (Site, bool) {
	s, ok := info.defs[lv]
	return s, ok
}

// Uses returns the number of reads of lv, merge sources included
func (info *Info) Uses(lv ir.LValue) int { return info.uses[lv] }

// Versions returns the highest version allocated for slot
func (info *Info) Versions(slot int) int { return info.versions[slot] }

// Build renames every local definition and use of g into SSA form.
// Merges are placed at the iterated dominance frontier of each slot's
// definitions and at the handlers of blocks that define the slot. Versions
// are allocated in reverse postorder; a read with no reaching definition
// gets version 0.
func Build(g *cfg.Graph) (*Info, error) {
	dom := ComputeDominators(g)
	info := &Info{Dom: dom, versions: make(map[int]int)}

	defBlocks := make(map[int][]int)
	for _, b := range dom.RPO {
		for _, s := range g.Blocks[b].Stmts {
			lv, ok := ir.CreatedLValue(s)
			if !ok {
				continue
			}
			if lv.Version != 0 {
				return nil, fmt.Errorf("%w: B%d already renamed", ErrInvalid, b)
			}
			defBlocks[lv.Slot] = appendUnique(defBlocks[lv.Slot], b)
		}
	}

	placeMerges(g, dom, defBlocks)
	info.allocate(g)
	rename(g, dom)
	dedupeSources(g)
	pruneMerges(g)
	info.refresh(g)
	return info, nil
}

func appendUnique(list []int, b int) []int {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}

func placeMerges(g *cfg.Graph, dom *Dominators, defBlocks map[int][]int) {
	slots := make([]int, 0, len(defBlocks))
	for slot := range defBlocks {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	merges := make(map[int][]ir.Stmt)
	for _, slot := range slots {
		blocks := append([]int{dom.Root}, defBlocks[slot]...)
		// an exception can leave a block between two definitions, so
		// every handler of a defining block joins the slot
		var handlers []int
		for _, b := range defBlocks[slot] {
			for _, e := range g.Blocks[b].Succs {
				if e.Kind == cfg.Exception {
					handlers = appendUnique(handlers, e.To)
				}
			}
		}
		at := dom.IteratedFrontier(append(blocks, handlers...))
		for _, h := range handlers {
			at = appendUnique(at, h)
		}
		for _, b := range at {
			if dom.Reachable(b) {
				merges[b] = append(merges[b], &ir.Merge{LV: ir.LValue{Slot: slot}})
			}
		}
	}
	for b, ms := range merges {
		blk := g.Blocks[b]
		blk.Stmts = append(ms, blk.Stmts...)
	}
}

// allocate numbers every definition in reverse postorder
func (info *Info) allocate(g *cfg.Graph) {
	for _, b := range info.Dom.RPO {
		for _, s := range g.Blocks[b].Stmts {
			switch s := s.(type) {
			case *ir.Assign:
				info.versions[s.LV.Slot]++
				s.LV.Version = info.versions[s.LV.Slot]
			case *ir.Merge:
				info.versions[s.LV.Slot]++
				s.LV.Version = info.versions[s.LV.Slot]
			}
		}
	}
}

type renamer struct {
	g     *cfg.Graph
	stack map[int][]int
}

func (r *renamer) top(slot int) int {
	if vs := r.stack[slot]; len(vs) > 0 {
		return vs[len(vs)-1]
	}
	return 0
}

func leadingMerges(blk *cfg.Block) []*ir.Merge {
	var out []*ir.Merge
	for _, s := range blk.Stmts {
		m, ok := s.(*ir.Merge)
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out
}

func addSource(ms []*ir.Merge, slot, version int) {
	for _, m := range ms {
		if m.LV.Slot == slot {
			m.Sources = append(m.Sources, ir.LValue{Slot: slot, Version: version})
		}
	}
}

// rename resolves every read to its reaching definition along the
// dominator tree and fills in merge sources from each predecessor
func rename(g *cfg.Graph, dom *Dominators) {
	r := &renamer{g: g, stack: make(map[int][]int)}

	var walk func(b int)
	walk = func(b int) {
		blk := g.Blocks[b]
		var pushed []int
		push := func(lv ir.LValue) {
			r.stack[lv.Slot] = append(r.stack[lv.Slot], lv.Version)
			pushed = append(pushed, lv.Slot)
		}

		var handlers [][]*ir.Merge
		for _, e := range blk.Succs {
			if e.Kind == cfg.Exception {
				handlers = append(handlers, leadingMerges(g.Blocks[e.To]))
			}
		}

		entryDone := false
		enter := func() {
			if entryDone {
				return
			}
			entryDone = true
			for _, hm := range handlers {
				for _, m := range hm {
					m.Sources = append(m.Sources, ir.LValue{Slot: m.LV.Slot, Version: r.top(m.LV.Slot)})
				}
			}
		}

		for _, s := range blk.Stmts {
			if m, ok := s.(*ir.Merge); ok {
				push(m.LV)
				continue
			}
			enter()
			ir.RewriteStmtExprs(s, func(e ir.Expr) ir.Expr {
				if ref, ok := e.(*ir.LocalRef); ok {
					return &ir.LocalRef{LV: ir.LValue{Slot: ref.LV.Slot, Version: r.top(ref.LV.Slot)}, Type: ref.Type}
				}
				return e
			})
			if lv, ok := ir.CreatedLValue(s); ok {
				push(lv)
				for _, hm := range handlers {
					addSource(hm, lv.Slot, lv.Version)
				}
			}
		}
		enter()

		for _, e := range blk.Succs {
			if e.Kind == cfg.Exception {
				continue
			}
			for _, m := range leadingMerges(g.Blocks[e.To]) {
				m.Sources = append(m.Sources, ir.LValue{Slot: m.LV.Slot, Version: r.top(m.LV.Slot)})
			}
		}

		for _, c := range dom.Children(b) {
			walk(c)
		}
		for _, slot := range pushed {
			r.stack[slot] = r.stack[slot][:len(r.stack[slot])-1]
		}
	}
	// the entry block can be a loop header; its merges also join the
	// values live on method entry
	for _, m := range leadingMerges(g.Blocks[dom.Root]) {
		m.Sources = append(m.Sources, ir.LValue{Slot: m.LV.Slot})
	}
	walk(dom.Root)
}

func dedupeSources(g *cfg.Graph) {
	for _, blk := range g.Blocks {
		for _, m := range leadingMerges(blk) {
			seen := make(map[ir.LValue]bool)
			out := m.Sources[:0]
			for _, s := range m.Sources {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
			m.Sources = out
		}
	}
}

// pruneMerges removes merges nobody reads and merges whose sources other
// than themselves are all one version, until nothing changes
func pruneMerges(g *cfg.Graph) {
	for {
		changed := false

		uses := make(map[ir.LValue]int)
		for _, blk := range g.Blocks {
			for _, s := range blk.Stmts {
				if m, ok := s.(*ir.Merge); ok {
					for _, src := range m.Sources {
						if src != m.LV {
							uses[src]++
						}
					}
					continue
				}
				for _, lv := range ir.UsedLValues(s) {
					uses[lv]++
				}
			}
		}

		replace := make(map[ir.LValue]ir.LValue)
		for _, blk := range g.Blocks {
			out := blk.Stmts[:0]
			for _, s := range blk.Stmts {
				m, ok := s.(*ir.Merge)
				if !ok {
					out = append(out, s)
					continue
				}
				if uses[m.LV] == 0 {
					changed = true
					continue
				}
				if v, ok := single(m); ok {
					replace[m.LV] = v
					changed = true
					continue
				}
				out = append(out, s)
			}
			blk.Stmts = out
		}
		if !changed {
			return
		}
		if len(replace) > 0 {
			substitute(g, replace)
		}
	}
}

// single returns the one version a merge joins, ignoring self references
func single(m *ir.Merge) (ir.LValue, bool) {
	var v ir.LValue
	found := false
	for _, s := range m.Sources {
		if s == m.LV {
			continue
		}
		if found && s != v {
			return ir.LValue{}, false
		}
		v, found = s, true
	}
	return v, found
}

// substitute rewrites reads through the replacement map, following chains
func substitute(g *cfg.Graph, replace map[ir.LValue]ir.LValue) {
	resolve := func(lv ir.LValue) ir.LValue {
		for i := 0; i <= len(replace); i++ {
			next, ok := replace[lv]
			if !ok {
				break
			}
			lv = next
		}
		return lv
	}
	for _, blk := range g.Blocks {
		for _, s := range blk.Stmts {
			if m, ok := s.(*ir.Merge); ok {
				for i, src := range m.Sources {
					m.Sources[i] = resolve(src)
				}
				continue
			}
			ir.RewriteStmtExprs(s, func(e ir.Expr) ir.Expr {
				if ref, ok := e.(*ir.LocalRef); ok {
					if lv := resolve(ref.LV); lv != ref.LV {
						return &ir.LocalRef{LV: lv, Type: ref.Type}
					}
				}
				return e
			})
		}
	}
	dedupeSources(g)
}

// refresh recomputes definition sites and use counts
func (info *Info) refresh(g *cfg.Graph) {
	info.defs = make(map[ir.LValue]Site)
	info.uses = make(map[ir.LValue]int)
	info.useSite = make(map[ir.LValue]Site)
	info.inMerge = make(map[ir.LValue]bool)
	for b, blk := range g.Blocks {
		for i, s := range blk.Stmts {
			if lv, ok := ir.CreatedLValue(s); ok {
				info.defs[lv] = Site{b, i}
			}
			if m, ok := s.(*ir.Merge); ok {
				for _, src := range m.Sources {
					info.uses[src]++
					info.inMerge[src] = true
				}
				continue
			}
			for _, lv := range ir.UsedLValues(s) {
				info.uses[lv]++
				info.useSite[lv] = Site{b, i}
			}
		}
	}
}
