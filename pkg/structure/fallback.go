// Labeled-goto fallback for regions the transitions cannot structure.
// Every remaining node becomes a labeled block ending in raw jumps, nested
// in a try for each exception region still open around it; jump chains
// are then tunneled and unreferenced labels removed.
package structure

import (
	"fmt"

	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

func (e *engine) fallback() *structured.Block {
	open := make(map[*cfg.ExceptionGroup]bool)
	for _, n := range e.live() {
		for _, g := range n.regions {
			open[g] = true
		}
	}
	// handlers of open regions are placed in the catches of their try
	caught := make(map[*node]bool)
	for _, g := range e.g.Groups {
		if !open[g] {
			continue
		}
		for _, h := range g.Handlers() {
			if n := e.byBlock[h]; n != nil && n.live {
				caught[n] = true
			}
		}
	}
	var nodes []*node
	for _, n := range e.live() {
		if n.stub == nil && !caught[n] {
			nodes = append(nodes, n)
		}
	}

	root := &structured.Block{}
	ts := &trySplicer{e: e, root: root, seen: make(map[*cfg.ExceptionGroup]bool), placed: make(map[*node]bool)}
	for i, n := range nodes {
		var next *node
		if i+1 < len(nodes) {
			next = nodes[i+1]
		}
		b := ts.into(n.regions)
		b.Stmts = append(b.Stmts, e.labeled(n, next))
	}
	e.resolveJumps(root)
	Tunnel(root)
	CleanupLabels(root)
	return root
}

func (e *engine) labeled(n, next *node) structured.Stmt {
	stmts := append([]structured.Stmt(nil), n.body...)
	stmts = append(stmts, e.jumps(n, next)...)
	return &structured.Labeled{Label: n.offset, Body: &structured.Block{Stmts: stmts}}
}

type openTry struct {
	g    *cfg.ExceptionGroup
	body *structured.Block
}

// trySplicer keeps the stack of try statements the fallback is emitting
// into
type trySplicer struct {
	e      *engine
	root   *structured.Block
	stack  []openTry
	seen   map[*cfg.ExceptionGroup]bool
	placed map[*node]bool
}

// into closes the tries that do not cover regions, opens the missing ones
// and returns the block to append to
func (ts *trySplicer) into(regions []*cfg.ExceptionGroup) *structured.Block {
	k := 0
	for k < len(ts.stack) && k < len(regions) && ts.stack[k].g == regions[k] {
		k++
	}
	ts.stack = ts.stack[:k]
	for _, g := range regions[k:] {
		parent := ts.top()
		t := ts.open(g)
		parent.Stmts = append(parent.Stmts, t)
		ts.stack = append(ts.stack, openTry{g: g, body: t.Body})
	}
	return ts.top()
}

func (ts *trySplicer) top() *structured.Block {
	if len(ts.stack) == 0 {
		return ts.root
	}
	return ts.stack[len(ts.stack)-1].body
}

// open builds a try for g. A region split by code outside it gets a fresh
// try for each later piece, whose catches jump to the handlers placed by
// the first.
func (ts *trySplicer) open(g *cfg.ExceptionGroup) *structured.Try {
	id := g.ID
	if ts.seen[g] {
		id = ts.e.g.IDs.New(ir.KindTry)
	}
	ts.seen[g] = true
	t := &structured.Try{ID: id, Body: &structured.Block{}}
	byNode := make(map[*node]*structured.Catch)
	add := func(h int, typ jtypes.Type) {
		n := ts.e.byBlock[h]
		c, ok := byNode[n]
		if !ok {
			c = &structured.Catch{Try: id, Body: ts.handler(n)}
			byNode[n] = c
			t.Catches = append(t.Catches, c)
		}
		if typ != nil {
			c.Types = append(c.Types, typ)
		}
	}
	for _, c := range g.Catches {
		add(c.Handler, jtypes.ClassOf(c.Type))
	}
	if g.Finally >= 0 {
		add(g.Finally, nil)
	}
	return t
}

func (ts *trySplicer) handler(n *node) *structured.Block {
	switch {
	case n == nil:
		return &structured.Block{}
	case !n.live:
		return &structured.Block{Stmts: []structured.Stmt{&structured.Comment{Text: fmt.Sprintf("handler at %d is structured elsewhere", n.offset)}}}
	case ts.placed[n]:
		return &structured.Block{Stmts: []structured.Stmt{&structured.Goto{Target: n.offset}}}
	}
	ts.placed[n] = true
	return &structured.Block{Stmts: []structured.Stmt{ts.e.labeled(n, nil)}}
}

// jumpTo renders an edge to t; nothing when t follows directly
func jumpTo(t, next *node) []structured.Stmt {
	if t.stub != nil {
		return append([]structured.Stmt(nil), t.body...)
	}
	if t == next {
		return nil
	}
	return []structured.Stmt{&structured.Goto{Target: t.offset}}
}

func target(t *node) int {
	if t.stub != nil {
		return t.stub.dest.offset
	}
	return t.offset
}

func (e *engine) jumps(n, next *node) []structured.Stmt {
	t := n.term
	switch t.kind {
	case termGoto:
		return jumpTo(t.next, next)
	case termCond:
		var out []structured.Stmt
		if t.taken.stub != nil {
			out = append(out, &structured.If{Cond: t.cond, Then: &structured.Block{Stmts: jumpTo(t.taken, nil)}})
		} else {
			out = append(out, &structured.CondGoto{Cond: t.cond, Target: t.taken.offset})
		}
		return append(out, jumpTo(t.fall, next)...)
	case termSwitch:
		sw := &ir.SwitchJump{Key: t.key, Default: target(t.def)}
		for _, c := range t.cases {
			sw.Cases = append(sw.Cases, ir.SwitchCase{Values: c.values, Target: target(c.target)})
		}
		return []structured.Stmt{&structured.Atom{S: sw}}
	}
	return nil
}

// resolveJumps turns breaks and continues of loops that were never built
// into raw jumps to the loop's exit or header
func (e *engine) resolveJumps(root *structured.Block) {
	loops := make(map[*ir.BlockID]*loop)
	for _, l := range e.loops {
		loops[l.id] = l
	}
	var open []*ir.BlockID
	var fix func(s structured.Stmt) structured.Stmt
	fix = func(s structured.Stmt) structured.Stmt {
		switch s := s.(type) {
		case *structured.Break:
			if l, ok := loops[s.Target]; ok && !encloses(open, s.Target) && l.exit != nil {
				return &structured.Goto{Target: l.exit.offset}
			}
			return s
		case *structured.Continue:
			if l, ok := loops[s.Target]; ok && !encloses(open, s.Target) {
				return &structured.Goto{Target: l.header.offset}
			}
			return s
		case *structured.While:
			open = append(open, s.ID)
			defer func() { open = open[:len(open)-1] }()
		case *structured.DoWhile:
			open = append(open, s.ID)
			defer func() { open = open[:len(open)-1] }()
		}
		replaceChildren(s, fix)
		return s
	}
	fix(root)
}

func encloses(open []*ir.BlockID, id *ir.BlockID) bool {
	for _, o := range open {
		if o == id {
			return true
		}
	}
	return false
}

// replaceChildren replaces every direct child of s with fn(child)
func replaceChildren(s structured.Stmt, fn func(structured.Stmt) structured.Stmt) {
	block := func(b *structured.Block) {
		if b == nil {
			return
		}
		for i, c := range b.Stmts {
			b.Stmts[i] = fn(c)
		}
	}
	switch s := s.(type) {
	case *structured.Block:
		block(s)
	case *structured.If:
		s.Then = fn(s.Then)
		if s.Else != nil {
			s.Else = fn(s.Else)
		}
	case *structured.While:
		s.Body = fn(s.Body)
	case *structured.DoWhile:
		s.Body = fn(s.Body)
	case *structured.Switch:
		for _, c := range s.Cases {
			block(c.Body)
		}
	case *structured.Try:
		block(s.Body)
		for _, c := range s.Catches {
			block(c.Body)
		}
		block(s.Finally)
	case *structured.Labeled:
		s.Body = fn(s.Body)
	}
}

// Tunnel shortcuts raw jumps to labels whose block only jumps again
func Tunnel(root *structured.Block) {
	resolved := resolveChains(buildJumpTargetMap(root))
	structured.Walk(root, func(s structured.Stmt) bool {
		switch s := s.(type) {
		case *structured.Goto:
			if t, ok := resolved[s.Target]; ok {
				s.Target = t
			}
		case *structured.CondGoto:
			if t, ok := resolved[s.Target]; ok {
				s.Target = t
			}
		case *structured.Atom:
			if sw, ok := s.S.(*ir.SwitchJump); ok {
				for i, c := range sw.Cases {
					if t, ok := resolved[c.Target]; ok {
						sw.Cases[i].Target = t
					}
				}
				if t, ok := resolved[sw.Default]; ok {
					sw.Default = t
				}
			}
		}
		return true
	})
}

// buildJumpTargetMap finds labels whose block is a single goto
func buildJumpTargetMap(root *structured.Block) map[int]int {
	result := make(map[int]int)
	structured.Walk(root, func(s structured.Stmt) bool {
		if l, ok := s.(*structured.Labeled); ok {
			if t, ok := soleGoto(l.Body); ok {
				result[l.Label] = t
			}
		}
		return true
	})
	return result
}

func soleGoto(s structured.Stmt) (int, bool) {
	b, ok := s.(*structured.Block)
	if !ok || len(b.Stmts) != 1 {
		return 0, false
	}
	g, ok := b.Stmts[0].(*structured.Goto)
	if !ok {
		return 0, false
	}
	return g.Target, true
}

// resolveChains follows jump chains to their ultimate target.
// Handles cycles by returning the label where a cycle is detected.
func resolveChains(jumpTargets map[int]int) map[int]int {
	result := make(map[int]int)
	for lbl := range jumpTargets {
		result[lbl] = resolveLabel(lbl, jumpTargets)
	}
	return result
}

func resolveLabel(lbl int, jumpTargets map[int]int) int {
	visited := make(map[int]bool)
	current := lbl
	for {
		if visited[current] {
			return current
		}
		visited[current] = true
		target, ok := jumpTargets[current]
		if !ok {
			return current
		}
		current = target
	}
}

// CleanupLabels unwraps labeled blocks no jump refers to, dropping a
// trailing goto to the label that follows
func CleanupLabels(root *structured.Block) {
	blocks := allBlocks(root)
	for _, b := range blocks {
		dropFallthroughs(b)
	}
	used := collectUsedLabels(root)
	for i := len(blocks) - 1; i >= 0; i-- {
		unwrapUnused(blocks[i], used)
	}
}

func allBlocks(root *structured.Block) []*structured.Block {
	var out []*structured.Block
	structured.Walk(root, func(s structured.Stmt) bool {
		if b, ok := s.(*structured.Block); ok {
			out = append(out, b)
		}
		return true
	})
	return out
}

func dropFallthroughs(b *structured.Block) {
	for i, s := range b.Stmts {
		l, ok := s.(*structured.Labeled)
		if !ok || i+1 >= len(b.Stmts) {
			continue
		}
		next, ok := b.Stmts[i+1].(*structured.Labeled)
		if !ok {
			continue
		}
		if body, ok := l.Body.(*structured.Block); ok && len(body.Stmts) > 0 {
			if g, ok := body.Stmts[len(body.Stmts)-1].(*structured.Goto); ok && g.Target == next.Label {
				body.Stmts = body.Stmts[:len(body.Stmts)-1]
			}
		}
	}
}

func unwrapUnused(b *structured.Block, used map[int]bool) {
	var out []structured.Stmt
	for _, s := range b.Stmts {
		l, ok := s.(*structured.Labeled)
		if !ok || used[l.Label] {
			out = append(out, s)
			continue
		}
		// a bare goto left behind by tunneling is unreachable
		if _, ok := soleGoto(l.Body); ok && len(out) > 0 && structured.IsAbrupt(out[len(out)-1]) {
			continue
		}
		if body, ok := l.Body.(*structured.Block); ok {
			out = append(out, body.Stmts...)
		} else {
			out = append(out, l.Body)
		}
	}
	b.Stmts = out
}

// collectUsedLabels returns all labels that are targets of jumps
func collectUsedLabels(root structured.Stmt) map[int]bool {
	used := make(map[int]bool)
	structured.Walk(root, func(s structured.Stmt) bool {
		switch s := s.(type) {
		case *structured.Goto:
			used[s.Target] = true
		case *structured.CondGoto:
			used[s.Target] = true
		case *structured.Atom:
			if sw, ok := s.S.(*ir.SwitchJump); ok {
				for _, c := range sw.Cases {
					used[c.Target] = true
				}
				used[sw.Default] = true
			}
		}
		return true
	})
	return used
}
