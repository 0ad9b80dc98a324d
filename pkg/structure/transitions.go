package structure

import (
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// sequence folds a node's sole successor into it, or removes an empty
// node that only jumps on
func (e *engine) sequence(a *node) bool {
	if a.term.kind != termGoto {
		return false
	}
	b := a.term.next
	if b == a {
		return false
	}
	if e.forwards(b) {
		next := b.term.next
		for _, p := range b.preds {
			p.term.retarget(b, next)
		}
		b.live = false
		return true
	}
	if len(b.preds) != 1 || b.handler || !e.free(b) || !sameRegions(a, b) {
		return false
	}
	if b.term.kind != termExit && !sameLoops(a, b) {
		return false
	}
	a.body = append(a.body, b.body...)
	a.term = b.term
	b.live = false
	return true
}

// forwards reports whether b is an empty node whose jump can replace
// every jump to it
func (e *engine) forwards(b *node) bool {
	if len(b.body) != 0 || b.term.kind != termGoto || b.term.next == b {
		return false
	}
	if b.handler || b.stub != nil || b == e.root || len(b.preds) == 0 || !e.free(b) {
		return false
	}
	for _, p := range b.preds {
		if !p.live || p.stub != nil {
			return false
		}
	}
	return true
}

// absorbable reports whether x can become a branch of a's conditional
func (e *engine) absorbable(a, x *node) bool {
	if x == a || !x.live || x.handler || !e.free(x) || !sameRegions(a, x) {
		return false
	}
	if len(x.preds) != 1 || x.preds[0] != a {
		return false
	}
	return x.term.kind == termExit || sameLoops(a, x)
}

// conditional builds if and if/else statements from a two-way branch
func (e *engine) conditional(a *node) bool {
	if a.term.kind != termCond {
		return false
	}
	cond, t, f := a.term.cond, a.term.taken, a.term.fall
	if t == a || f == a {
		return false
	}
	if t == f {
		if ir.HasSideEffects(cond) {
			a.body = append(a.body, &structured.Atom{S: &ir.ExprStmt{X: cond}})
		}
		a.term = gotoTerm(t)
		return true
	}
	ta, fa := e.absorbable(a, t), e.absorbable(a, f)
	switch {
	case fa && (f.term.kind == termExit || f.term.isGoto(t)):
		a.body = append(a.body, &structured.If{Cond: ir.Negate(cond), Then: blockOf(f)})
		a.term = gotoTerm(t)
		f.live = false
	case ta && (t.term.kind == termExit || t.term.isGoto(f)):
		a.body = append(a.body, &structured.If{Cond: cond, Then: blockOf(t)})
		a.term = gotoTerm(f)
		t.live = false
	case ta && fa:
		j, ok := join(t, f)
		if !ok {
			return false
		}
		a.body = append(a.body, &structured.If{Cond: ir.Negate(cond), Then: blockOf(f), Else: blockOf(t)})
		a.term = gotoTerm(j)
		t.live, f.live = false, false
	default:
		return false
	}
	return true
}

// join returns the common successor of two branches; nil when both end
// the method
func join(x, y *node) (*node, bool) {
	switch {
	case x.term.kind == termExit && y.term.kind == termExit:
		return nil, true
	case x.term.kind == termExit && y.term.kind == termGoto:
		return y.term.next, true
	case y.term.kind == termExit && x.term.kind == termGoto:
		return x.term.next, true
	case x.term.kind == termGoto && y.term.kind == termGoto && x.term.next == y.term.next:
		return x.term.next, true
	}
	return nil, false
}

// loopStmt builds a loop once its body has folded into the header, alone
// or with a single latch
func (e *engine) loopStmt(h *node) bool {
	l := h.head
	if l == nil || l.done {
		return false
	}
	var s structured.Stmt
	var out, latch *node
	pre := []structured.Stmt(nil)

	switch h.term.kind {
	case termGoto:
		if h.term.next != h {
			return false
		}
		s = &structured.While{ID: l.id, Body: blockOf(h)}
		if e.hasStub(l, true) {
			out = l.exit
		}

	case termCond:
		cond, t, f := h.term.cond, h.term.taken, h.term.fall
		switch {
		case t == h || f == h:
			stay := cond
			out = f
			if f == h {
				stay, out = ir.Negate(cond), t
			}
			switch {
			case onlyMerges(h.body):
				pre = h.body
				s = &structured.While{ID: l.id, Cond: stay, Body: &structured.Block{}}
			case !e.hasStub(l, false):
				s = &structured.DoWhile{ID: l.id, Body: blockOf(h), Cond: stay}
			default:
				// a continue restarts the body without testing
				body := append(h.body, exitIf(stay, l.id))
				s = &structured.While{ID: l.id, Body: &structured.Block{Stmts: body}}
			}
		default:
			b, stay := t, cond
			out = f
			if !e.latch(h, t) {
				if !e.latch(h, f) {
					return false
				}
				b, stay, out = f, ir.Negate(cond), t
			}
			if onlyMerges(h.body) {
				pre = h.body
				s = &structured.While{ID: l.id, Cond: stay, Body: blockOf(b)}
			} else {
				body := append(h.body, exitIf(stay, l.id))
				body = append(body, b.body...)
				s = &structured.While{ID: l.id, Body: &structured.Block{Stmts: body}}
			}
			latch = b
		}
		if e.hasStub(l, true) && out != l.exit {
			return false
		}

	default:
		return false
	}
	// the loop may only close once the rest of its body that jumps
	// anywhere has folded into the header
	for _, n := range e.nodes {
		if n.live && l.body[n] && n.stub == nil && n.term.kind != termExit && n != h && n != latch && n != out {
			return false
		}
	}

	if latch != nil {
		latch.live = false
	}
	l.done = true
	h.body = append(pre, s)
	h.term = gotoTerm(out)
	for i, x := range h.loops {
		if x == l {
			h.loops = append(h.loops[:i:i], h.loops[i+1:]...)
			break
		}
	}
	return true
}

func exitIf(stay ir.Expr, id *ir.BlockID) structured.Stmt {
	return &structured.If{Cond: ir.Negate(stay), Then: &structured.Block{Stmts: []structured.Stmt{&structured.Break{Target: id}}}}
}

// latch reports whether b is the whole remaining loop body below h
func (e *engine) latch(h, b *node) bool {
	if b == h || !b.live || b.handler || b.head != nil || !sameRegions(h, b) || !sameLoops(h, b) {
		return false
	}
	return len(b.preds) == 1 && b.preds[0] == h && b.term.isGoto(h)
}

func (e *engine) hasStub(l *loop, brk bool) bool {
	for _, n := range e.nodes {
		if n.stub != nil && n.stub.loop == l && n.stub.brk == brk {
			return true
		}
	}
	return false
}

// switchStmt builds a switch once every case body is a single node
func (e *engine) switchStmt(a *node) bool {
	if a.term.kind != termSwitch {
		return false
	}
	var targets []*node
	seen := make(map[*node]bool)
	for _, t := range a.term.targets() {
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}

	// a case body is only entered from the switch or by falling through
	// from another case body
	isBody := make(map[*node]bool)
	for _, t := range targets {
		if t != a && t.live && !t.handler && e.free(t) && sameRegions(a, t) &&
			(t.term.kind == termExit || sameLoops(a, t)) {
			isBody[t] = true
		}
	}
	var bodies []*node
	for {
		prune(isBody, a)
		bodies = bodies[:0]
		for _, t := range targets {
			if isBody[t] {
				bodies = append(bodies, t)
			}
		}
		sortByOffset(bodies)
		// a body jumped to from a non-adjacent body is where the switch ends
		var end *node
		for i, b := range bodies {
			if t := b.term.next; b.term.kind == termGoto && isBody[t] && (i+1 >= len(bodies) || bodies[i+1] != t) {
				end = t
				break
			}
		}
		if end == nil {
			break
		}
		delete(isBody, end)
	}

	var exit *node
	setExit := func(n *node) bool {
		if exit != nil && exit != n {
			return false
		}
		exit = n
		return true
	}
	for _, t := range targets {
		if !isBody[t] && !setExit(t) {
			return false
		}
	}
	for i, b := range bodies {
		for _, p := range b.preds {
			if p != a && (i == 0 || p != bodies[i-1] || !bodies[i-1].term.isGoto(b)) {
				return false
			}
		}
		switch b.term.kind {
		case termExit:
		case termGoto:
			if i+1 < len(bodies) && b.term.next == bodies[i+1] {
				continue
			}
			if isBody[b.term.next] || !setExit(b.term.next) {
				return false
			}
		default:
			return false
		}
	}

	id := e.g.IDs.New(ir.KindSwitch)
	sw := &structured.Switch{ID: id, Key: a.term.key}
	for i, b := range bodies {
		c := &structured.Case{Values: valuesOf(a.term, b), Default: a.term.def == b}
		stmts := b.body
		if b.term.kind == termGoto && b.term.next == exit && i+1 < len(bodies) {
			stmts = append(stmts, &structured.Break{Target: id})
		}
		c.Body = &structured.Block{Stmts: stmts}
		sw.Cases = append(sw.Cases, c)
		b.live = false
	}
	if exit != nil {
		if vals := valuesOf(a.term, exit); len(vals) > 0 {
			sw.Cases = append(sw.Cases, &structured.Case{Values: vals,
				Body: &structured.Block{Stmts: []structured.Stmt{&structured.Break{Target: id}}}})
		}
	}
	a.body = append(a.body, sw)
	a.term = gotoTerm(exit)
	return true
}

// prune drops the candidate bodies entered from outside the switch
func prune(isBody map[*node]bool, a *node) {
	for changed := true; changed; {
		changed = false
		for t := range isBody {
			for _, p := range t.preds {
				if p != a && !isBody[p] {
					delete(isBody, t)
					changed = true
					break
				}
			}
		}
	}
}

func valuesOf(t term, n *node) []int32 {
	var out []int32
	for _, c := range t.cases {
		if c.target == n {
			out = append(out, c.values...)
		}
	}
	return out
}

// tryStmt wraps a protected region that has folded into a single node
// together with its handlers
func (e *engine) tryStmt(p *node) bool {
	if len(p.regions) == 0 || p.handler || p.stub != nil {
		return false
	}
	g := p.regions[len(p.regions)-1]
	outer := p.regions[:len(p.regions)-1]
	for _, n := range e.nodes {
		if n != p && n.live && inGroup(n, g) {
			return false
		}
	}
	if p.term.kind != termExit && p.term.kind != termGoto {
		return false
	}
	var exit *node
	if p.term.kind == termGoto {
		exit = p.term.next
	}

	type handler struct {
		n     *node
		types []jtypes.Type
	}
	var hs []*handler
	byNode := make(map[*node]*handler)
	add := func(block int, t jtypes.Type) {
		n := e.byBlock[block]
		h, ok := byNode[n]
		if !ok {
			h = &handler{n: n}
			byNode[n] = h
			hs = append(hs, h)
		}
		if t != nil {
			h.types = append(h.types, t)
		}
	}
	for _, c := range g.Catches {
		add(c.Handler, jtypes.ClassOf(c.Type))
	}
	if g.Finally >= 0 {
		add(g.Finally, nil)
	}

	var hexit *node
	for _, h := range hs {
		n := h.n
		if n == nil || !n.live || len(n.preds) != 0 || !regionsAre(n, outer) {
			return false
		}
		switch n.term.kind {
		case termExit:
		case termGoto:
			if hexit != nil && hexit != n.term.next {
				return false
			}
			hexit = n.term.next
		default:
			return false
		}
	}

	// the try body may leave through a node of its own that then joins the
	// handlers, as a copied finally block does
	var bridge *node
	switch {
	case exit == nil:
		exit = hexit
	case hexit != nil && exit != hexit:
		x := exit
		if len(x.preds) != 1 || x.handler || !e.free(x) || !x.term.isGoto(hexit) ||
			!regionsAre(x, outer) || !sameLoops(p, x) {
			return false
		}
		bridge, exit = x, hexit
	}

	t := &structured.Try{ID: g.ID, Body: blockOf(p)}
	for _, h := range hs {
		t.Catches = append(t.Catches, &structured.Catch{Try: g.ID, Types: h.types, Body: blockOf(h.n)})
		h.n.live = false
	}
	stmts := []structured.Stmt{t}
	if e.opts.OnTry != nil {
		stmts = e.opts.OnTry(t)
	}
	if bridge != nil {
		stmts = append(stmts, bridge.body...)
		bridge.live = false
	}
	p.body = stmts
	p.regions = outer
	p.term = gotoTerm(exit)
	return true
}

func inGroup(n *node, g *cfg.ExceptionGroup) bool {
	for _, r := range n.regions {
		if r == g {
			return true
		}
	}
	return false
}

// absorbTails moves method-ending nodes reached only from inside a try
// region into it. Copies of a finally block before a return sit outside
// the protected range; folding them is left to finally normalization. A
// group without a catch-any handler only takes tails that cannot throw.
func (e *engine) absorbTails() bool {
	for _, x := range e.live() {
		if x.handler || x.stub != nil || x.term.kind != termExit || len(x.preds) == 0 {
			continue
		}
		var g *cfg.ExceptionGroup
		ok := true
		for _, p := range x.preds {
			if len(p.regions) != len(x.regions)+1 {
				ok = false
				break
			}
			inner := p.regions[len(p.regions)-1]
			if g != nil && g != inner {
				ok = false
				break
			}
			g = inner
			for i := range x.regions {
				if p.regions[i] != x.regions[i] {
					ok = false
				}
			}
		}
		if !ok || g == nil {
			continue
		}
		if g.Finally < 0 && mayThrow(x.body) {
			continue
		}
		x.regions = append(append([]*cfg.ExceptionGroup(nil), x.regions...), g)
		return true
	}
	return false
}

func mayThrow(body []structured.Stmt) bool {
	for _, s := range body {
		a, ok := s.(*structured.Atom)
		if !ok {
			return true
		}
		switch st := a.S.(type) {
		case *ir.Throw, *ir.Monitor:
			return true
		case *ir.Merge:
		default:
			if v := ir.RValue(st); v != nil && ir.MayThrow(v) {
				return true
			}
			if _, ok := st.(*ir.Store); ok {
				return true
			}
		}
	}
	return false
}
