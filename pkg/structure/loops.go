package structure

import (
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/structured"
)

func sortByOffset(ns []*node) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].offset != ns[j].offset {
			return ns[i].offset < ns[j].offset
		}
		return ns[i].seq < ns[j].seq
	})
}

// normalizeLoops rewrites the stray edges of the innermost open loop that
// has any: jumps to the exit from inside the body become break stubs, and
// once there are none left, jumps to the header other than from the latch
// become continue stubs.
func (e *engine) normalizeLoops() bool {
	for _, l := range e.loops {
		if !l.done && e.normalize(l) {
			return true
		}
	}
	return false
}

func (e *engine) normalize(l *loop) bool {
	var body []*node
	for _, n := range e.live() {
		if l.body[n] && n.stub == nil {
			body = append(body, n)
		}
	}
	// the latch is the last node jumping back to the header, preferring
	// one outside a handler
	var latch, last *node
	for _, n := range body {
		for _, t := range n.term.targets() {
			if t == l.header {
				last = n
				if !n.handler {
					latch = n
				}
			}
		}
	}
	if latch == nil {
		latch = last
	}

	// continues are only rewritten once no break is left
	changed := false
	for _, n := range body {
		for _, t := range uniqueTargets(n) {
			if t == l.exit && t != nil && n != l.header && n != latch {
				e.redirect(n, t, l, true)
				changed = true
			}
		}
	}
	if changed {
		return true
	}
	for _, n := range body {
		for _, t := range uniqueTargets(n) {
			if t == l.header && n != latch {
				e.redirect(n, t, l, false)
				changed = true
			}
		}
	}
	return changed
}

func uniqueTargets(n *node) []*node {
	var out []*node
	seen := make(map[*node]bool)
	for _, t := range n.term.targets() {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// redirect sends every edge from n to dest through a new break or continue
// stub
func (e *engine) redirect(n, dest *node, l *loop, brk bool) {
	s := e.newNode(n.offset)
	s.stub = &stub{loop: l, dest: dest, brk: brk}
	s.regions = n.regions
	s.loops = n.loops
	s.term = term{kind: termExit}
	if brk {
		s.body = []structured.Stmt{&structured.Break{Target: l.id}}
	} else {
		s.body = []structured.Stmt{&structured.Continue{Target: l.id}}
	}
	n.term.retarget(dest, s)
}
