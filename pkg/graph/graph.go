// Package graph provides the generic control-flow graph algorithms shared
// by the CFG builder, the SSA builder and the structuring engine:
// reverse postorder, dominator trees and dominance frontiers over nodes
// numbered 0..Len()-1.
package graph

import "sort"

// Graph is a directed graph over nodes 0..Len()-1
type Graph interface {
	Len() int
	Succs(n int) []int
}

// ReversePostorder returns the nodes reachable from root in reverse
// postorder. Successors are visited in the order Succs returns them.
func ReversePostorder(g Graph, root int) []int {
	visited := make([]bool, g.Len())
	var postorder []int

	var dfs func(n int)
	dfs = func(n int) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, s := range g.Succs(n) {
			dfs(s)
		}
		postorder = append(postorder, n)
	}
	dfs(root)

	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	return postorder
}

// Preds computes the predecessor lists of g, each sorted ascending
func Preds(g Graph) [][]int {
	preds := make([][]int, g.Len())
	for n := 0; n < g.Len(); n++ {
		for _, s := range g.Succs(n) {
			preds[s] = append(preds[s], n)
		}
	}
	for _, p := range preds {
		sort.Ints(p)
	}
	return preds
}

// DomTree is the dominator tree of the nodes reachable from a root
type DomTree struct {
	Root     int
	RPO      []int
	idom     []int
	rpoIndex []int
	children [][]int
}

// Dominators computes the dominator tree of g using Cooper, Harvey and
// Kennedy's "A Simple, Fast Dominance Algorithm".
func Dominators(g Graph, root int) *DomTree {
	n := g.Len()
	d := &DomTree{
		Root:     root,
		RPO:      ReversePostorder(g, root),
		idom:     make([]int, n),
		rpoIndex: make([]int, n),
		children: make([][]int, n),
	}
	for i := range d.idom {
		d.idom[i] = -1
		d.rpoIndex[i] = -1
	}
	for i, b := range d.RPO {
		d.rpoIndex[b] = i
	}
	preds := Preds(g)

	intersect := func(b1, b2 int) int {
		for b1 != b2 {
			for d.rpoIndex[b1] > d.rpoIndex[b2] {
				b1 = d.idom[b1]
			}
			for d.rpoIndex[b2] > d.rpoIndex[b1] {
				b2 = d.idom[b2]
			}
		}
		return b1
	}

	// root dominates itself while iterating
	d.idom[root] = root
	changed := true
	for changed {
		changed = false
		for _, b := range d.RPO[1:] {
			newIdom := -1
			for _, p := range preds[b] {
				if d.idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != -1 && d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	d.idom[root] = -1

	// children in reverse postorder
	for _, b := range d.RPO {
		if p := d.idom[b]; p != -1 {
			d.children[p] = append(d.children[p], b)
		}
	}
	return d
}

// Idom returns the immediate dominator of n, or -1 for the root and
// unreachable nodes.
func (d *DomTree) Idom(n int) int { return d.idom[n] }

// Reachable reports whether n is reachable from the root
func (d *DomTree) Reachable(n int) bool { return d.rpoIndex[n] >= 0 }

// Order returns the reverse postorder index of n, or -1 if unreachable
func (d *DomTree) Order(n int) int { return d.rpoIndex[n] }

// Children returns the nodes immediately dominated by n in reverse postorder
func (d *DomTree) Children(n int) []int { return d.children[n] }

// Dominates reports whether a dominates b. Every node dominates itself.
func (d *DomTree) Dominates(a, b int) bool {
	if !d.Reachable(a) || !d.Reachable(b) {
		return false
	}
	for b != -1 {
		if a == b {
			return true
		}
		if d.rpoIndex[b] < d.rpoIndex[a] {
			return false
		}
		b = d.idom[b]
	}
	return false
}

// Frontiers computes the dominance frontier of every reachable node
func (d *DomTree) Frontiers(g Graph) [][]int {
	df := make([][]int, g.Len())
	preds := Preds(g)
	for _, b := range d.RPO {
		var reachable []int
		for _, p := range preds[b] {
			if d.Reachable(p) {
				reachable = append(reachable, p)
			}
		}
		if len(reachable) < 2 {
			continue
		}
		for _, p := range reachable {
			runner := p
			for runner != -1 && runner != d.idom[b] {
				df[runner] = appendUnique(df[runner], b)
				runner = d.idom[runner]
			}
		}
	}
	return df
}

// appendUnique appends b to list if not already present
func appendUnique(list []int, b int) []int {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}

// IteratedFrontier returns the iterated dominance frontier of the given
// definition nodes, sorted ascending.
func IteratedFrontier(df [][]int, defs []int) []int {
	in := make(map[int]bool)
	work := append([]int(nil), defs...)
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, f := range df[n] {
			if !in[f] {
				in[f] = true
				work = append(work, f)
			}
		}
	}
	out := make([]int, 0, len(in))
	for n := range in {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
