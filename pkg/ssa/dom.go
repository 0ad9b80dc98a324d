// Package ssa assigns versioned identities to local variables over a
// simulated CFG, synthesizes merge definitions at joins, and inlines
// single-use definitions into their use.
package ssa

import (
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/graph"
)

// Dominators is the dominator tree of a method's blocks over every edge,
// exception edges included, together with the dominance frontiers.
type Dominators struct {
	*graph.DomTree
	df [][]int
}

// ComputeDominators builds the dominator tree rooted at the entry block
func ComputeDominators(g *cfg.Graph) *Dominators {
	t := graph.Dominators(g, 0)
	return &Dominators{DomTree: t, df: t.Frontiers(g)}
}

// Frontier returns the dominance frontier of block b
func (d *Dominators) Frontier(b int) []int { return d.df[b] }

// IteratedFrontier returns the iterated dominance frontier of blocks
func (d *Dominators) IteratedFrontier(blocks []int) []int {
	return graph.IteratedFrontier(d.df, blocks)
}
