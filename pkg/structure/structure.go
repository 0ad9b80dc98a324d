// Package structure turns the control-flow graph of a method into a
// structured statement tree. Regions are folded by a fixed set of
// transitions (sequence, conditional, loop, switch, try) applied in
// priority order until the method is a single node; whatever cannot be
// folded is emitted as labeled blocks with raw jumps.
package structure

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

// DefaultMaxIterations bounds the transitions applied to one method
const DefaultMaxIterations = 10000

// ErrEmpty is returned for a graph without blocks
var ErrEmpty = errors.New("structure: empty graph")

// Options configures structuring
type Options struct {
	// MaxIterations bounds the number of transitions; zero means
	// DefaultMaxIterations. Reaching it takes the fallback path.
	MaxIterations int
	// OnTry is called for every new try statement and returns the
	// statements that replace it
	OnTry func(*structured.Try) []structured.Stmt
	// Logger receives a debug record per transition; nil disables
	Logger *slog.Logger
}

// Result is the structured body of one method
type Result struct {
	Body       *structured.Block
	Structured bool
	Iterations int
	Notes      []string
}

// Run structures the simulated graph g
func Run(g *cfg.Graph, opts Options) (*Result, error) {
	if len(g.Blocks) == 0 {
		return nil, ErrEmpty
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	e := newEngine(g, opts)
	res := &Result{}
	if g.Irreducible {
		e.notes = append(e.notes, "irreducible control flow")
	}
	for {
		if res.Iterations >= opts.MaxIterations {
			if e.finished() {
				break
			}
			e.notes = append(e.notes, fmt.Sprintf("gave up after %d transitions", res.Iterations))
			break
		}
		if !e.step() {
			break
		}
		res.Iterations++
	}

	if e.finished() {
		res.Body = &structured.Block{Stmts: e.root.body}
		res.Structured = true
	} else {
		res.Body = e.fallback()
		res.Structured = structured.IsFullyStructured(res.Body)
		if !res.Structured {
			e.notes = append(e.notes, "control flow could not be fully structured")
		}
	}
	res.Notes = e.notes
	if err := structured.CheckScoping(res.Body); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return res, nil
}

// finished reports whether everything folded into the entry node
func (e *engine) finished() bool {
	for _, n := range e.nodes {
		if n.live && n != e.root {
			return false
		}
	}
	return e.root.term.kind == termExit
}

type transition struct {
	name string
	fn   func(*engine, *node) bool
}

var transitions = []transition{
	{"sequence", (*engine).sequence},
	{"if", (*engine).conditional},
	{"loop", (*engine).loopStmt},
	{"switch", (*engine).switchStmt},
	{"try", (*engine).tryStmt},
}

// step applies the first transition that fits, visiting nodes by offset.
// When none fits, stray loop edges are rewritten and method-ending tails
// are pulled into try regions before giving up.
func (e *engine) step() bool {
	e.recomputePreds()
	for _, n := range e.live() {
		if !n.live {
			continue
		}
		for _, t := range transitions {
			if t.fn(e, n) {
				e.trace(t.name, n)
				return true
			}
		}
	}
	if e.normalizeLoops() {
		e.trace("normalize", e.root)
		return true
	}
	if e.absorbTails() {
		e.trace("absorb", e.root)
		return true
	}
	return false
}

func (e *engine) trace(name string, n *node) {
	if e.opts.Logger != nil {
		e.opts.Logger.Debug("structure", "transition", name, "offset", n.offset)
	}
}
