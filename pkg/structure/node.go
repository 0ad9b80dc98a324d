package structure

import (
	"fmt"
	"sort"

	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

type termKind int

const (
	termExit termKind = iota // return, throw or a stub
	termGoto
	termCond
	termSwitch
)

type swCase struct {
	values []int32
	target *node
}

// term is how control leaves a node
type term struct {
	kind termKind
	next *node // termGoto

	cond        ir.Expr // termCond, taken when true
	taken, fall *node

	key   ir.Expr // termSwitch
	cases []swCase
	def   *node
}

func gotoTerm(n *node) term {
	if n == nil {
		return term{kind: termExit}
	}
	return term{kind: termGoto, next: n}
}

func (t *term) targets() []*node {
	switch t.kind {
	case termGoto:
		return []*node{t.next}
	case termCond:
		return []*node{t.taken, t.fall}
	case termSwitch:
		out := make([]*node, 0, len(t.cases)+1)
		for _, c := range t.cases {
			out = append(out, c.target)
		}
		return append(out, t.def)
	}
	return nil
}

func (t *term) isGoto(n *node) bool {
	return t.kind == termGoto && t.next == n
}

// retarget replaces every edge to from with an edge to to
func (t *term) retarget(from, to *node) {
	switch t.kind {
	case termGoto:
		if t.next == from {
			t.next = to
		}
	case termCond:
		if t.taken == from {
			t.taken = to
		}
		if t.fall == from {
			t.fall = to
		}
	case termSwitch:
		for i := range t.cases {
			if t.cases[i].target == from {
				t.cases[i].target = to
			}
		}
		if t.def == from {
			t.def = to
		}
	}
}

// stub marks a node standing in for a break or continue edge. The edge to
// dest stays visible as a phantom predecessor until the loop is built.
type stub struct {
	loop *loop
	dest *node
	brk  bool
}

// node is a single-entry region of the method being structured
type node struct {
	seq     int
	offset  int
	body    []structured.Stmt
	term    term
	preds   []*node
	regions []*cfg.ExceptionGroup
	loops   []*loop // enclosing loops, outermost first
	handler bool
	live    bool

	stub *stub
	head *loop // loop headed by this node
}

func (n *node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.stub != nil {
		return fmt.Sprintf("stub@%d", n.offset)
	}
	return fmt.Sprintf("N%d", n.offset)
}

// loop is a natural loop of the method
type loop struct {
	id     *ir.BlockID
	header *node
	exit   *node
	body   map[*node]bool
	done   bool
}

type engine struct {
	g       *cfg.Graph
	opts    Options
	nodes   []*node
	byBlock []*node
	root    *node
	loops   []*loop // innermost first
	notes   []string
}

func (e *engine) newNode(offset int) *node {
	n := &node{seq: len(e.nodes), offset: offset, live: true}
	e.nodes = append(e.nodes, n)
	return n
}

func newEngine(g *cfg.Graph, opts Options) *engine {
	e := &engine{g: g, opts: opts, byBlock: make([]*node, len(g.Blocks))}
	for _, b := range g.Blocks {
		if !b.Reachable {
			continue
		}
		n := e.newNode(b.Offset)
		n.handler = b.Handler
		n.regions = ownRegions(g, b)
		e.byBlock[b.Index] = n
	}
	for _, b := range g.Blocks {
		if n := e.byBlock[b.Index]; n != nil {
			n.body, n.term = e.split(b)
		}
	}
	e.root = e.byBlock[0]
	e.findLoops()
	return e
}

func (e *engine) at(offset int) *node {
	b, ok := e.g.BlockAt(offset)
	if !ok || e.byBlock[b] == nil {
		panic(ir.ContractViolation{Op: "structure.Run", What: fmt.Sprintf("jump to %d without a reachable block", offset)})
	}
	return e.byBlock[b]
}

// split separates the trailing jump of b from its body
func (e *engine) split(b *cfg.Block) ([]structured.Stmt, term) {
	var fall *node
	for _, s := range b.Succs {
		if s.Kind == cfg.Fallthrough {
			fall = e.byBlock[s.To]
		}
	}
	stmts := b.Stmts
	t := gotoTerm(fall)
	if len(stmts) > 0 {
		switch s := stmts[len(stmts)-1].(type) {
		case *ir.Jump:
			t = gotoTerm(e.at(s.Target))
			stmts = stmts[:len(stmts)-1]
		case *ir.CondJump:
			t = term{kind: termCond, cond: s.Cond, taken: e.at(s.Target), fall: fall}
			stmts = stmts[:len(stmts)-1]
		case *ir.SwitchJump:
			t = term{kind: termSwitch, key: s.Key, def: e.at(s.Default)}
			for _, c := range s.Cases {
				t.cases = append(t.cases, swCase{values: c.Values, target: e.at(c.Target)})
			}
			stmts = stmts[:len(stmts)-1]
		case *ir.Return, *ir.Throw:
			t = term{kind: termExit}
		}
	}
	body := make([]structured.Stmt, len(stmts))
	for i, s := range stmts {
		body[i] = &structured.Atom{S: s}
	}
	return body, t
}

// ownRegions drops groups whose range only protects the group's own
// handler, as emitted around monitor exits
func ownRegions(g *cfg.Graph, b *cfg.Block) []*cfg.ExceptionGroup {
	var out []*cfg.ExceptionGroup
	for _, eg := range b.Regions {
		if !selfCovered(g, eg, b.Offset) {
			out = append(out, eg)
		}
	}
	return out
}

func selfCovered(g *cfg.Graph, eg *cfg.ExceptionGroup, off int) bool {
	for _, r := range eg.Ranges {
		if !r.Contains(off) {
			continue
		}
		for _, h := range eg.Handlers() {
			if g.Blocks[h].Offset == r.Start {
				return true
			}
		}
		return false
	}
	return false
}

func (e *engine) findLoops() {
	for _, cl := range e.g.Loops {
		h := e.byBlock[cl.Header]
		blocks := naturalLoop(e.g, cl)
		l := &loop{id: cl.ID, header: h, body: make(map[*node]bool)}
		exit := e.chooseExit(cl, blocks)
		breakPaths(e.g, blocks, exit)
		for b := range blocks {
			l.body[e.byBlock[b]] = true
		}
		if exit >= 0 {
			l.exit = e.byBlock[exit]
		}
		h.head = l
		e.loops = append(e.loops, l)
	}
	sort.SliceStable(e.loops, func(i, j int) bool {
		if len(e.loops[i].body) != len(e.loops[j].body) {
			return len(e.loops[i].body) < len(e.loops[j].body)
		}
		return e.loops[i].header.offset > e.loops[j].header.offset
	})
	for _, n := range e.nodes {
		for i := len(e.loops) - 1; i >= 0; i-- {
			if e.loops[i].body[n] {
				n.loops = append(n.loops, e.loops[i])
			}
		}
	}
}

// naturalLoop collects the blocks that reach a latch without passing the
// header
func naturalLoop(g *cfg.Graph, cl *cfg.Loop) map[int]bool {
	body := map[int]bool{cl.Header: true}
	stack := append([]int(nil), cl.Latches...)
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body[b] {
			continue
		}
		body[b] = true
		for _, p := range g.Blocks[b].Preds {
			if p.Kind != cfg.Exception && g.Blocks[p.From].Reachable {
				stack = append(stack, p.From)
			}
		}
	}
	return body
}

// breakPaths adds to body the blocks only entered from inside the loop
// that go straight to the exit or end the method
func breakPaths(g *cfg.Graph, body map[int]bool, exit int) {
	for b, blk := range g.Blocks {
		if body[b] || b == exit || !blk.Reachable || blk.Handler || len(blk.Preds) == 0 {
			continue
		}
		ok := true
		for _, p := range blk.Preds {
			if p.Kind == cfg.Exception || !body[p.From] {
				ok = false
			}
		}
		for _, s := range blk.Succs {
			if s.Kind != cfg.Exception && s.To != exit {
				ok = false
			}
		}
		if ok {
			body[b] = true
		}
	}
}

// chooseExit picks the block a break of the loop lands on: the outside
// target of a conditional header, else the lowest outside target that
// does not simply end the method. It returns -1 when there is none.
func (e *engine) chooseExit(cl *cfg.Loop, body map[int]bool) int {
	hdr := e.g.Blocks[cl.Header]
	if t := e.byBlock[cl.Header].term; t.kind == termCond {
		var outside []int
		for _, s := range hdr.Succs {
			if s.Kind != cfg.Exception && !body[s.To] {
				outside = append(outside, s.To)
			}
		}
		if len(outside) == 1 {
			return e.leaving(outside[0])
		}
	}
	best := -1
	for b := range body {
		for _, s := range e.g.Blocks[b].Succs {
			if s.Kind == cfg.Exception || body[s.To] || endsMethod(e.g.Blocks[s.To]) {
				continue
			}
			if best < 0 || e.g.Blocks[s.To].Offset < e.g.Blocks[best].Offset {
				best = s.To
			}
		}
	}
	return best
}

// leaving follows empty blocks that only jump out of the protected region
// they sit in, as a break from inside a try compiles
func (e *engine) leaving(b int) int {
	for seen := make(map[int]bool); !seen[b]; {
		seen[b] = true
		n := e.byBlock[b]
		if n == nil || n.handler || len(n.body) != 0 || n.term.kind != termGoto || len(n.term.next.regions) >= len(n.regions) {
			return b
		}
		next, ok := e.g.BlockAt(n.term.next.offset)
		if !ok {
			return b
		}
		b = next
	}
	return b
}

func endsMethod(b *cfg.Block) bool {
	for _, s := range b.Succs {
		if s.Kind != cfg.Exception {
			return false
		}
	}
	return true
}

// recomputePreds rebuilds every predecessor list from the live terms and
// the phantom edges of stubs whose loop is still open
func (e *engine) recomputePreds() {
	for _, n := range e.nodes {
		n.preds = n.preds[:0]
	}
	for _, n := range e.nodes {
		if !n.live {
			continue
		}
		for _, t := range n.term.targets() {
			addPred(t, n)
		}
	}
	for _, n := range e.nodes {
		if n.stub != nil && !n.stub.loop.done {
			addPred(n.stub.dest, n)
		}
	}
}

func addPred(t, p *node) {
	for _, x := range t.preds {
		if x == p {
			return
		}
	}
	t.preds = append(t.preds, p)
}

// live returns the live nodes by offset, then creation order
func (e *engine) live() []*node {
	var out []*node
	for _, n := range e.nodes {
		if n.live {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].offset != out[j].offset {
			return out[i].offset < out[j].offset
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func sameRegions(a, b *node) bool { return regionsAre(b, a.regions) }

func regionsAre(n *node, regions []*cfg.ExceptionGroup) bool {
	if len(n.regions) != len(regions) {
		return false
	}
	for i := range regions {
		if n.regions[i] != regions[i] {
			return false
		}
	}
	return true
}

func sameLoops(a, b *node) bool {
	if len(a.loops) != len(b.loops) {
		return false
	}
	for i := range a.loops {
		if a.loops[i] != b.loops[i] {
			return false
		}
	}
	return true
}

// free reports whether n may be folded into another node: it heads no
// open loop and is not where an open loop's breaks land
func (e *engine) free(n *node) bool {
	if n.head != nil && !n.head.done {
		return false
	}
	for _, l := range e.loops {
		if !l.done && l.exit == n {
			return false
		}
	}
	return true
}

func blockOf(n *node) *structured.Block {
	return &structured.Block{Stmts: n.body}
}

func onlyMerges(body []structured.Stmt) bool {
	for _, s := range body {
		a, ok := s.(*structured.Atom)
		if !ok {
			return false
		}
		if _, ok := a.S.(*ir.Merge); !ok {
			return false
		}
	}
	return true
}
