// Package stacksim rebuilds expressions from bytecode by simulating the
// operand stack of every basic block. It emits the flat statements of each
// block, spilling stack values into dedicated slots wherever evaluation
// order or a block boundary requires the value to be committed.
package stacksim

import (
	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

// Options controls expression building
type Options struct {
	// Oracle answers subtype questions; nil keeps every cast
	Oracle jtypes.Oracle
	// ElideCasts drops checkcasts the oracle proves redundant
	ElideCasts bool
}

// Layout describes the slots the simulator allocates above the method's
// own locals.
type Layout struct {
	// SpillBase is the first stack spill slot; the value at stack position
	// i crosses block boundaries in slot SpillBase+i
	SpillBase int
	// TempBase is the first temporary slot
	TempBase int
	// Temps is the number of temporaries allocated
	Temps int
}

// IsSpill reports whether slot holds a stack value crossing a block boundary
func (l Layout) IsSpill(slot int) bool { return slot >= l.SpillBase && slot < l.TempBase }

// IsStack reports whether slot was allocated by the simulator
func (l Layout) IsStack(slot int) bool { return slot >= l.SpillBase }

// entry is one operand stack value
type entry struct {
	e   ir.Expr
	cat int
	// cmp holds the operands of an lcmp/fcmp/dcmp result so that the
	// following if<cond> can become a direct comparison
	cmp *operands
}

// operands of a three-way comparison. nan is the result for an unordered
// pair: -1 for fcmpl and dcmpl, 1 for fcmpg and dcmpg, 0 for lcmp.
type operands struct {
	x, y ir.Expr
	nan  int
}

type sim struct {
	g      *cfg.Graph
	m      *bytecode.Method
	opts   Options
	layout Layout

	localTypes map[int]jtypes.Type
	stack      []entry
	pending    []ir.Stmt
	off        int
}

// Run simulates every reachable block in reverse postorder and stores the
// statements in the blocks. Unreachable blocks are left empty.
func Run(g *cfg.Graph, opts Options) (Layout, error) {
	maxDepth, err := Depths(g)
	if err != nil {
		return Layout{}, err
	}
	m := g.Method
	s := &sim{
		g:          g,
		m:          m,
		opts:       opts,
		layout:     Layout{SpillBase: m.MaxLocals, TempBase: m.MaxLocals + maxDepth},
		localTypes: make(map[int]jtypes.Type),
	}
	if err := s.initLocals(); err != nil {
		return Layout{}, err
	}

	for _, b := range g.ReversePostorder() {
		if err := s.block(b); err != nil {
			return Layout{}, err
		}
	}
	return s.layout, nil
}

func (s *sim) initLocals() error {
	mt, err := jtypes.ParseMethod(s.m.Descriptor)
	if err != nil {
		return &ir.InconsistencyError{Kind: ir.KindBadOperand, Detail: err.Error()}
	}
	slot := 0
	if !s.m.Static {
		s.localTypes[0] = jtypes.ClassOf(s.m.Owner)
		slot++
	}
	for _, p := range mt.Params {
		s.localTypes[slot] = p
		slot += jtypes.StackTypeOf(p).Category()
	}
	return nil
}

func (s *sim) block(b int) error {
	blk := s.g.Blocks[b]
	s.stack = s.entryStack(blk)
	s.pending = nil

	var stmts []ir.Stmt
	for _, ins := range s.g.Instructions(b) {
		st, err := s.step(&ins)
		if err != nil {
			return err
		}
		if st != nil {
			stmts = append(stmts, ir.Flatten([]ir.Stmt{st})...)
		}
	}

	stmts = s.spillExit(stmts)
	blk.Stmts = stmts

	types := make([]jtypes.Type, len(s.stack))
	for i, e := range s.stack {
		types[i] = ir.TypeOf(e.e)
	}
	for _, e := range blk.Succs {
		if e.Kind != cfg.Exception {
			succ := s.g.Blocks[e.To]
			succ.EntryTypes = append(succ.EntryTypes, types)
		}
	}
	return nil
}

// entryStack builds the stack on block entry: the caught exception for a
// handler, otherwise references to the spill slots
func (s *sim) entryStack(blk *cfg.Block) []entry {
	if blk.Handler {
		return []entry{{e: &ir.CaughtException{Type: blk.HandlerType}, cat: 1}}
	}
	var out []entry
	depth := 0
	for i := 0; depth < blk.EntryDepth; i++ {
		t := s.mergeTypes(blk.EntryTypes, i)
		cat := jtypes.StackTypeOf(t).Category()
		out = append(out, entry{e: &ir.LocalRef{LV: ir.LValue{Slot: s.layout.SpillBase + i}, Type: t}, cat: cat})
		depth += cat
	}
	return out
}

// mergeTypes joins the candidate types of stack position i
func (s *sim) mergeTypes(cands [][]jtypes.Type, i int) jtypes.Type {
	var out jtypes.Type
	for _, c := range cands {
		if i >= len(c) || c[i] == nil {
			continue
		}
		t := c[i]
		switch {
		case out == nil:
			out = t
		case jtypes.Equal(out, t):
		case jtypes.ImplicitlyCastsTo(s.opts.Oracle, t, out):
		case jtypes.ImplicitlyCastsTo(s.opts.Oracle, out, t):
			out = t
		case jtypes.IsReference(out) && jtypes.IsReference(t):
			out = jtypes.Object()
		default:
			out = computational(t)
		}
	}
	return out
}

// computational widens the sub-int primitives to int
func computational(t jtypes.Type) jtypes.Type {
	switch jtypes.StackTypeOf(t) {
	case jtypes.StackInt:
		return jtypes.IntT()
	case jtypes.StackRef:
		return jtypes.Object()
	}
	return t
}

func (s *sim) push(e ir.Expr) {
	s.stack = append(s.stack, entry{e: e, cat: jtypes.StackTypeOf(ir.TypeOf(e)).Category()})
}

func (s *sim) pop() (entry, error) {
	if len(s.stack) == 0 {
		return entry{}, &ir.InconsistencyError{Kind: ir.KindStackUnderflow, Offset: s.off, Expected: 1}
	}
	e := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return e, nil
}

func (s *sim) popExpr() (ir.Expr, error) {
	e, err := s.pop()
	return e.e, err
}

// popN pops n values and returns them in push order
func (s *sim) popN(n int) ([]ir.Expr, error) {
	out := make([]ir.Expr, n)
	for i := n - 1; i >= 0; i-- {
		e, err := s.popExpr()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// takeSlots pops values covering exactly n JVM slots, returned in push order
func (s *sim) takeSlots(n int) ([]entry, error) {
	var out []entry
	for n > 0 {
		e, err := s.pop()
		if err != nil {
			return nil, err
		}
		if e.cat > n {
			return nil, &ir.InconsistencyError{Kind: ir.KindBadOperand, Offset: s.off, Detail: "operation splits a category 2 value"}
		}
		n -= e.cat
		out = append([]entry{e}, out...)
	}
	return out, nil
}

func (s *sim) newTemp() int {
	t := s.layout.TempBase + s.layout.Temps
	s.layout.Temps++
	return t
}

// copyable reports whether e may appear twice without being evaluated twice
// or being clobbered by the exit spill
func (s *sim) copyable(e ir.Expr) bool {
	switch e := e.(type) {
	case *ir.Const, *ir.Uninit:
		return true
	case *ir.LocalRef:
		return !s.layout.IsSpill(e.LV.Slot)
	}
	return false
}

// pin commits the values a dup or swap is about to copy or move, bottom
// first. Unstable values still on the stack are committed before them
// to keep their evaluation order.
func (s *sim) pin(es []entry) {
	spilled := false
	for i := range es {
		if s.copyable(es[i].e) {
			continue
		}
		if !spilled && !ir.IsStable(es[i].e) {
			s.spillUnstable(len(s.stack), true, true)
			spilled = true
		}
		es[i].e = s.commit(es[i].e)
		es[i].cmp = nil
	}
}

func (s *sim) commitAt(i int) {
	s.stack[i].e = s.commit(s.stack[i].e)
	s.stack[i].cmp = nil
}

// commit assigns e to a fresh temporary and returns a reference to it
func (s *sim) commit(e ir.Expr) ir.Expr {
	t := s.newTemp()
	lv := ir.LValue{Slot: t}
	s.pending = append(s.pending, &ir.Assign{LV: lv, Value: e})
	return &ir.LocalRef{LV: lv, Type: ir.TypeOf(e)}
}

// spillUnstable commits every value below limit that must be evaluated
// before a statement with the given effects
func (s *sim) spillUnstable(limit int, side, heap bool) {
	for i := 0; i < limit; i++ {
		e := s.stack[i].e
		if (side && !ir.IsStable(e)) || (heap && ir.HasSideEffects(e)) {
			s.commitAt(i)
		}
	}
}

// protectSlot commits every stack value that reads slot before it is written
func (s *sim) protectSlot(slot int) {
	for i := range s.stack {
		if ir.ReadsSlot(s.stack[i].e, slot) {
			if !ir.IsStable(s.stack[i].e) {
				s.spillUnstable(i, true, true)
			}
			s.commitAt(i)
		}
	}
}

// emit queues a statement produced by the current instruction after
// committing the stack values that must be evaluated before it
func (s *sim) emit(st ir.Stmt) {
	switch st.(type) {
	case *ir.Jump:
	default:
		side := ir.StmtHasSideEffects(st)
		heap := !ir.IsStable(ir.RValue(st))
		if side || heap {
			s.spillUnstable(len(s.stack), side, heap)
		}
	}
	if lv, ok := ir.CreatedLValue(st); ok {
		s.protectSlot(lv.Slot)
	}
	s.pending = append(s.pending, st)
}

// leave drops the stack at a return or throw; values with side effects
// are still evaluated, in order
func (s *sim) leave() {
	for _, e := range s.stack {
		if ir.HasSideEffects(e.e) {
			s.pending = append(s.pending, &ir.ExprStmt{X: e.e})
		}
	}
	s.stack = nil
}

// take returns the statements queued by the current instruction
func (s *sim) take() ir.Stmt {
	p := s.pending
	s.pending = nil
	switch len(p) {
	case 0:
		return nil
	case 1:
		return p[0]
	}
	return &ir.Compound{Stmts: p}
}

// spillExit stores the exit stack into the spill slots, ahead of the
// block's terminating jump
func (s *sim) spillExit(stmts []ir.Stmt) []ir.Stmt {
	var spills []ir.Stmt
	for i, e := range s.stack {
		slot := s.layout.SpillBase + i
		if r, ok := e.e.(*ir.LocalRef); ok && r.LV.Slot == slot {
			continue
		}
		lv := ir.LValue{Slot: slot}
		spills = append(spills, &ir.Assign{LV: lv, Value: e.e})
		s.stack[i].e = &ir.LocalRef{LV: lv, Type: ir.TypeOf(e.e)}
	}
	if len(spills) == 0 {
		return stmts
	}
	if n := len(stmts); n > 0 {
		switch stmts[n-1].(type) {
		case *ir.Jump, *ir.CondJump, *ir.SwitchJump:
			out := append([]ir.Stmt(nil), stmts[:n-1]...)
			out = append(out, spills...)
			return append(out, stmts[n-1])
		}
	}
	return append(stmts, spills...)
}
