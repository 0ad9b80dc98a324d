package stacksim

import (
	"fmt"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

var (
	byteT  = jtypes.Prim{Kind: jtypes.Byte}
	charT  = jtypes.Prim{Kind: jtypes.Char}
	shortT = jtypes.Prim{Kind: jtypes.Short}
)

func (s *sim) badOperand(ins *bytecode.Instruction, format string, args ...any) error {
	return &ir.InconsistencyError{Kind: ir.KindBadOperand, Offset: ins.Offset, Detail: fmt.Sprintf(format, args...)}
}

func intConst(v int32) ir.Expr { return &ir.Const{Type: jtypes.IntT(), Value: v} }

// step simulates one instruction and returns the statements it produced
func (s *sim) step(ins *bytecode.Instruction) (ir.Stmt, error) {
	s.off = ins.Offset
	if err := s.exec(ins); err != nil {
		return nil, err
	}
	return s.take(), nil
}

func (s *sim) exec(ins *bytecode.Instruction) error {
	info, ok := ins.Op.Info()
	if !ok {
		return &ir.InconsistencyError{Kind: ir.KindUnsupported, Offset: ins.Offset, Detail: ins.Op.String()}
	}
	switch info.Kind {
	case bytecode.OpLocal:
		return s.local(ins)
	case bytecode.OpBranch:
		return s.branch(ins)
	case bytecode.OpField:
		return s.field(ins)
	case bytecode.OpMethod, bytecode.OpInterface:
		return s.invoke(ins)
	}

	op := ins.Op
	switch op {
	case bytecode.Nop:
	case bytecode.AconstNull:
		s.push(&ir.Const{Type: jtypes.NullT()})
	case bytecode.IconstM1, bytecode.Iconst0, bytecode.Iconst1, bytecode.Iconst2,
		bytecode.Iconst3, bytecode.Iconst4, bytecode.Iconst5:
		s.push(intConst(int32(op) - int32(bytecode.Iconst0)))
	case bytecode.Lconst0, bytecode.Lconst1:
		s.push(&ir.Const{Type: jtypes.LongT(), Value: int64(op - bytecode.Lconst0)})
	case bytecode.Fconst0, bytecode.Fconst1, bytecode.Fconst2:
		s.push(&ir.Const{Type: jtypes.FloatT(), Value: float32(op - bytecode.Fconst0)})
	case bytecode.Dconst0, bytecode.Dconst1:
		s.push(&ir.Const{Type: jtypes.DoubleT(), Value: float64(op - bytecode.Dconst0)})
	case bytecode.Bipush, bytecode.Sipush:
		if len(ins.Operands) != 1 {
			return s.badOperand(ins, "%s needs a value", op)
		}
		s.push(intConst(int32(ins.Operands[0])))
	case bytecode.Ldc, bytecode.LdcW, bytecode.Ldc2W:
		return s.ldc(ins)

	case bytecode.Iaload:
		return s.arrayLoad(jtypes.IntT())
	case bytecode.Laload:
		return s.arrayLoad(jtypes.LongT())
	case bytecode.Faload:
		return s.arrayLoad(jtypes.FloatT())
	case bytecode.Daload:
		return s.arrayLoad(jtypes.DoubleT())
	case bytecode.Aaload:
		return s.arrayLoad(jtypes.Object())
	case bytecode.Baload:
		return s.arrayLoad(byteT)
	case bytecode.Caload:
		return s.arrayLoad(charT)
	case bytecode.Saload:
		return s.arrayLoad(shortT)
	case bytecode.Iastore, bytecode.Lastore, bytecode.Fastore, bytecode.Dastore,
		bytecode.Aastore, bytecode.Bastore, bytecode.Castore, bytecode.Sastore:
		vals, err := s.popN(3)
		if err != nil {
			return err
		}
		target := &ir.ArrayIndex{Array: vals[0], Index: vals[1], Type: elemType(vals[0], nil)}
		s.emit(&ir.Store{Target: target, Value: vals[2]})

	case bytecode.Pop, bytecode.Pop2:
		n := 1
		if op == bytecode.Pop2 {
			n = 2
		}
		es, err := s.takeSlots(n)
		if err != nil {
			return err
		}
		for _, e := range es {
			if ir.HasSideEffects(e.e) {
				s.emit(&ir.ExprStmt{X: e.e})
			}
		}
	case bytecode.Dup, bytecode.DupX1, bytecode.DupX2, bytecode.Dup2,
		bytecode.Dup2X1, bytecode.Dup2X2, bytecode.Swap:
		return s.shuffle(op)

	case bytecode.Iadd, bytecode.Isub, bytecode.Imul, bytecode.Idiv, bytecode.Irem,
		bytecode.Ishl, bytecode.Ishr, bytecode.Iushr, bytecode.Iand, bytecode.Ior, bytecode.Ixor:
		return s.binary(arith[op], jtypes.IntT())
	case bytecode.Ladd, bytecode.Lsub, bytecode.Lmul, bytecode.Ldiv, bytecode.Lrem,
		bytecode.Lshl, bytecode.Lshr, bytecode.Lushr, bytecode.Land, bytecode.Lor, bytecode.Lxor:
		return s.binary(arith[op], jtypes.LongT())
	case bytecode.Fadd, bytecode.Fsub, bytecode.Fmul, bytecode.Fdiv, bytecode.Frem:
		return s.binary(arith[op], jtypes.FloatT())
	case bytecode.Dadd, bytecode.Dsub, bytecode.Dmul, bytecode.Ddiv, bytecode.Drem:
		return s.binary(arith[op], jtypes.DoubleT())
	case bytecode.Ineg, bytecode.Lneg, bytecode.Fneg, bytecode.Dneg:
		x, err := s.popExpr()
		if err != nil {
			return err
		}
		s.push(&ir.Unary{Op: ir.OpNeg, X: x, Type: negTypes[op]})
	case bytecode.Iinc:
		if len(ins.Operands) != 2 {
			return s.badOperand(ins, "iinc needs a slot and an increment")
		}
		slot := ins.Operands[0]
		x := &ir.LocalRef{LV: ir.LValue{Slot: slot}, Type: jtypes.IntT()}
		s.emit(&ir.Assign{LV: ir.LValue{Slot: slot}, Value: &ir.Binary{Op: ir.OpAdd, X: x, Y: intConst(int32(ins.Operands[1])), Type: jtypes.IntT()}})

	case bytecode.I2l, bytecode.F2l, bytecode.D2l:
		return s.convert(jtypes.LongT())
	case bytecode.I2f, bytecode.L2f, bytecode.D2f:
		return s.convert(jtypes.FloatT())
	case bytecode.I2d, bytecode.L2d, bytecode.F2d:
		return s.convert(jtypes.DoubleT())
	case bytecode.L2i, bytecode.F2i, bytecode.D2i:
		return s.convert(jtypes.IntT())
	case bytecode.I2b:
		return s.convert(byteT)
	case bytecode.I2c:
		return s.convert(charT)
	case bytecode.I2s:
		return s.convert(shortT)

	case bytecode.Lcmp:
		return s.compare("java/lang/Long", "(JJ)I", 0)
	case bytecode.Fcmpl:
		return s.compare("java/lang/Float", "(FF)I", -1)
	case bytecode.Fcmpg:
		return s.compare("java/lang/Float", "(FF)I", 1)
	case bytecode.Dcmpl:
		return s.compare("java/lang/Double", "(DD)I", -1)
	case bytecode.Dcmpg:
		return s.compare("java/lang/Double", "(DD)I", 1)

	case bytecode.Tableswitch, bytecode.Lookupswitch:
		return s.tableSwitch(ins)
	case bytecode.Ireturn, bytecode.Lreturn, bytecode.Freturn, bytecode.Dreturn, bytecode.Areturn:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		s.leave()
		s.pending = append(s.pending, &ir.Return{Value: v})
	case bytecode.Return:
		s.leave()
		s.pending = append(s.pending, &ir.Return{})
	case bytecode.Athrow:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		s.leave()
		s.pending = append(s.pending, &ir.Throw{X: v})

	case bytecode.New:
		ref, ok := ins.Ref.(bytecode.ClassRef)
		if !ok {
			return s.badOperand(ins, "new without class")
		}
		s.push(&ir.Uninit{Class: ref.Name})
	case bytecode.Newarray:
		if len(ins.Operands) != 1 {
			return s.badOperand(ins, "newarray needs a type code")
		}
		elem, ok := bytecode.ArrayElemType(ins.Operands[0])
		if !ok {
			return s.badOperand(ins, "newarray type code %d", ins.Operands[0])
		}
		size, err := s.popExpr()
		if err != nil {
			return err
		}
		s.push(&ir.NewArray{Elem: elem, Dims: 1, Sizes: []ir.Expr{size}})
	case bytecode.Anewarray:
		t, err := s.classOperand(ins)
		if err != nil {
			return err
		}
		size, err := s.popExpr()
		if err != nil {
			return err
		}
		elem, dims := jtypes.Innermost(t)
		s.push(&ir.NewArray{Elem: elem, Dims: dims + 1, Sizes: []ir.Expr{size}})
	case bytecode.Multianewarray:
		t, err := s.classOperand(ins)
		if err != nil {
			return err
		}
		elem, dims := jtypes.Innermost(t)
		if len(ins.Operands) != 1 || ins.Operands[0] < 1 || ins.Operands[0] > dims {
			return s.badOperand(ins, "multianewarray dimensions")
		}
		sizes, err := s.popN(ins.Operands[0])
		if err != nil {
			return err
		}
		s.push(&ir.NewArray{Elem: elem, Dims: dims, Sizes: sizes})
	case bytecode.Arraylength:
		a, err := s.popExpr()
		if err != nil {
			return err
		}
		s.push(&ir.ArrayLength{Array: a})
	case bytecode.Checkcast:
		t, err := s.classOperand(ins)
		if err != nil {
			return err
		}
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		if s.opts.ElideCasts && jtypes.ImplicitlyCastsTo(s.opts.Oracle, ir.TypeOf(v), t) {
			s.push(v)
			break
		}
		s.push(&ir.Cast{To: t, X: v})
	case bytecode.Instanceof:
		t, err := s.classOperand(ins)
		if err != nil {
			return err
		}
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		s.push(&ir.InstanceOf{X: v, Type: t})
	case bytecode.Monitorenter, bytecode.Monitorexit:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		s.emit(&ir.Monitor{Enter: op == bytecode.Monitorenter, X: v})
	default:
		return &ir.InconsistencyError{Kind: ir.KindUnsupported, Offset: ins.Offset, Detail: op.String()}
	}
	return nil
}

var arith = map[bytecode.Opcode]ir.ArithOp{
	bytecode.Iadd: ir.OpAdd, bytecode.Ladd: ir.OpAdd, bytecode.Fadd: ir.OpAdd, bytecode.Dadd: ir.OpAdd,
	bytecode.Isub: ir.OpSub, bytecode.Lsub: ir.OpSub, bytecode.Fsub: ir.OpSub, bytecode.Dsub: ir.OpSub,
	bytecode.Imul: ir.OpMul, bytecode.Lmul: ir.OpMul, bytecode.Fmul: ir.OpMul, bytecode.Dmul: ir.OpMul,
	bytecode.Idiv: ir.OpDiv, bytecode.Ldiv: ir.OpDiv, bytecode.Fdiv: ir.OpDiv, bytecode.Ddiv: ir.OpDiv,
	bytecode.Irem: ir.OpRem, bytecode.Lrem: ir.OpRem, bytecode.Frem: ir.OpRem, bytecode.Drem: ir.OpRem,
	bytecode.Ishl: ir.OpShl, bytecode.Lshl: ir.OpShl,
	bytecode.Ishr: ir.OpShr, bytecode.Lshr: ir.OpShr,
	bytecode.Iushr: ir.OpUshr, bytecode.Lushr: ir.OpUshr,
	bytecode.Iand: ir.OpAnd, bytecode.Land: ir.OpAnd,
	bytecode.Ior: ir.OpOr, bytecode.Lor: ir.OpOr,
	bytecode.Ixor: ir.OpXor, bytecode.Lxor: ir.OpXor,
}

var negTypes = map[bytecode.Opcode]jtypes.Type{
	bytecode.Ineg: jtypes.IntT(),
	bytecode.Lneg: jtypes.LongT(),
	bytecode.Fneg: jtypes.FloatT(),
	bytecode.Dneg: jtypes.DoubleT(),
}

var condOps = map[bytecode.Opcode]ir.CmpOp{
	bytecode.Ifeq: ir.CmpEq, bytecode.Ifne: ir.CmpNe, bytecode.Iflt: ir.CmpLt,
	bytecode.Ifge: ir.CmpGe, bytecode.Ifgt: ir.CmpGt, bytecode.Ifle: ir.CmpLe,
	bytecode.IfIcmpeq: ir.CmpEq, bytecode.IfIcmpne: ir.CmpNe, bytecode.IfIcmplt: ir.CmpLt,
	bytecode.IfIcmpge: ir.CmpGe, bytecode.IfIcmpgt: ir.CmpGt, bytecode.IfIcmple: ir.CmpLe,
	bytecode.IfAcmpeq: ir.CmpEq, bytecode.IfAcmpne: ir.CmpNe,
	bytecode.Ifnull: ir.CmpEq, bytecode.Ifnonnull: ir.CmpNe,
}

// local handles loads and stores of local variables
func (s *sim) local(ins *bytecode.Instruction) error {
	if len(ins.Operands) != 1 || ins.Operands[0] < 0 || ins.Operands[0] >= s.m.MaxLocals {
		return s.badOperand(ins, "%s slot out of range", ins.Op)
	}
	slot := ins.Operands[0]
	switch ins.Op {
	case bytecode.Iload:
		s.push(s.load(slot, jtypes.IntT()))
	case bytecode.Lload:
		s.push(s.load(slot, jtypes.LongT()))
	case bytecode.Fload:
		s.push(s.load(slot, jtypes.FloatT()))
	case bytecode.Dload:
		s.push(s.load(slot, jtypes.DoubleT()))
	case bytecode.Aload:
		s.push(s.load(slot, jtypes.Object()))
	case bytecode.Istore, bytecode.Lstore, bytecode.Fstore, bytecode.Dstore, bytecode.Astore:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		if _, ok := s.localTypes[slot]; !ok {
			if t := ir.TypeOf(v); t != nil && !jtypes.Equal(t, jtypes.NullT()) {
				s.localTypes[slot] = t
			}
		}
		s.emit(&ir.Assign{LV: ir.LValue{Slot: slot}, Value: v})
	default:
		return &ir.InconsistencyError{Kind: ir.KindUnsupported, Offset: ins.Offset, Detail: ins.Op.String()}
	}
	return nil
}

// load reads slot with its recorded type when that agrees with the
// instruction's computational type
func (s *sim) load(slot int, def jtypes.Type) ir.Expr {
	t := def
	if lt, ok := s.localTypes[slot]; ok && jtypes.StackTypeOf(lt) == jtypes.StackTypeOf(def) {
		t = lt
	}
	return &ir.LocalRef{LV: ir.LValue{Slot: slot}, Type: t}
}

func (s *sim) ldc(ins *bytecode.Instruction) error {
	c, ok := ins.Ref.(bytecode.Constant)
	if !ok {
		return s.badOperand(ins, "%s without constant", ins.Op)
	}
	var e *ir.Const
	switch v := c.Value.(type) {
	case int32:
		e = &ir.Const{Type: jtypes.IntT(), Value: v}
	case float32:
		e = &ir.Const{Type: jtypes.FloatT(), Value: v}
	case int64:
		e = &ir.Const{Type: jtypes.LongT(), Value: v}
	case float64:
		e = &ir.Const{Type: jtypes.DoubleT(), Value: v}
	case string:
		e = &ir.Const{Type: jtypes.StringT(), Value: v}
	case bytecode.ClassRef:
		t, err := jtypes.ParseClassOrArray(v.Name)
		if err != nil {
			return s.badOperand(ins, "%v", err)
		}
		e = &ir.Const{Type: jtypes.ClassOf("java/lang/Class"), Value: t}
	default:
		return s.badOperand(ins, "constant %v", c.Value)
	}
	wide := ins.Op == bytecode.Ldc2W
	if (jtypes.StackTypeOf(e.Type).Category() == 2) != wide {
		return s.badOperand(ins, "%s cannot load %s", ins.Op, e.Type)
	}
	s.push(e)
	return nil
}

func (s *sim) classOperand(ins *bytecode.Instruction) (jtypes.Type, error) {
	ref, ok := ins.Ref.(bytecode.ClassRef)
	if !ok {
		return nil, s.badOperand(ins, "%s without class", ins.Op)
	}
	t, err := jtypes.ParseClassOrArray(ref.Name)
	if err != nil {
		return nil, s.badOperand(ins, "%v", err)
	}
	return t, nil
}

// elemType returns the element type of array, falling back to def
func elemType(array ir.Expr, def jtypes.Type) jtypes.Type {
	if a, ok := ir.TypeOf(array).(jtypes.Array); ok {
		return a.Elem
	}
	return def
}

func (s *sim) arrayLoad(def jtypes.Type) error {
	vals, err := s.popN(2)
	if err != nil {
		return err
	}
	t := elemType(vals[0], def)
	if jtypes.StackTypeOf(t) != jtypes.StackTypeOf(def) {
		t = def
	}
	s.push(&ir.ArrayIndex{Array: vals[0], Index: vals[1], Type: t})
	return nil
}

func (s *sim) binary(op ir.ArithOp, t jtypes.Type) error {
	vals, err := s.popN(2)
	if err != nil {
		return err
	}
	if op == ir.OpAnd || op == ir.OpOr || op == ir.OpXor {
		if jtypes.Equal(ir.TypeOf(vals[0]), jtypes.Bool()) && jtypes.Equal(ir.TypeOf(vals[1]), jtypes.Bool()) {
			t = jtypes.Bool()
		}
	}
	s.push(&ir.Binary{Op: op, X: vals[0], Y: vals[1], Type: t})
	return nil
}

func (s *sim) convert(to jtypes.Type) error {
	x, err := s.popExpr()
	if err != nil {
		return err
	}
	s.push(&ir.Cast{To: to, X: x})
	return nil
}

// compare pushes the three-way comparison of the two top values and
// remembers its operands for a following if<cond>
func (s *sim) compare(owner, desc string, nan int) error {
	vals, err := s.popN(2)
	if err != nil {
		return err
	}
	call := &ir.Invoke{Kind: ir.InvokeStatic, Owner: owner, Name: "compare", Desc: desc, Args: vals}
	s.stack = append(s.stack, entry{e: call, cat: 1, cmp: &operands{x: vals[0], y: vals[1], nan: nan}})
	return nil
}

func (s *sim) branch(ins *bytecode.Instruction) error {
	if len(ins.Operands) != 1 {
		return s.badOperand(ins, "%s needs a target", ins.Op)
	}
	target := ins.Operands[0]
	if ins.Op == bytecode.Goto {
		s.emit(&ir.Jump{Target: target})
		return nil
	}
	op, ok := condOps[ins.Op]
	if !ok {
		return &ir.InconsistencyError{Kind: ir.KindUnsupported, Offset: ins.Offset, Detail: ins.Op.String()}
	}

	var cond ir.Expr
	switch ins.Op {
	case bytecode.Ifeq, bytecode.Ifne, bytecode.Iflt, bytecode.Ifge, bytecode.Ifgt, bytecode.Ifle:
		v, err := s.pop()
		if err != nil {
			return err
		}
		switch {
		case v.cmp != nil:
			cond = orderedCond(op, v.cmp)
		case jtypes.Equal(ir.TypeOf(v.e), jtypes.Bool()) && op == ir.CmpEq:
			cond = ir.Negate(v.e)
		case jtypes.Equal(ir.TypeOf(v.e), jtypes.Bool()) && op == ir.CmpNe:
			cond = v.e
		default:
			cond = &ir.Compare{Op: op, X: v.e, Y: intConst(0)}
		}
	case bytecode.Ifnull, bytecode.Ifnonnull:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		cond = &ir.Compare{Op: op, X: v, Y: &ir.Const{Type: jtypes.NullT()}}
	default:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		cond = &ir.Compare{Op: op, X: vals[0], Y: vals[1]}
	}
	s.emit(&ir.CondJump{Cond: cond, Target: target})
	return nil
}

// orderedCond is the condition under which if<op> jumps on the result of
// a three-way comparison. A float comparison that jumps for an unordered
// pair is written as the negation of the opposite test, which is false for
// NaN.
func orderedCond(op ir.CmpOp, c *operands) ir.Expr {
	unordered := false
	switch op {
	case ir.CmpLt, ir.CmpLe:
		unordered = c.nan < 0
	case ir.CmpGt, ir.CmpGe:
		unordered = c.nan > 0
	}
	if unordered {
		return &ir.Not{X: &ir.Compare{Op: op.Negate(), X: c.x, Y: c.y}}
	}
	return &ir.Compare{Op: op, X: c.x, Y: c.y}
}

func (s *sim) tableSwitch(ins *bytecode.Instruction) error {
	tab := ins.Switch
	if tab == nil || len(tab.Keys) != len(tab.Targets) {
		return s.badOperand(ins, "malformed switch table")
	}
	key, err := s.popExpr()
	if err != nil {
		return err
	}
	sw := &ir.SwitchJump{Key: key, Default: tab.Default}
	index := make(map[int]int)
	for i, k := range tab.Keys {
		t := tab.Targets[i]
		j, ok := index[t]
		if !ok {
			j = len(sw.Cases)
			index[t] = j
			sw.Cases = append(sw.Cases, ir.SwitchCase{Target: t})
		}
		sw.Cases[j].Values = append(sw.Cases[j].Values, k)
	}
	s.emit(sw)
	return nil
}

func (s *sim) field(ins *bytecode.Instruction) error {
	ref, ok := ins.Ref.(bytecode.FieldRef)
	if !ok {
		return s.badOperand(ins, "%s without field", ins.Op)
	}
	t, err := jtypes.ParseField(ref.Descriptor)
	if err != nil {
		return s.badOperand(ins, "%v", err)
	}
	fa := &ir.FieldAccess{Owner: ref.Owner, Name: ref.Name, Type: t}
	switch ins.Op {
	case bytecode.Getstatic:
		s.push(fa)
	case bytecode.Getfield:
		obj, err := s.popExpr()
		if err != nil {
			return err
		}
		fa.Object = obj
		s.push(fa)
	case bytecode.Putstatic:
		v, err := s.popExpr()
		if err != nil {
			return err
		}
		s.emit(&ir.Store{Target: fa, Value: v})
	case bytecode.Putfield:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		fa.Object = vals[0]
		s.emit(&ir.Store{Target: fa, Value: vals[1]})
	}
	return nil
}

var invokeKinds = map[bytecode.Opcode]ir.InvokeKind{
	bytecode.Invokevirtual:   ir.InvokeVirtual,
	bytecode.Invokespecial:   ir.InvokeSpecial,
	bytecode.Invokestatic:    ir.InvokeStatic,
	bytecode.Invokeinterface: ir.InvokeInterface,
	bytecode.Invokedynamic:   ir.InvokeDynamic,
}

func (s *sim) invoke(ins *bytecode.Instruction) error {
	ref, ok := ins.Ref.(bytecode.MethodRef)
	if !ok {
		return s.badOperand(ins, "%s without method", ins.Op)
	}
	mt, err := jtypes.ParseMethod(ref.Descriptor)
	if err != nil {
		return s.badOperand(ins, "%v", err)
	}
	if ins.Op == bytecode.Invokeinterface {
		if _, _, err := bytecode.StackEffect(ins); err != nil {
			return s.badOperand(ins, "%v", err)
		}
	}
	args, err := s.popN(len(mt.Params))
	if err != nil {
		return err
	}
	call := &ir.Invoke{Kind: invokeKinds[ins.Op], Owner: ref.Owner, Name: ref.Name, Desc: ref.Descriptor, Args: args}
	if ins.Op != bytecode.Invokestatic && ins.Op != bytecode.Invokedynamic {
		recv, err := s.popExpr()
		if err != nil {
			return err
		}
		if u, ok := recv.(*ir.Uninit); ok && ins.Op == bytecode.Invokespecial && ref.Name == "<init>" {
			s.construct(u, &ir.New{Class: u.Class, Desc: ref.Descriptor, Args: args})
			return nil
		}
		call.Object = recv
	}
	if jtypes.StackTypeOf(mt.Return) == jtypes.StackVoid {
		s.emit(&ir.ExprStmt{X: call})
		return nil
	}
	s.push(call)
	return nil
}

// construct replaces the uninitialized pointer u with the finished
// object. A single remaining copy receives the New expression itself; with
// several copies the object is committed to a temporary first.
func (s *sim) construct(u *ir.Uninit, n *ir.New) {
	var copies []int
	for i, e := range s.stack {
		if e.e == ir.Expr(u) {
			copies = append(copies, i)
		}
	}
	switch len(copies) {
	case 0:
		s.emit(&ir.ExprStmt{X: n})
	case 1:
		s.stack[copies[0]].e = n
	default:
		s.spillUnstable(len(s.stack), true, true)
		ref := s.commit(n)
		for _, i := range copies {
			s.stack[i].e = ir.Clone(ref)
		}
	}
}

// shuffle implements the dup and swap family on whole values
func (s *sim) shuffle(op bytecode.Opcode) error {
	var top, under int
	switch op {
	case bytecode.Dup:
		top = 1
	case bytecode.DupX1:
		top, under = 1, 1
	case bytecode.DupX2:
		top, under = 1, 2
	case bytecode.Dup2:
		top = 2
	case bytecode.Dup2X1:
		top, under = 2, 1
	case bytecode.Dup2X2:
		top, under = 2, 2
	case bytecode.Swap:
		a, err := s.takeSlots(1)
		if err != nil {
			return err
		}
		b, err := s.takeSlots(1)
		if err != nil {
			return err
		}
		moved := append(b, a...)
		s.pin(moved)
		s.stack = append(s.stack, moved[1], moved[0])
		return nil
	}

	a, err := s.takeSlots(top)
	if err != nil {
		return err
	}
	var b []entry
	if under > 0 {
		if b, err = s.takeSlots(under); err != nil {
			return err
		}
	}
	moved := append(b, a...)
	s.pin(moved)
	a = moved[len(b):]
	b = moved[:len(b)]
	s.stack = append(s.stack, a...)
	s.stack = append(s.stack, b...)
	s.stack = append(s.stack, a...)
	return nil
}
