package ir

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-decomp/pkg/jtypes"
)

func local(slot, ver int) *LocalRef { return &LocalRef{LV: LValue{Slot: slot, Version: ver}} }

func floatLocal(slot int) *LocalRef {
	return &LocalRef{LV: LValue{Slot: slot, Version: 1}, Type: jtypes.FloatT()}
}

func intConst(v int32) *Const { return &Const{Type: jtypes.IntT(), Value: v} }

func expectContractViolation(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(ContractViolation); !ok {
			t.Errorf("%s: recovered %v, want ContractViolation", name, r)
		}
	}()
	fn()
}

func TestCompoundQueriesPanic(t *testing.T) {
	c := &Compound{Stmts: []Stmt{&Assign{LV: LValue{Slot: 1}, Value: intConst(1)}}}
	expectContractViolation(t, "CreatedLValue", func() { CreatedLValue(c) })
	expectContractViolation(t, "UsedLValues", func() { UsedLValues(c) })
	expectContractViolation(t, "RValue", func() { RValue(c) })
	expectContractViolation(t, "StmtHasSideEffects", func() { StmtHasSideEffects(c) })
}

func TestFlatten(t *testing.T) {
	a := &Assign{LV: LValue{Slot: 1}, Value: intConst(1)}
	b := &Assign{LV: LValue{Slot: 2}, Value: intConst(2)}
	r := &Return{}
	got := Flatten([]Stmt{&Compound{Stmts: []Stmt{a, &Compound{Stmts: []Stmt{b}}}}, r})
	if len(got) != 3 || got[0] != a || got[1] != b || got[2] != r {
		t.Errorf("Flatten = %v, want [a b r]", got)
	}
}

func TestNegate(t *testing.T) {
	tests := []struct {
		name string
		in   Expr
		want string
	}{
		{"compare", &Compare{Op: CmpLt, X: local(1, 1), Y: intConst(0)}, "v1_1 >= 0"},
		{"double negation", &Not{X: local(1, 1)}, "v1_1"},
		{"plain", local(2, 0), "!v2_0"},
		{"float ordering", &Compare{Op: CmpLt, X: floatLocal(1), Y: floatLocal(2)}, "!(v1_1 < v2_1)"},
		{"float equality", &Compare{Op: CmpEq, X: floatLocal(1), Y: floatLocal(2)}, "v1_1 != v2_1"},
		{"negated float ordering", &Not{X: &Compare{Op: CmpGe, X: floatLocal(1), Y: floatLocal(2)}}, "v1_1 >= v2_1"},
	}
	var f Formatter
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Expr(Negate(tt.in)); got != tt.want {
				t.Errorf("Negate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqualEquivalence(t *testing.T) {
	a := &Invoke{Kind: InvokeVirtual, Object: local(1, 2), Owner: "A", Name: "f", Desc: "(I)V", Args: []Expr{intConst(3)}}
	b := &Invoke{Kind: InvokeVirtual, Object: local(1, 5), Owner: "A", Name: "f", Desc: "(I)V", Args: []Expr{intConst(3)}}
	if !Equal(a, b, SlotEquivalence) {
		t.Error("slot equivalence should ignore versions")
	}
	if Equal(a, b, ExactEquivalence) {
		t.Error("exact equivalence should compare versions")
	}
	c := Clone(a).(*Invoke)
	c.Args[0] = intConst(4)
	if Equal(a, c, SlotEquivalence) {
		t.Error("changed argument should not compare equal")
	}
	if got := a.Args[0].(*Const).Value; got != int32(3) {
		t.Errorf("Clone shared arguments: original now %v", got)
	}
}

func TestEffects(t *testing.T) {
	call := &Invoke{Kind: InvokeStatic, Owner: "A", Name: "f", Desc: "()I"}
	field := &FieldAccess{Object: local(0, 0), Owner: "A", Name: "x", Type: jtypes.IntT()}
	sum := &Binary{Op: OpAdd, X: local(1, 1), Y: intConst(1), Type: jtypes.IntT()}
	div := &Binary{Op: OpDiv, X: local(1, 1), Y: local(2, 1), Type: jtypes.IntT()}
	fdiv := &Binary{Op: OpDiv, X: local(1, 1), Y: local(2, 1), Type: jtypes.DoubleT()}

	tests := []struct {
		name                          string
		e                             Expr
		sideEffects, throws, readsHeap bool
	}{
		{"call", call, true, true, true},
		{"field", field, false, true, true},
		{"sum", sum, false, false, false},
		{"int division", div, false, true, false},
		{"double division", fdiv, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasSideEffects(tt.e); got != tt.sideEffects {
				t.Errorf("HasSideEffects = %v, want %v", got, tt.sideEffects)
			}
			if got := MayThrow(tt.e); got != tt.throws {
				t.Errorf("MayThrow = %v, want %v", got, tt.throws)
			}
			if got := ReadsHeap(tt.e); got != tt.readsHeap {
				t.Errorf("ReadsHeap = %v, want %v", got, tt.readsHeap)
			}
		})
	}
}

func TestReplaceLocal(t *testing.T) {
	s := &ExprStmt{X: &Invoke{Kind: InvokeStatic, Owner: "A", Name: "g", Desc: "(II)V", Args: []Expr{local(3, 1), local(4, 1)}}}
	if n := ReplaceLocal(s, LValue{Slot: 3, Version: 1}, intConst(7)); n != 1 {
		t.Fatalf("ReplaceLocal replaced %d, want 1", n)
	}
	var f Formatter
	if got := f.Stmt(s); got != "A.g(7, v4_1)" {
		t.Errorf("after replace = %q", got)
	}
	used := UsedLValues(s)
	if len(used) != 1 || used[0] != (LValue{Slot: 4, Version: 1}) {
		t.Errorf("UsedLValues = %v", used)
	}
}

func TestFormatter(t *testing.T) {
	f := &Formatter{Class: "com/example/Foo"}
	tests := []struct {
		name string
		s    Stmt
		want string
	}{
		{"precedence", &Assign{LV: LValue{Slot: 1, Version: 1}, Value: &Binary{Op: OpMul,
			X: &Binary{Op: OpAdd, X: local(2, 0), Y: intConst(1)}, Y: intConst(3)}}, "v1_1 = (v2_0 + 1) * 3"},
		{"increment", &Assign{LV: LValue{Slot: 1, Version: 2}, Value: &Binary{Op: OpAdd, X: local(1, 1), Y: intConst(1)}}, "v1_2 += 1"},
		{"super call", &ExprStmt{X: &Invoke{Kind: InvokeSpecial, Object: local(0, 0), Owner: "java/lang/Object", Name: "<init>", Desc: "()V"}}, "super()"},
		{"new array", &Assign{LV: LValue{Slot: 1, Version: 1}, Value: &NewArray{Elem: jtypes.IntT(), Dims: 2, Sizes: []Expr{intConst(3)}}}, "v1_1 = new int[3][]"},
		{"long const", &Return{Value: &Const{Type: jtypes.LongT(), Value: int64(5)}}, "return 5L"},
		{"boolean const", &Return{Value: &Const{Type: jtypes.Bool(), Value: int32(1)}}, "return true"},
		{"string", &ExprStmt{X: &Invoke{Kind: InvokeVirtual, Object: &FieldAccess{Owner: "java/lang/System", Name: "out"},
			Owner: "java/io/PrintStream", Name: "println", Desc: "(Ljava/lang/String;)V", Args: []Expr{&Const{Type: jtypes.StringT(), Value: "hi"}}}},
			"System.out.println(\"hi\")"},
		{"ternary", &Assign{LV: LValue{Slot: 5, Version: 3}, Value: &Ternary{Cond: local(1, 0), Then: intConst(1), Else: intConst(2)}}, "v5_3 = v1_0 ? 1 : 2"},
		{"merge", &Merge{LV: LValue{Slot: 1, Version: 3}, Sources: []LValue{{Slot: 1, Version: 1}, {Slot: 1, Version: 2}}}, "v1_3 = merge(v1_1, v1_2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Stmt(tt.s); got != tt.want {
				t.Errorf("Stmt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInconsistencyError(t *testing.T) {
	var err error = &InconsistencyError{Kind: KindStackDepth, Offset: 12, Expected: 1, Actual: 2}
	if !errors.Is(err, ErrBytecodeInconsistency) {
		t.Error("stack depth error should match ErrBytecodeInconsistency")
	}
	if errors.Is(err, ErrUnstructurable) {
		t.Error("stack depth error should not match ErrUnstructurable")
	}
	if got, want := err.Error(), "offset 12: stack depth mismatch: expected 1, got 2"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	overlap := &InconsistencyError{Kind: KindOverlappingRanges, Offset: 4}
	if !errors.Is(overlap, ErrUnstructurable) || !errors.Is(overlap, ErrBytecodeInconsistency) {
		t.Error("overlapping ranges should match both sentinels")
	}
}

func TestNewArrayDims(t *testing.T) {
	n := &NewArray{Elem: jtypes.ClassOf("java/lang/String"), Dims: 3, Sizes: []Expr{intConst(2), intConst(4)}}
	if n.NumDims() != 3 || n.NumSizedDims() != 2 {
		t.Errorf("dims = %d/%d, want 3/2", n.NumDims(), n.NumSizedDims())
	}
	if !jtypes.Equal(TypeOf(n), jtypes.ArrayOf(jtypes.StringT(), 3)) {
		t.Errorf("TypeOf = %v", TypeOf(n))
	}
}
