package stacksim

import (
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/listing"
)

func graph(t *testing.T, desc, code string) *cfg.Graph {
	t.Helper()
	ins, err := listing.ParseCode(code, 0)
	if err != nil {
		t.Fatalf("ParseCode: %v", err)
	}
	m := &bytecode.Method{Owner: "A", Name: "f", Descriptor: desc, Static: true, MaxLocals: 4, Code: ins}
	g, err := cfg.Build(m)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// render formats the statements of every block in block order
func render(g *cfg.Graph) []string {
	var f *ir.Formatter
	var out []string
	for _, b := range g.Blocks {
		for _, s := range b.Stmts {
			out = append(out, f.Stmt(s))
		}
	}
	return out
}

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		desc string
		code string
		opts Options
		want []string
	}{
		{
			name: "call before side effect is committed",
			desc: "()I",
			code: `
				0: invokestatic A.a:()I
				3: invokestatic A.b:()V
				6: ireturn`,
			want: []string{"v5_0 = A.a()", "A.b()", "return v5_0"},
		},
		{
			name: "constructor",
			desc: "()V",
			code: `
				0: new java/lang/StringBuilder
				3: dup
				4: invokespecial java/lang/StringBuilder.<init>:()V
				7: astore_2
				8: return`,
			want: []string{"v2_0 = new StringBuilder()", "return"},
		},
		{
			name: "constructor result discarded",
			desc: "()V",
			code: `
				0: new java/lang/Object
				3: invokespecial java/lang/Object.<init>:()V
				6: return`,
			want: []string{"new Object()", "return"},
		},
		{
			name: "swap keeps call order",
			desc: "(II)I",
			code: `
				0: invokestatic A.a:()I
				3: iload_0
				4: swap
				5: isub
				6: ireturn`,
			want: []string{"v6_0 = A.a()", "return v0_0 - v6_0"},
		},
		{
			name: "dup_x1 of locals",
			desc: "(II)I",
			code: `
				0: iload_0
				1: iload_1
				2: dup_x1
				3: iadd
				4: istore_2
				5: ireturn`,
			want: []string{"v2_0 = v0_0 + v1_0", "return v1_0"},
		},
		{
			name: "store protects pending read",
			desc: "(II)I",
			code: `
				0: iload_0
				1: invokestatic A.a:()I
				4: istore_0
				5: ireturn`,
			want: []string{"v6_0 = v0_0", "v0_0 = A.a()", "return v6_0"},
		},
		{
			name: "boolean test",
			desc: "(ZI)I",
			code: `
				0: iload_0
				1: ifeq 6
				4: iconst_1
				5: ireturn
				6: iconst_0
				7: ireturn`,
			want: []string{"if (!v0_0) goto L6", "return 1", "return 0"},
		},
		{
			name: "long comparison",
			desc: "(JJ)I",
			code: `
				0: lload_0
				1: lload_2
				2: lcmp
				3: ifge 8
				6: iconst_1
				7: ireturn
				8: iconst_0
				9: ireturn`,
			want: []string{"if (v0_0 >= v2_0) goto L8", "return 1", "return 0"},
		},
		{
			name: "float comparison false for NaN",
			desc: "(FF)I",
			code: `
				0: fload_0
				1: fload_1
				2: fcmpg
				3: iflt 8
				6: iconst_1
				7: ireturn
				8: iconst_0
				9: ireturn`,
			want: []string{"if (v0_0 < v1_0) goto L8", "return 1", "return 0"},
		},
		{
			name: "float comparison true for NaN",
			desc: "(FF)I",
			code: `
				0: fload_0
				1: fload_1
				2: fcmpl
				3: iflt 8
				6: iconst_1
				7: ireturn
				8: iconst_0
				9: ireturn`,
			want: []string{"if (!(v0_0 >= v1_0)) goto L8", "return 1", "return 0"},
		},
		{
			name: "double comparison true for NaN",
			desc: "(DD)I",
			code: `
				0: dload_0
				1: dload_2
				2: dcmpg
				3: ifgt 8
				6: iconst_1
				7: ireturn
				8: iconst_0
				9: ireturn`,
			want: []string{"if (!(v0_0 <= v2_0)) goto L8", "return 1", "return 0"},
		},
		{
			name: "value crosses blocks",
			desc: "(II)V",
			code: `
				0: iload_0
				1: ifeq 8
				4: iconst_1
				5: goto 9
				8: iconst_2
				9: istore_1
				10: return`,
			want: []string{"if (v0_0 == 0) goto L8", "v4_0 = 1", "goto L9", "v4_0 = 2", "v1_0 = v4_0", "return"},
		},
		{
			name: "cast kept",
			desc: "(Ljava/lang/String;)V",
			code: `
				0: aload_0
				1: checkcast java/lang/String
				4: astore_1
				5: return`,
			want: []string{"v1_0 = (String)v0_0", "return"},
		},
		{
			name: "redundant cast elided",
			desc: "(Ljava/lang/String;)V",
			code: `
				0: aload_0
				1: checkcast java/lang/String
				4: astore_1
				5: return`,
			opts: Options{ElideCasts: true},
			want: []string{"v1_0 = v0_0", "return"},
		},
		{
			name: "switch groups keys by target",
			desc: "(I)V",
			code: `
				0: iload_0
				1: lookupswitch {1: 20, 2: 20, 3: 22, default: 24}
				20: return
				22: return
				24: return`,
			want: []string{"switch (v0_0) { 1: goto L20; 2: goto L20; 3: goto L22; default: goto L24; }", "return", "return", "return"},
		},
		{
			name: "discarded call is kept",
			desc: "()V",
			code: `
				0: invokestatic A.a:()I
				3: pop
				4: return`,
			want: []string{"A.a()", "return"},
		},
		{
			name: "field store orders pending call",
			desc: "()I",
			code: `
				0: invokestatic A.a:()I
				3: iconst_1
				4: putstatic A.x:I
				7: ireturn`,
			want: []string{"v6_0 = A.a()", "A.x = 1", "return v6_0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph(t, tt.desc, tt.code)
			if _, err := Run(g, tt.opts); err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := render(g)
			if strings.Join(got, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("statements =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(tt.want, "\n"))
			}
		})
	}
}

func TestDepthMismatch(t *testing.T) {
	g := graph(t, "(I)V", `
		0: iload_0
		1: ifeq 9
		4: iconst_1
		5: iconst_2
		6: goto 9
		9: return`)
	_, err := Run(g, Options{})
	var ie *ir.InconsistencyError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InconsistencyError", err)
	}
	if ie.Kind != ir.KindStackDepth || ie.Offset != 9 || ie.Expected != 0 || ie.Actual != 2 {
		t.Errorf("err = %+v, want depth mismatch at 9 (0 vs 2)", ie)
	}
	if !errors.Is(err, ir.ErrBytecodeInconsistency) {
		t.Error("depth mismatch should be a bytecode inconsistency")
	}
}

func TestInterfaceCountChecked(t *testing.T) {
	g := graph(t, "(Ljava/util/List;)V", `
		0: aload_0
		1: invokeinterface java/util/List.size:()I 2
		6: pop
		7: return`)
	_, err := Run(g, Options{})
	var ie *ir.InconsistencyError
	if !errors.As(err, &ie) || ie.Kind != ir.KindBadOperand || ie.Offset != 1 {
		t.Errorf("err = %v, want bad operand at 1", err)
	}
}

func TestUnderflow(t *testing.T) {
	g := graph(t, "()V", `
		0: pop
		1: return`)
	_, err := Run(g, Options{})
	var ie *ir.InconsistencyError
	if !errors.As(err, &ie) || ie.Kind != ir.KindStackUnderflow {
		t.Errorf("err = %v, want stack underflow", err)
	}
}

func TestHandlerEntry(t *testing.T) {
	ins, err := listing.ParseCode(`
		0: invokestatic A.a:()V
		3: return
		4: astore_1
		5: aload_1
		6: athrow`, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := &bytecode.Method{Owner: "A", Name: "f", Descriptor: "()V", Static: true, MaxLocals: 2, Code: ins,
		Exceptions: []bytecode.ExceptionEntry{{Start: 0, End: 3, Handler: 4, CatchType: "java/lang/RuntimeException"}}}
	g, err := cfg.Build(m)
	if err != nil {
		t.Fatal(err)
	}
	layout, err := Run(g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := strings.Join(render(g), "\n")
	want := "A.a()\nreturn\nv1_0 = caught(RuntimeException)\nthrow v1_0"
	if got != want {
		t.Errorf("statements =\n%s\nwant\n%s", got, want)
	}
	if layout.SpillBase != 2 || layout.TempBase != 3 || !layout.IsStack(3) || layout.IsSpill(1) {
		t.Errorf("layout = %+v", layout)
	}
}
