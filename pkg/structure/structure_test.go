package structure

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/listing"
	"github.com/raymyers/ralph-decomp/pkg/stacksim"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

func simulate(t *testing.T, code string, exc ...bytecode.ExceptionEntry) *cfg.Graph {
	t.Helper()
	ins, err := listing.ParseCode(code, 0)
	if err != nil {
		t.Fatalf("ParseCode: %v", err)
	}
	m := &bytecode.Method{Owner: "A", Name: "f", Descriptor: "(I)I", Static: true, MaxLocals: 4, Code: ins, Exceptions: exc}
	g, err := cfg.Build(m)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := stacksim.Run(g, stacksim.Options{}); err != nil {
		t.Fatalf("stacksim.Run: %v", err)
	}
	return g
}

// kinds counts the statements of each kind in the tree
func kinds(root structured.Stmt) map[string]int {
	n := make(map[string]int)
	structured.Walk(root, func(s structured.Stmt) bool {
		n[strings.TrimPrefix(fmt.Sprintf("%T", s), "*structured.")]++
		return true
	})
	return n
}

func render(b *structured.Block) string {
	var buf bytes.Buffer
	structured.NewPrinter(&buf).PrintBody(b)
	return buf.String()
}

const whileLoop = `
	0: iconst_0
	1: istore_1
	2: iload_1
	3: iload_0
	4: if_icmpge 13
	7: iinc 1 1
	10: goto 2
	13: iload_1
	14: ireturn`

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		code string
		exc  []bytecode.ExceptionEntry
		want map[string]int
	}{
		{
			name: "if else",
			code: `
				0: iload_0
				1: ifeq 9
				4: iconst_1
				5: istore_1
				6: goto 11
				9: iconst_2
				10: istore_1
				11: iload_1
				12: ireturn`,
			want: map[string]int{"If": 1, "While": 0, "Goto": 0},
		},
		{
			name: "while",
			code: whileLoop,
			want: map[string]int{"While": 1, "If": 0, "Break": 0},
		},
		{
			name: "do while",
			code: `
				0: iinc 0 -1
				3: iload_0
				4: ifgt 0
				7: iload_0
				8: ireturn`,
			want: map[string]int{"DoWhile": 1, "While": 0},
		},
		{
			name: "break",
			code: `
				0: iload_0
				1: ifle 18
				4: iload_0
				5: iconst_5
				6: if_icmpne 12
				9: goto 18
				12: iinc 0 -1
				15: goto 0
				18: iload_0
				19: ireturn`,
			want: map[string]int{"While": 1, "If": 1, "Break": 1},
		},
		{
			name: "return inside loop",
			code: `
				0: iload_0
				1: ifle 17
				4: iload_0
				5: iconst_5
				6: if_icmpne 11
				9: iload_0
				10: ireturn
				11: iinc 0 -1
				14: goto 0
				17: iconst_0
				18: ireturn`,
			want: map[string]int{"While": 1, "If": 1, "Break": 0},
		},
		{
			name: "switch with fallthrough",
			code: `
				0: iload_0
				1: lookupswitch {1: 36, 2: 39, 3: 45, default: 48}
				36: iinc 0 1
				39: iinc 0 2
				42: goto 48
				45: iconst_0
				46: ireturn
				48: iload_0
				49: ireturn`,
			want: map[string]int{"Switch": 1, "Break": 1},
		},
		{
			name: "try catch",
			code: `
				0: invokestatic A.a:()V
				3: goto 9
				6: astore_1
				7: iconst_0
				8: ireturn
				9: iconst_1
				10: ireturn`,
			exc:  []bytecode.ExceptionEntry{{Start: 0, End: 3, Handler: 6, CatchType: "java/io/IOException"}},
			want: map[string]int{"Try": 1, "Goto": 0},
		},
		{
			name: "try inside infinite loop",
			code: `
				0: iload_0
				1: invokestatic A.a:(I)I
				4: istore_0
				5: iload_0
				6: bipush 10
				8: if_icmple 14
				11: goto 24
				14: goto 0
				17: astore_1
				18: iinc 0 -1
				21: goto 0
				24: iload_0
				25: ireturn`,
			exc:  []bytecode.ExceptionEntry{{Start: 0, End: 14, Handler: 17, CatchType: "java/lang/Exception"}},
			want: map[string]int{"While": 1, "Try": 1, "Break": 1, "Continue": 0, "Goto": 0},
		},
		{
			name: "try finally",
			code: `
				0: invokestatic A.a:()V
				3: invokestatic A.f:()V
				6: iconst_0
				7: ireturn
				8: astore_1
				9: invokestatic A.f:()V
				12: aload_1
				13: athrow`,
			exc:  []bytecode.ExceptionEntry{{Start: 0, End: 3, Handler: 8}},
			want: map[string]int{"Try": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := simulate(t, tt.code, tt.exc...)
			res, err := Run(g, Options{})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.Structured {
				t.Fatalf("not structured:\n%s", render(res.Body))
			}
			if !structured.IsFullyStructured(res.Body) {
				t.Errorf("raw jumps left:\n%s", render(res.Body))
			}
			if err := structured.CheckScoping(res.Body); err != nil {
				t.Errorf("CheckScoping: %v", err)
			}
			got := kinds(res.Body)
			for k, n := range tt.want {
				if got[k] != n {
					t.Errorf("%s count = %d, want %d\n%s", k, got[k], n, render(res.Body))
				}
			}
			if len(res.Notes) != 0 {
				t.Errorf("notes = %q", res.Notes)
			}
		})
	}
}

func TestIfElseHasBothArms(t *testing.T) {
	g := simulate(t, `
		0: iload_0
		1: ifeq 9
		4: iconst_1
		5: istore_1
		6: goto 11
		9: iconst_2
		10: istore_1
		11: iload_1
		12: ireturn`)
	res, err := Run(g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Body.Stmts) != 2 {
		t.Fatalf("len(body) = %d, want 2\n%s", len(res.Body.Stmts), render(res.Body))
	}
	s, ok := res.Body.Stmts[0].(*structured.If)
	if !ok {
		t.Fatalf("first = %T, want *structured.If", res.Body.Stmts[0])
	}
	if _, ok := s.Then.(*structured.Block); !ok {
		t.Errorf("then = %T, want *structured.Block", s.Then)
	}
	if _, ok := s.Else.(*structured.Block); !ok {
		t.Errorf("else = %T, want *structured.Block", s.Else)
	}
}

func TestSwitchCases(t *testing.T) {
	g := simulate(t, `
		0: iload_0
		1: lookupswitch {1: 36, 2: 39, 3: 45, default: 48}
		36: iinc 0 1
		39: iinc 0 2
		42: goto 48
		45: iconst_0
		46: ireturn
		48: iload_0
		49: ireturn`)
	res, err := Run(g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var sw *structured.Switch
	structured.Walk(res.Body, func(s structured.Stmt) bool {
		if x, ok := s.(*structured.Switch); ok {
			sw = x
		}
		return true
	})
	if sw == nil {
		t.Fatalf("no switch:\n%s", render(res.Body))
	}
	if len(sw.Cases) != 3 {
		t.Fatalf("len(cases) = %d, want 3", len(sw.Cases))
	}
	for i, want := range []int32{1, 2, 3} {
		c := sw.Cases[i]
		if len(c.Values) != 1 || c.Values[0] != want || c.Default {
			t.Errorf("case %d = %v (default %v), want [%d]", i, c.Values, c.Default, want)
		}
	}
	if structured.IsAbrupt(sw.Cases[0].Body) {
		t.Error("case 1 should fall through")
	}
}

func TestTryCatchTypes(t *testing.T) {
	g := simulate(t, `
		0: invokestatic A.a:()V
		3: goto 12
		6: astore_1
		7: iconst_0
		8: ireturn
		9: astore_1
		10: iconst_2
		11: ireturn
		12: iconst_1
		13: ireturn`,
		bytecode.ExceptionEntry{Start: 0, End: 3, Handler: 6, CatchType: "java/io/IOException"},
		bytecode.ExceptionEntry{Start: 0, End: 3, Handler: 6, CatchType: "java/lang/IllegalStateException"},
		bytecode.ExceptionEntry{Start: 0, End: 3, Handler: 9, CatchType: "java/lang/Exception"},
	)
	var tries []*structured.Try
	res, err := Run(g, Options{OnTry: func(t *structured.Try) []structured.Stmt {
		tries = append(tries, t)
		return []structured.Stmt{t}
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Structured || len(tries) != 1 {
		t.Fatalf("structured = %v, tries = %d\n%s", res.Structured, len(tries), render(res.Body))
	}
	try := tries[0]
	if len(try.Catches) != 2 {
		t.Fatalf("len(catches) = %d, want 2", len(try.Catches))
	}
	if n := len(try.Catches[0].Types); n != 2 {
		t.Errorf("first catch has %d types, want 2", n)
	}
	if try.Catches[0].Try != try.ID {
		t.Error("catch does not reference its try")
	}
	out := render(res.Body)
	if !strings.Contains(out, "catch (IOException | IllegalStateException") {
		t.Errorf("multi-catch missing:\n%s", out)
	}
}

func TestIrreducibleFallsBack(t *testing.T) {
	g := simulate(t, `
		0: iload_0
		1: ifeq 11
		4: iinc 0 1
		7: iload_0
		8: ifle 18
		11: iinc 0 -1
		14: iload_0
		15: ifgt 4
		18: iload_0
		19: ireturn`)
	if !g.Irreducible {
		t.Fatal("graph should be irreducible")
	}
	res, err := Run(g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Structured {
		t.Errorf("irreducible graph reported structured:\n%s", render(res.Body))
	}
	got := kinds(res.Body)
	if got["Goto"]+got["CondGoto"] == 0 {
		t.Errorf("no raw jumps:\n%s", render(res.Body))
	}
	if got["Labeled"] == 0 {
		t.Errorf("no labels:\n%s", render(res.Body))
	}
	if len(res.Notes) == 0 || res.Notes[0] != "irreducible control flow" {
		t.Errorf("notes = %q", res.Notes)
	}
	if err := structured.CheckScoping(res.Body); err != nil {
		t.Errorf("CheckScoping: %v", err)
	}
}

func TestFallbackKeepsHandlers(t *testing.T) {
	g := simulate(t, `
		0: iload_0
		1: ifeq 11
		4: iinc 0 1
		7: iload_0
		8: ifle 18
		11: iinc 0 -1
		14: iload_0
		15: ifgt 4
		18: iload_0
		19: ireturn
		20: astore_1
		21: iconst_0
		22: ireturn`,
		bytecode.ExceptionEntry{Start: 0, End: 18, Handler: 20, CatchType: "java/lang/Exception"},
	)
	res, err := Run(g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Structured {
		t.Fatalf("irreducible graph reported structured:\n%s", render(res.Body))
	}
	var tries []*structured.Try
	structured.Walk(res.Body, func(s structured.Stmt) bool {
		if x, ok := s.(*structured.Try); ok {
			tries = append(tries, x)
		}
		return true
	})
	if len(tries) != 1 {
		t.Fatalf("tries = %d, want 1\n%s", len(tries), render(res.Body))
	}
	try := tries[0]
	if len(try.Catches) != 1 || len(try.Catches[0].Types) != 1 || try.Catches[0].Types[0] != jtypes.ClassOf("java/lang/Exception") {
		t.Fatalf("catches = %+v", try.Catches)
	}
	if got := kinds(try.Body); got["Labeled"] == 0 {
		t.Errorf("try body has no labels:\n%s", render(res.Body))
	}
	// the handler sits in the catch, not among the labeled blocks
	if got := kinds(try.Catches[0].Body); got["Labeled"] != 0 || got["Atom"] == 0 {
		t.Errorf("catch body kinds = %v", got)
	}
	out := render(res.Body)
	if !strings.Contains(out, "catch (Exception ") {
		t.Errorf("no catch clause:\n%s", out)
	}
	if err := structured.CheckScoping(res.Body); err != nil {
		t.Errorf("CheckScoping: %v", err)
	}
}

func TestMaxIterations(t *testing.T) {
	g := simulate(t, whileLoop)
	res, err := Run(g, Options{MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if len(res.Notes) == 0 || !strings.HasPrefix(res.Notes[0], "gave up after 1") {
		t.Errorf("notes = %q", res.Notes)
	}
}

func TestDeterministic(t *testing.T) {
	code := `
		0: iload_0
		1: ifle 18
		4: iload_0
		5: iconst_5
		6: if_icmpne 12
		9: goto 18
		12: iinc 0 -1
		15: goto 0
		18: iload_0
		19: ireturn`
	var first string
	for i := 0; i < 3; i++ {
		res, err := Run(simulate(t, code), Options{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		out := render(res.Body)
		if i == 0 {
			first = out
		} else if out != first {
			t.Errorf("run %d differs:\n%s\nwant:\n%s", i, out, first)
		}
	}
}

func TestTunnel(t *testing.T) {
	root := &structured.Block{Stmts: []structured.Stmt{
		&structured.Labeled{Label: 0, Body: &structured.Block{Stmts: []structured.Stmt{&structured.Goto{Target: 5}}}},
		&structured.Labeled{Label: 5, Body: &structured.Block{Stmts: []structured.Stmt{&structured.Goto{Target: 9}}}},
		&structured.Labeled{Label: 9, Body: &structured.Block{Stmts: []structured.Stmt{&structured.Goto{Target: 0}}}},
		&structured.Labeled{Label: 12, Body: &structured.Block{Stmts: []structured.Stmt{&structured.Goto{Target: 5}}}},
	}}
	Tunnel(root)
	// the cycle stops at the label where it was detected
	g := root.Stmts[3].(*structured.Labeled).Body.(*structured.Block).Stmts[0].(*structured.Goto)
	if g.Target != 5 {
		t.Errorf("target = %d, want 5", g.Target)
	}
}

func TestCleanupLabels(t *testing.T) {
	root := &structured.Block{Stmts: []structured.Stmt{
		&structured.Labeled{Label: 0, Body: &structured.Block{Stmts: []structured.Stmt{
			&structured.CondGoto{Target: 9},
			&structured.Goto{Target: 4},
		}}},
		&structured.Labeled{Label: 4, Body: &structured.Block{}},
		&structured.Labeled{Label: 9, Body: &structured.Block{}},
	}}
	CleanupLabels(root)
	got := kinds(root)
	if got["Labeled"] != 1 || got["Goto"] != 0 || got["CondGoto"] != 1 {
		t.Errorf("kinds = %v", got)
	}
}
